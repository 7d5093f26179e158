package httpcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/config"
)

func countingServer(status int, body string, setLastModified bool) (*httptest.Server, *atomic.Int64) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if setLastModified {
			w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	return srv, &calls
}

func testConfig(primary, backup string) config.FinalsAPIConfig {
	return config.FinalsAPIConfig{
		PrimaryBaseURL:      primary,
		BackupBaseURL:       backup,
		RequestsPerSecond:   1000,
		Burst:               10,
		MaxRetries:          3,
		RetryInitialBackoff: time.Millisecond,
		ContentTTL:          time.Minute,
		LastModifiedTTL:     time.Hour,
	}
}

// Serving the same endpoint twice within the short TTL performs one network
// call: the second Get is answered entirely from the content cache tier.
func TestClient_Get_SecondCallWithinTTLSkipsNetwork(t *testing.T) {
	srv, calls := countingServer(http.StatusOK, `{"ok":true}`, false)
	defer srv.Close()

	c := New(testConfig(srv.URL, ""))

	resp1, err := c.Get(context.Background(), "/v1/leaderboard/s5", url.Values{}, true, 0)
	require.NoError(t, err)
	assert.False(t, resp1.FromCache)

	resp2, err := c.Get(context.Background(), "/v1/leaderboard/s5", url.Values{}, true, 0)
	require.NoError(t, err)
	assert.True(t, resp2.FromCache)

	assert.EqualValues(t, 1, calls.Load())
}

// If an LM cache entry exists, the content cache entry for the same key has
// an equal-or-greater TTL, so a 304 can never outlive the body it refreshes.
func TestClient_Get_LastModifiedEntryImpliesContentEntryTTLAtLeastAsLong(t *testing.T) {
	srv, _ := countingServer(http.StatusOK, `{"ok":true}`, true)
	defer srv.Close()

	c := New(testConfig(srv.URL, ""))

	_, err := c.Get(context.Background(), "/v1/leaderboard/s5", url.Values{}, true, 0)
	require.NoError(t, err)

	key := cacheKey("/v1/leaderboard/s5", url.Values{})

	contentItems := c.content.Items()
	lmItems := c.lastMod.Items()

	contentItem, ok := contentItems[key]
	require.True(t, ok, "expected a content cache entry")
	lmItem, ok := lmItems[key+":lm"]
	require.True(t, ok, "expected a last-modified cache entry")

	assert.GreaterOrEqual(t, contentItem.Expiration, lmItem.Expiration)
}

// A 500 is retried with the same backoff schedule as a network error; once
// the retry budget is exhausted, the client fails over to the backup base
// exactly once, matching the "primary returns 500 three times, backup
// returns 200" recovery scenario.
func TestClient_Get_FiveHundredRetriesThenFailsOverToBackup(t *testing.T) {
	primary, primaryCalls := countingServer(http.StatusInternalServerError, "", false)
	defer primary.Close()
	backup, backupCalls := countingServer(http.StatusOK, `{"data":[]}`, false)
	defer backup.Close()

	c := New(testConfig(primary.URL, backup.URL))

	_, err := c.Get(context.Background(), "/v1/leaderboard/s5", url.Values{}, false, 0)
	require.Error(t, err)
	assert.Greater(t, primaryCalls.Load(), int64(1), "expected more than one attempt against primary — a 500 must be retried, not treated as a one-shot success")
	assert.EqualValues(t, 0, backupCalls.Load())

	c.mu.Lock()
	usingBackup := c.usingBackup
	c.mu.Unlock()
	require.True(t, usingBackup, "expected failover to have switched to the backup base")

	resp, err := c.Get(context.Background(), "/v1/leaderboard/s5", url.Values{}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, backupCalls.Load())
}

// A 4xx is returned to the caller as-is, with no retry and no failover: it
// is the caller's request that is wrong, not the upstream's availability.
func TestClient_Get_FourHundredIsNotRetried(t *testing.T) {
	srv, calls := countingServer(http.StatusNotFound, "", false)
	defer srv.Close()

	c := New(testConfig(srv.URL, ""))

	resp, err := c.Get(context.Background(), "/v1/leaderboard/does-not-exist", url.Values{}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}
