// Package httpcache is the conditional-cache HTTP client every upstream
// call to the leaderboard API goes through: global rate shaping, retry
// with exponential backoff, primary/backup failover, and a two-tier
// content + Last-Modified cache that lets cacheable GETs skip the network
// entirely. No HTTP framework is used for outbound calls, matching the
// teacher's preference for a raw net/http.Client in its own Redis/Postgres
// wrappers.
package httpcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/logging"
)

const (
	shortContentTTLDefault = 60 * time.Second
	longTTLDefault         = 24 * time.Hour
	defaultTimeout         = 5 * time.Second
	timeoutGrace           = 500 * time.Millisecond
	defaultMaxRetries      = 3
	defaultMinInterval     = 100 * time.Millisecond
	defaultConcurrency     = 50
)

// Response is a synthetic or live HTTP response carrying the body bytes the
// caller needs, independent of whether it came from the network or cache.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	FromCache  bool
	Degraded   bool
}

type cacheEntry struct {
	body       []byte
	statusCode int
	header     http.Header
}

// Client is the process-wide conditional-cache HTTP client.
type Client struct {
	httpClient *http.Client

	primaryBase string
	backupBase  string

	mu          sync.Mutex
	usingBackup bool

	limiter *rate.Limiter
	sem     *semaphore.Weighted

	content *cache.Cache
	lastMod *cache.Cache

	maxRetries  int
	shortTTL    time.Duration
	longTTL     time.Duration
	initialWait time.Duration
}

// New builds a Client from configuration. The rate limiter and semaphore
// are shared across every call the returned Client makes.
func New(cfg config.FinalsAPIConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0 / defaultMinInterval.Seconds()
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	initialWait := cfg.RetryInitialBackoff
	if initialWait <= 0 {
		initialWait = time.Second
	}
	shortTTL := cfg.ContentTTL
	if shortTTL <= 0 {
		shortTTL = shortContentTTLDefault
	}
	longTTL := cfg.LastModifiedTTL
	if longTTL <= 0 {
		longTTL = longTTLDefault
	}

	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout + timeoutGrace},
		primaryBase: strings.TrimRight(cfg.PrimaryBaseURL, "/"),
		backupBase:  strings.TrimRight(cfg.BackupBaseURL, "/"),
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		sem:         semaphore.NewWeighted(defaultConcurrency),
		content:     cache.New(longTTL, 10*time.Minute),
		lastMod:     cache.New(longTTL, 10*time.Minute),
		maxRetries:  maxRetries,
		shortTTL:    shortTTL,
		longTTL:     longTTL,
		initialWait: initialWait,
	}
}

func cacheKey(endpoint string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(endpoint)
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%s=%s", k, strings.Join(params[k], ","))
	}
	return sb.String()
}

// Get performs a cacheable GET against endpoint with the given query
// params. When useCache is true, a fresh content-cache hit is returned
// without touching the network.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, useCache bool, cacheTTL time.Duration) (*Response, error) {
	key := cacheKey(endpoint, params)

	if useCache {
		if entry, ok := c.content.Get(key); ok {
			e := entry.(cacheEntry)
			return &Response{StatusCode: e.statusCode, Body: e.body, Header: e.header, FromCache: true}, nil
		}
	}

	var ifModifiedSince string
	if lm, ok := c.lastMod.Get(key + ":lm"); ok {
		ifModifiedSince = lm.(string)
	}

	resp, err := c.sendWithRetry(ctx, http.MethodGet, endpoint, params, nil, ifModifiedSince)
	if err != nil {
		if entry, ok := c.content.Get(key); ok {
			e := entry.(cacheEntry)
			return &Response{StatusCode: e.statusCode, Body: e.body, Header: e.header, FromCache: true, Degraded: true}, nil
		}
		c.failover()
		return nil, apperr.Transient(fmt.Sprintf("GET %s", endpoint), err)
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if entry, ok := c.content.Get(key); ok {
			e := entry.(cacheEntry)
			// lastMod is set first so content's expiration (set a moment
			// later, same TTL) never lands before it — the LM entry must
			// never outlive the content entry it conditionally refreshes.
			c.lastMod.Set(key+":lm", ifModifiedSince, c.longTTL)
			c.content.Set(key, e, c.longTTL)
			return &Response{StatusCode: e.statusCode, Body: e.body, Header: e.header, FromCache: true}, nil
		}
		// Inconsistent state: an LM value exists but the content entry is
		// gone. Re-issue once with no conditional header.
		c.lastMod.Delete(key + ":lm")
		resp, err = c.sendWithRetry(ctx, http.MethodGet, endpoint, params, nil, "")
		if err != nil {
			c.failover()
			return nil, apperr.Transient(fmt.Sprintf("GET %s", endpoint), err)
		}
		return c.cacheFreshResponse(key, resp, cacheTTL), nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return c.cacheFreshResponse(key, resp, cacheTTL), nil
	default:
		// 5xx never reaches here: doOnce turns it into a retryable error
		// that either recovers within sendWithRetry's budget or surfaces
		// through the err branch above. Only 4xx client errors land here.
		return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}, nil
	}
}

// cacheFreshResponse stores a successful 2xx response in the content/LM
// cache tiers and returns it to the caller.
func (c *Client) cacheFreshResponse(key string, resp *Response, cacheTTL time.Duration) *Response {
	ttl := cacheTTL
	if ttl <= 0 {
		ttl = c.shortTTL
	}
	lm := resp.Header.Get("Last-Modified")
	entry := cacheEntry{body: resp.Body, statusCode: resp.StatusCode, header: resp.Header}
	if lm != "" {
		// Same ordering as the 304 branch above: lastMod first so the
		// content entry's expiration is never earlier than the LM entry's.
		c.lastMod.Set(key+":lm", lm, c.longTTL)
		c.content.Set(key, entry, c.longTTL)
	} else {
		c.content.Set(key, entry, ttl)
		c.lastMod.Delete(key + ":lm")
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}
}

// Post performs a non-cacheable POST.
func (c *Client) Post(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	resp, err := c.sendWithRetry(ctx, http.MethodPost, endpoint, nil, body, "")
	if err != nil {
		return nil, apperr.Transient(fmt.Sprintf("POST %s", endpoint), err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}, nil
}

// Put performs a non-cacheable PUT.
func (c *Client) Put(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	resp, err := c.sendWithRetry(ctx, http.MethodPut, endpoint, nil, body, "")
	if err != nil {
		return nil, apperr.Transient(fmt.Sprintf("PUT %s", endpoint), err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}, nil
}

// Delete performs a non-cacheable DELETE.
func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	resp, err := c.sendWithRetry(ctx, http.MethodDelete, endpoint, nil, nil, "")
	if err != nil {
		return nil, apperr.Transient(fmt.Sprintf("DELETE %s", endpoint), err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}, nil
}

func (c *Client) activeBase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingBackup && c.backupBase != "" {
		return c.backupBase
	}
	return c.primaryBase
}

// failover switches from primary to backup exactly once; it is a one-shot,
// one-direction transition per spec.
func (c *Client) failover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.usingBackup && c.backupBase != "" {
		c.usingBackup = true
		logging.ForComponent("httpcache").Warn().Msg("switching to backup upstream")
	}
}

func (c *Client) sendWithRetry(ctx context.Context, method, endpoint string, params url.Values, body []byte, ifModifiedSince string) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialWait
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	return backoff.Retry(ctx, func() (*Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, backoff.Permanent(err)
		}
		defer c.sem.Release(1)

		resp, err := c.doOnce(ctx, method, endpoint, params, body, ifModifiedSince)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(c.maxRetries)))
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, params url.Values, body []byte, ifModifiedSince string) (*Response, error) {
	full := c.activeBase() + endpoint
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "thefinals-leaderboard-bot/1.0")
	if ifModifiedSince != "" {
		req.Header.Set("If-Modified-Since", ifModifiedSince)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // transient, retry
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		// TransientUpstream per the error taxonomy: retried with the same
		// backoff schedule as a network-transport failure, and counted
		// toward the same retry budget so failover() still fires once that
		// budget is exhausted.
		return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}
