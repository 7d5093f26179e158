package season

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/finalsapi"
	"thefinals-leaderboard-bot/internal/httpcache"
	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/search"
	"thefinals-leaderboard-bot/internal/sqlstore"
)

func newTestUpstream(t *testing.T, payload finalsapi.LeaderboardResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kvstore.New(config.KVStoreConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPayload() finalsapi.LeaderboardResponse {
	return finalsapi.LeaderboardResponse{
		Count: 2,
		Data: []finalsapi.PlayerDTO{
			{Rank: 1, Name: "TopPlayer#1111", ClubTag: "ACE", RankScore: 5000},
			{Rank: 2, Name: "SecondPlace#2222", ClubTag: "ACE", RankScore: 4000},
		},
	}
}

func TestPipeline_RefreshCurrentPopulatesKVAndIndex(t *testing.T) {
	srv := newTestUpstream(t, testPayload())
	hcc := httpcache.New(config.FinalsAPIConfig{PrimaryBaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 10, MaxRetries: 1})
	api := finalsapi.New(hcc)
	kv := newTestKV(t)
	index := search.New[*Player](PlayerScorer{}, search.PlayerWeights())

	pipeline := NewCurrent("s5", api, kv, index, time.Hour)
	ctx := context.Background()
	require.NoError(t, pipeline.refreshCurrent(ctx))

	player, found, err := pipeline.GetPlayer(ctx, "TopPlayer#1111", false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5000), player.Score)
	assert.Equal(t, "ACE", player.ClubTag)

	top, err := pipeline.TopPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"TopPlayer#1111", "SecondPlace#2222"}, top)
}

func TestPipeline_FuzzyLookupResolvesViaIndex(t *testing.T) {
	srv := newTestUpstream(t, testPayload())
	hcc := httpcache.New(config.FinalsAPIConfig{PrimaryBaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 10, MaxRetries: 1})
	api := finalsapi.New(hcc)
	kv := newTestKV(t)
	index := search.New[*Player](PlayerScorer{}, search.PlayerWeights())

	pipeline := NewCurrent("s5", api, kv, index, time.Hour)
	ctx := context.Background()
	require.NoError(t, pipeline.refreshCurrent(ctx))

	player, found, err := pipeline.GetPlayer(ctx, "topplayer", true)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "TopPlayer#1111", player.Name)
}

func TestPipeline_EmptyLeaderboardSkipsRefresh(t *testing.T) {
	srv := newTestUpstream(t, finalsapi.LeaderboardResponse{Count: 0, Data: nil})
	hcc := httpcache.New(config.FinalsAPIConfig{PrimaryBaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 10, MaxRetries: 1})
	api := finalsapi.New(hcc)
	kv := newTestKV(t)
	index := search.New[*Player](PlayerScorer{}, search.PlayerWeights())

	pipeline := NewCurrent("s5", api, kv, index, time.Hour)
	ctx := context.Background()
	require.NoError(t, pipeline.refreshCurrent(ctx))
	assert.False(t, index.IsReady())
}

func TestPipeline_HistoricalBulkInsertOnce(t *testing.T) {
	srv := newTestUpstream(t, testPayload())
	hcc := httpcache.New(config.FinalsAPIConfig{PrimaryBaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 10, MaxRetries: 1})
	api := finalsapi.New(hcc)

	dir := t.TempDir()
	store, err := sqlstore.Open(dir, "ob")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pipeline := NewHistorical("ob", api, store)
	ctx := context.Background()
	require.NoError(t, pipeline.Start(ctx))

	player, found, err := pipeline.GetPlayer(ctx, "topplayer#1111", false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5000), player.Score)

	n, err := store.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestManager_GetPlayerDataUnknownSeason(t *testing.T) {
	m := NewManager()
	_, _, err := m.GetPlayerData(context.Background(), "anyone", "s99", false)
	require.Error(t, err)
}
