package plugin

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/kvstore"
)

func newTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kvstore.New(config.KVStoreConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func echoHandler(text string) Handler {
	return func(ctx context.Context, msg Message) (*Response, error) {
		return &Response{Text: text}, nil
	}
}

func TestDispatcher_RoutesSlashCommand(t *testing.T) {
	d := NewDispatcher()
	p := NewBuilder("rank", newTestKV(t)).
		RegisterCommand("rank", "show rank", false, echoHandler("ranked")).
		Build()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), Message{Content: "/rank foo"})
	require.NoError(t, err)
	assert.Equal(t, "ranked", resp.Text)
}

func TestDispatcher_KeywordBeforeRegex(t *testing.T) {
	d := NewDispatcher()
	p := NewBuilder("greeter", newTestKV(t)).
		RegisterKeyword("hello", echoHandler("keyword-matched")).
		RegisterRegex(regexp.MustCompile(`^hel`), echoHandler("regex-matched")).
		Build()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), Message{Content: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "keyword-matched", resp.Text)
}

func TestDispatcher_UnknownFallsBackToHook(t *testing.T) {
	d := NewDispatcher()
	p := NewBuilder("catchall", newTestKV(t)).
		OnUnknownCommand(echoHandler("no idea")).
		Build()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), Message{Content: "/nonexistent"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "no idea", resp.Text)
}

func TestDispatcher_RejectsDuplicateCommand(t *testing.T) {
	d := NewDispatcher()
	kv := newTestKV(t)
	p1 := NewBuilder("a", kv).RegisterCommand("rank", "", false, echoHandler("a")).Build()
	p2 := NewBuilder("b", kv).RegisterCommand("rank", "", false, echoHandler("b")).Build()

	require.NoError(t, d.Register(context.Background(), p1))
	err := d.Register(context.Background(), p2)
	assert.Error(t, err)
}

func TestDispatcher_HandlerTimeoutSurfacesGenericMessage(t *testing.T) {
	d := NewDispatcher()
	slow := func(ctx context.Context, msg Message) (*Response, error) {
		select {
		case <-time.After(time.Hour):
			return &Response{Text: "too slow"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := NewBuilder("slow", newTestKV(t)).RegisterCommand("slow", "", false, slow).Build()
	require.NoError(t, d.Register(context.Background(), p))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp, err := d.Dispatch(ctx, Message{Content: "/slow"})
	require.NoError(t, err)
	assert.Equal(t, "处理超时", resp.Text)
}

func TestDispatcher_ReloadPreservesNamespaceData(t *testing.T) {
	kv := newTestKV(t)
	d := NewDispatcher()
	p1 := NewBuilder("counter", kv).RegisterCommand("count", "", false, echoHandler("v1")).Build()
	require.NoError(t, d.Register(context.Background(), p1))
	require.NoError(t, p1.Data.SaveData(context.Background(), map[string]int{"n": 7}))

	p2 := NewBuilder("counter", kv).RegisterCommand("count", "", false, echoHandler("v2")).Build()
	require.NoError(t, d.Reload(context.Background(), "counter", p2))

	var out map[string]int
	require.NoError(t, p2.Data.LoadData(context.Background(), &out))
	assert.Equal(t, 7, out["n"])

	resp, err := d.Dispatch(context.Background(), Message{Content: "/count"})
	require.NoError(t, err)
	assert.Equal(t, "v2", resp.Text)
}

func TestDispatcher_PublishFansOutToSubscribers(t *testing.T) {
	d := NewDispatcher()
	received := make(chan any, 1)
	p := NewBuilder("subscriber", newTestKV(t)).
		RegisterEvent("season_refreshed", func(ctx context.Context, payload any) error {
			received <- payload
			return nil
		}).
		Build()
	require.NoError(t, d.Register(context.Background(), p))

	d.Publish(context.Background(), "season_refreshed", "s5")
	select {
	case v := <-received:
		assert.Equal(t, "s5", v)
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}
