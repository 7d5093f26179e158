package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/platform"
	"thefinals-leaderboard-bot/internal/plugin"
)

func newTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kvstore.New(config.KVStoreConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestApp_HelpShortCircuitsDispatch(t *testing.T) {
	pd := plugin.NewDispatcher()
	a := New(pd, 1)

	resp, err := a.HandleMessage(context.Background(), platform.Message{Content: "/help"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "/about")
}

func TestApp_ForwardsToDispatcher(t *testing.T) {
	pd := plugin.NewDispatcher()
	p := plugin.NewBuilder("rank", newTestKV(t)).
		RegisterCommand("rank", "", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
			return &plugin.Response{Text: "ranked"}, nil
		}).
		Build()
	require.NoError(t, pd.Register(context.Background(), p))

	a := New(pd, 1)
	resp, err := a.HandleMessage(context.Background(), platform.Message{Content: "/rank foo"})
	require.NoError(t, err)
	assert.Equal(t, "ranked", resp.Text)
}

func TestApp_SaturatedGateReturnsTryAgain(t *testing.T) {
	pd := plugin.NewDispatcher()
	block := make(chan struct{})
	p := plugin.NewBuilder("slow", newTestKV(t)).
		RegisterCommand("slow", "", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
			<-block
			return &plugin.Response{Text: "done"}, nil
		}).
		Build()
	require.NoError(t, pd.Register(context.Background(), p))

	a := New(pd, 1)
	a.SetAcquireTimeoutForTest(10 * time.Millisecond)

	go func() {
		_, _ = a.HandleMessage(context.Background(), platform.Message{Content: "/slow"})
	}()
	time.Sleep(20 * time.Millisecond)

	resp, err := a.HandleMessage(context.Background(), platform.Message{Content: "/slow"})
	require.NoError(t, err)
	assert.Equal(t, "try again later", resp.Text)
	close(block)
}

func TestApp_CleanupCancelsOutstandingTasks(t *testing.T) {
	pd := plugin.NewDispatcher()
	cancelled := make(chan struct{})
	p := plugin.NewBuilder("longrun", newTestKV(t)).
		RegisterCommand("longrun", "", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}).
		Build()
	require.NoError(t, pd.Register(context.Background(), p))

	a := New(pd, 2)
	go func() {
		_, _ = a.HandleMessage(context.Background(), platform.Message{Content: "/longrun"})
	}()
	time.Sleep(20 * time.Millisecond)

	a.Cleanup(context.Background())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("outstanding task was not cancelled")
	}
}
