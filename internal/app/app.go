// Package app is the Core App: the single entry point every adapter calls
// with an incoming message, owning the Plugin Dispatcher and the global
// concurrency gate. golang.org/x/sync/semaphore.Weighted is used directly
// for that gate rather than a higher-level helper like
// github.com/sourcegraph/conc (which riskibarqy-fantasy-league pulls in for
// its own worker-pool needs) because the requirement here is exactly one
// weighted semaphore with a timeout, matching the teacher's preference for
// narrowly-scoped golang.org/x/... packages over heavier frameworks for
// concurrency primitives (it already reaches for golang.org/x/time/rate
// the same way for its inbound rate limiter).
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"thefinals-leaderboard-bot/internal/logging"
	"thefinals-leaderboard-bot/internal/platform"
	"thefinals-leaderboard-bot/internal/plugin"
)

const (
	defaultConcurrency = 5
	acquireTimeout     = 30 * time.Second
)

// App is the Core App.
type App struct {
	pd             *plugin.Dispatcher
	sem            *semaphore.Weighted
	acquireTimeout time.Duration

	tasksMu sync.Mutex
	tasks   map[int64]context.CancelFunc
	nextID  int64
}

// New wires an App around an already-populated dispatcher. concurrency<=0
// uses the default of 5.
func New(pd *plugin.Dispatcher, concurrency int64) *App {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &App{
		pd:             pd,
		sem:            semaphore.NewWeighted(concurrency),
		acquireTimeout: acquireTimeout,
		tasks:          make(map[int64]context.CancelFunc),
	}
}

// SetAcquireTimeoutForTest overrides the semaphore-acquire timeout; used
// only by tests that need to observe gate-saturation behavior quickly.
func (a *App) SetAcquireTimeoutForTest(d time.Duration) {
	a.acquireTimeout = d
}

// HandleMessage is the single entry point every platform adapter calls.
func (a *App) HandleMessage(ctx context.Context, msg platform.Message) (*plugin.Response, error) {
	log := logging.ForComponent("app")

	if strings.TrimSpace(msg.Content) == "/help" {
		return &plugin.Response{Text: "see /about"}, nil
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, a.acquireTimeout)
	defer cancelAcquire()
	if err := a.sem.Acquire(acquireCtx, 1); err != nil {
		log.Warn().Msg("concurrency gate saturated")
		return &plugin.Response{Text: "try again later"}, nil
	}
	defer a.sem.Release(1)

	taskCtx, cancel := context.WithCancel(ctx)
	id := a.trackTask(cancel)
	defer a.untrackTask(id)

	resp, err := a.pd.Dispatch(taskCtx, toPluginMessage(msg))
	if err != nil {
		log.Error().Err(err).Msg("dispatch failed")
		return &plugin.Response{Text: "发生错误，请稍后再试"}, nil
	}
	return resp, nil
}

func toPluginMessage(msg platform.Message) plugin.Message {
	return plugin.Message{
		Content:  msg.Content,
		UserID:   msg.Author.ID,
		GuildID:  msg.GuildID,
		Platform: msg.Platform,
	}
}

func (a *App) trackTask(cancel context.CancelFunc) int64 {
	a.tasksMu.Lock()
	defer a.tasksMu.Unlock()
	id := a.nextID
	a.nextID++
	a.tasks[id] = cancel
	return id
}

func (a *App) untrackTask(id int64) {
	a.tasksMu.Lock()
	defer a.tasksMu.Unlock()
	delete(a.tasks, id)
}

// Cleanup cancels every outstanding handler task, waits for them to unwind
// (or for ctx to end, whichever comes first), then tears down the
// dispatcher.
func (a *App) Cleanup(ctx context.Context) {
	a.tasksMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(a.tasks))
	for _, c := range a.tasks {
		cancels = append(cancels, c)
	}
	a.tasksMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

wait:
	for {
		a.tasksMu.Lock()
		remaining := len(a.tasks)
		a.tasksMu.Unlock()
		if remaining == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break wait
		case <-time.After(5 * time.Millisecond):
		}
	}

	a.pd.Shutdown(ctx)
}
