package plugin

import (
	"context"
	"strings"
	"sync"
	"time"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/logging"
)

const handlerTimeout = 30 * time.Second

// Dispatcher holds the registered plugin set and routes each incoming
// message to at most one handler: slash command first, then the first
// matching keyword, then the first matching regex, then the plugins'
// unknown-command hooks, stopping at the first that returns a response.
type Dispatcher struct {
	mu       sync.RWMutex
	plugins  map[string]*Plugin
	commands map[string]string // command name -> owning plugin name
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		plugins:  make(map[string]*Plugin),
		commands: make(map[string]string),
	}
}

// Register adds p to the dispatcher and runs its OnLoad hook. Command name
// collisions across plugins are rejected.
func (d *Dispatcher) Register(ctx context.Context, p *Plugin) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.plugins[p.name]; exists {
		return apperr.Validation("plugin "+p.name+" is already registered", nil)
	}
	for _, c := range p.commands {
		if owner, ok := d.commands[c.name]; ok {
			return apperr.Validation("command /"+c.name+" already registered by plugin "+owner, nil)
		}
	}

	if p.onLoad != nil {
		if err := p.onLoad(ctx); err != nil {
			return apperr.Internal("plugin "+p.name+" on_load failed", err)
		}
	}

	d.plugins[p.name] = p
	for _, c := range p.commands {
		d.commands[c.name] = p.name
	}
	logging.ForComponent("plugin").Info().Str("plugin", p.name).Int("commands", len(p.commands)).Msg("plugin registered")
	return nil
}

// Unregister runs p's OnUnload hook and removes it. Its persisted namespace
// data in KVS is left untouched, so a later Register of the same name
// resumes with its prior state.
func (d *Dispatcher) Unregister(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.plugins[name]
	if !ok {
		return apperr.NotFound("plugin "+name, nil)
	}
	if p.onUnload != nil {
		if err := p.onUnload(ctx); err != nil {
			return apperr.Internal("plugin "+name+" on_unload failed", err)
		}
	}
	delete(d.plugins, name)
	for cmd, owner := range d.commands {
		if owner == name {
			delete(d.commands, cmd)
		}
	}
	return nil
}

// Reload unregisters the plugin named name (if present) and registers
// replacement in its place, preserving KVS-persisted data across the swap.
func (d *Dispatcher) Reload(ctx context.Context, name string, replacement *Plugin) error {
	if _, ok := d.plugins[name]; ok {
		if err := d.Unregister(ctx, name); err != nil {
			return err
		}
	}
	return d.Register(ctx, replacement)
}

// Dispatch routes one message to its matching handler. The handler runs
// with a 30s timeout; a timeout or panic is translated into a user-visible
// generic response rather than propagated to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (*Response, error) {
	log := logging.ForComponent("plugin")
	h, matchedBy := d.resolve(msg)

	if h == nil {
		return d.dispatchUnknown(ctx, msg)
	}

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	resp, err := runHandler(hctx, h, msg)
	if err != nil {
		if hctx.Err() != nil {
			log.Warn().Str("matched_by", matchedBy).Msg("handler timed out")
			return &Response{Text: "处理超时"}, nil
		}
		log.Error().Err(err).Str("matched_by", matchedBy).Msg("handler failed")
		return &Response{Text: "发生错误，请稍后再试"}, nil
	}
	return resp, nil
}

func (d *Dispatcher) resolve(msg Message) (Handler, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	content := strings.ToLower(strings.TrimSpace(msg.Content))

	if strings.HasPrefix(content, "/") {
		token := strings.Fields(content[1:])
		if len(token) > 0 {
			if owner, ok := d.commands[token[0]]; ok {
				p := d.plugins[owner]
				for _, c := range p.commands {
					if c.name == token[0] {
						return c.handler, "/" + c.name
					}
				}
			}
		}
		return nil, ""
	}

	for _, p := range d.plugins {
		for _, k := range p.keywords {
			if strings.Contains(content, k.keyword) {
				return k.handler, "keyword:" + k.keyword
			}
		}
	}
	for _, p := range d.plugins {
		for _, r := range p.regexes {
			if r.pattern.MatchString(content) {
				return r.handler, "regex:" + r.pattern.String()
			}
		}
	}
	return nil, ""
}

func (d *Dispatcher) dispatchUnknown(ctx context.Context, msg Message) (*Response, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, p := range d.plugins {
		if p.unknownCommand == nil {
			continue
		}
		resp, err := p.unknownCommand(ctx, msg)
		if err != nil {
			continue
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

// Publish fans out a named event to every subscriber across every plugin.
func (d *Dispatcher) Publish(ctx context.Context, eventName string, payload any) {
	d.mu.RLock()
	var handlers []EventHandler
	for _, p := range d.plugins {
		handlers = append(handlers, p.events[eventName]...)
	}
	d.mu.RUnlock()

	log := logging.ForComponent("plugin")
	for _, h := range handlers {
		if err := h(ctx, payload); err != nil {
			log.Error().Err(err).Str("event", eventName).Msg("event handler failed")
		}
	}
}

// Shutdown unregisters every plugin, running each one's OnUnload hook.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.RLock()
	names := make([]string, 0, len(d.plugins))
	for name := range d.plugins {
		names = append(names, name)
	}
	d.mu.RUnlock()

	log := logging.ForComponent("plugin")
	for _, name := range names {
		if err := d.Unregister(ctx, name); err != nil {
			log.Error().Err(err).Str("plugin", name).Msg("plugin teardown failed")
		}
	}
}

// Commands returns every non-hidden command across every registered plugin,
// for /help and /about listings.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for _, p := range d.plugins {
		for _, c := range p.commands {
			if !c.hidden {
				out = append(out, c.name)
			}
		}
	}
	return out
}

func runHandler(ctx context.Context, h Handler, msg Message) (resp *Response, err error) {
	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: apperr.Internal("handler panicked", nil)}
			}
		}()
		r, e := h(ctx, msg)
		done <- result{resp: r, err: e}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
