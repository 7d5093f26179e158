// Package plugin is the Plugin Dispatcher: an explicit, builder-registered
// set of command/keyword/regex/event handlers routed against incoming chat
// messages. There is no filesystem-scanning plugin discovery and no
// reflection anywhere in this package, mirroring the teacher's explicit,
// hand-wired route registration in cmd/server/main.go's setupRouter — the
// redesign flag against "dynamic plugin discovery" replaces a directory
// scan with plugins constructed and registered by name directly in
// cmd/server/main.go.
package plugin

import (
	"context"
	"encoding/json"
	"regexp"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/kvstore"
)

// Message is one incoming chat message, adapter-normalized across platforms.
type Message struct {
	Content  string
	UserID   string
	GuildID  string
	Platform string
}

// Response is a handler's reply: either text, a path to a single rendered
// image, or both (callers send whichever fields are non-empty).
type Response struct {
	Text      string
	ImagePath string
}

// Handler answers one routed message.
type Handler func(ctx context.Context, msg Message) (*Response, error)

// EventHandler answers one named event publish.
type EventHandler func(ctx context.Context, payload any) error

type commandEntry struct {
	name        string
	description string
	hidden      bool
	handler     Handler
}

type keywordEntry struct {
	keyword string
	handler Handler
}

type regexEntry struct {
	pattern *regexp.Regexp
	handler Handler
}

// Plugin is a registered bundle of commands/keywords/regexes/events plus
// optional lifecycle hooks, produced by Builder.Build.
type Plugin struct {
	name     string
	commands []commandEntry
	keywords []keywordEntry
	regexes  []regexEntry
	events   map[string][]EventHandler

	onLoad         func(ctx context.Context) error
	onUnload       func(ctx context.Context) error
	unknownCommand Handler

	Data *Namespace
}

// Name returns the plugin's registration name.
func (p *Plugin) Name() string { return p.name }

// Builder assembles a Plugin via a fluent registration call, mirroring the
// teacher's pattern of wiring each handler explicitly rather than via
// decorators or struct tags.
type Builder struct {
	p *Plugin
}

// NewBuilder starts building a plugin with the given registration name.
// The plugin's private namespace, backed by kv, is exposed as its Data field.
func NewBuilder(name string, kv *kvstore.Store) *Builder {
	return &Builder{
		p: &Plugin{
			name:   name,
			events: make(map[string][]EventHandler),
			Data:   newNamespace(name, kv),
		},
	}
}

// RegisterCommand declares a `/name` command.
func (b *Builder) RegisterCommand(name, description string, hidden bool, h Handler) *Builder {
	b.p.commands = append(b.p.commands, commandEntry{name: name, description: description, hidden: hidden, handler: h})
	return b
}

// RegisterKeyword declares a substring-match handler, tried in registration
// order after the command and before the regex pass.
func (b *Builder) RegisterKeyword(keyword string, h Handler) *Builder {
	b.p.keywords = append(b.p.keywords, keywordEntry{keyword: keyword, handler: h})
	return b
}

// RegisterRegex declares a regex-match handler, tried after keywords.
func (b *Builder) RegisterRegex(pattern *regexp.Regexp, h Handler) *Builder {
	b.p.regexes = append(b.p.regexes, regexEntry{pattern: pattern, handler: h})
	return b
}

// RegisterEvent subscribes h to named event publishes via Dispatcher.Publish.
func (b *Builder) RegisterEvent(eventName string, h EventHandler) *Builder {
	b.p.events[eventName] = append(b.p.events[eventName], h)
	return b
}

// OnLoad sets the hook run synchronously when the plugin is registered.
func (b *Builder) OnLoad(fn func(ctx context.Context) error) *Builder {
	b.p.onLoad = fn
	return b
}

// OnUnload sets the hook run synchronously when the plugin is unregistered.
func (b *Builder) OnUnload(fn func(ctx context.Context) error) *Builder {
	b.p.onUnload = fn
	return b
}

// OnUnknownCommand sets the handler invoked when no command/keyword/regex
// in the whole dispatcher matched an incoming message.
func (b *Builder) OnUnknownCommand(h Handler) *Builder {
	b.p.unknownCommand = h
	return b
}

// Data returns the plugin's namespace, usable by handler closures assembled
// before Build is called.
func (b *Builder) Data() *Namespace {
	return b.p.Data
}

// Build finalizes the plugin.
func (b *Builder) Build() *Plugin {
	return b.p
}

// Namespace is a plugin's private KVS-backed data/config store, keyed
// plugin:{name}:data and plugin:{name}:config per the keyspace.
type Namespace struct {
	name string
	kv   *kvstore.Store
}

func newNamespace(name string, kv *kvstore.Store) *Namespace {
	return &Namespace{name: name, kv: kv}
}

func (n *Namespace) dataKey() string   { return "plugin:" + n.name + ":data" }
func (n *Namespace) configKey() string { return "plugin:" + n.name + ":config" }

// LoadData unmarshals the plugin's persisted data blob into out. A missing
// blob leaves out untouched and returns no error.
func (n *Namespace) LoadData(ctx context.Context, out any) error {
	return n.load(ctx, n.dataKey(), out)
}

// SaveData persists in as the plugin's data blob.
func (n *Namespace) SaveData(ctx context.Context, in any) error {
	return n.save(ctx, n.dataKey(), in)
}

// LoadConfig unmarshals the plugin's persisted config blob into out.
func (n *Namespace) LoadConfig(ctx context.Context, out any) error {
	return n.load(ctx, n.configKey(), out)
}

// SaveConfig persists in as the plugin's config blob.
func (n *Namespace) SaveConfig(ctx context.Context, in any) error {
	return n.save(ctx, n.configKey(), in)
}

func (n *Namespace) load(ctx context.Context, key string, out any) error {
	raw, ok, err := n.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return apperr.Internal("decoding plugin namespace blob "+key, err)
	}
	return nil
}

func (n *Namespace) save(ctx context.Context, key string, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return apperr.Internal("encoding plugin namespace blob "+key, err)
	}
	return n.kv.Set(ctx, key, string(raw), 0)
}
