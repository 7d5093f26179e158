package commands

import (
	"context"
	"fmt"
	"strings"

	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/shared/utils"
)

// BindStore persists per-user bound leaderboard ids, keyed by the chat
// platform's user id, and a separate per-user lock flag that blocks /bind
// from overwriting a bound id by accident.
type BindStore struct {
	kv *kvstore.Store
}

// NewBindStore wraps the shared key-value store for bind/lock lookups.
func NewBindStore(kv *kvstore.Store) *BindStore {
	return &BindStore{kv: kv}
}

func bindKey(userID string) string { return "bind:" + userID }
func lockKey(userID string) string { return "bind:" + userID + ":locked" }

// Get returns the id bound to userID, if any.
func (b *BindStore) Get(ctx context.Context, userID string) (string, bool, error) {
	return b.kv.Get(ctx, bindKey(userID))
}

// Set binds id to userID, refusing to overwrite an existing bind while the
// user's lock flag is set. id is stored normalized so a later /rank lookup
// sees the same key regardless of how the user cased it at bind time.
func (b *BindStore) Set(ctx context.Context, userID, id string) error {
	v := utils.NewValidator().PlayerID("id", id)
	if !v.IsValid() {
		return v.Error()
	}
	locked, err := b.locked(ctx, userID)
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("your bound id is locked — /unlock first")
	}
	return b.kv.Set(ctx, bindKey(userID), utils.NormalizePlayerID(id), 0)
}

// Unset removes userID's bound id.
func (b *BindStore) Unset(ctx context.Context, userID string) error {
	return b.kv.Delete(ctx, bindKey(userID))
}

// Lock prevents further /bind calls from changing userID's bound id until
// /unlock is called.
func (b *BindStore) Lock(ctx context.Context, userID string) error {
	return b.kv.Set(ctx, lockKey(userID), "1", 0)
}

// Unlock clears userID's lock flag.
func (b *BindStore) Unlock(ctx context.Context, userID string) error {
	return b.kv.Delete(ctx, lockKey(userID))
}

func (b *BindStore) locked(ctx context.Context, userID string) (bool, error) {
	_, ok, err := b.kv.Get(ctx, lockKey(userID))
	return ok, err
}

// NewBindPlugin registers /bind, /unbind, /lock and /unlock, all operating
// on the same BindStore.
func NewBindPlugin(binds *BindStore, kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("bind", kv)

	b.RegisterCommand("bind", "bind your id for future lookups", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)
		if len(args) < 2 {
			return &plugin.Response{Text: "usage: /bind <id>"}, nil
		}
		if err := binds.Set(ctx, msg.UserID, args[1]); err != nil {
			return &plugin.Response{Text: err.Error()}, nil
		}
		return &plugin.Response{Text: fmt.Sprintf("bound to %s", args[1])}, nil
	})

	b.RegisterCommand("unbind", "remove your bound id", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		if err := binds.Unset(ctx, msg.UserID); err != nil {
			return nil, err
		}
		return &plugin.Response{Text: "unbound"}, nil
	})

	b.RegisterCommand("lock", "prevent /bind from changing your bound id", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		if err := binds.Lock(ctx, msg.UserID); err != nil {
			return nil, err
		}
		return &plugin.Response{Text: "bound id locked"}, nil
	})

	b.RegisterCommand("unlock", "allow /bind to change your bound id again", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		if err := binds.Unlock(ctx, msg.UserID); err != nil {
			return nil, err
		}
		return &plugin.Response{Text: "bound id unlocked"}, nil
	})

	return b.Build()
}
