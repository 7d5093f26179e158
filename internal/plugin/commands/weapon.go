package commands

import (
	"context"
	"fmt"
	"strings"

	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/shared/utils"
)

// descriptionLimit keeps an operator-configured weapon description from
// blowing past a chat platform's single-message size limit.
const descriptionLimit = 280

// WeaponInfo is one entry in the weapon dataset, matched by name or alias.
type WeaponInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Damage      int      `json:"damage"`
	FireRate    int      `json:"fireRate"`
	Description string   `json:"description"`
}

// defaultWeaponData is the dataset used whenever the plugin's config holds
// no weapons; it is not written into the config. An operator can install a
// full set via the plugin's own SaveConfig.
var defaultWeaponData = []WeaponInfo{
	{Name: "M11", Aliases: []string{"m11", "smg"}, Damage: 19, FireRate: 1200, Description: "Fast-firing SMG, strong at close range."},
	{Name: "SR-84", Aliases: []string{"sr84", "sniper"}, Damage: 75, FireRate: 43, Description: "Bolt-action sniper rifle, one-shot headshot potential."},
	{Name: "Model 1887", Aliases: []string{"model1887", "pump"}, Damage: 55, FireRate: 60, Description: "Pump-action shotgun favoring aggressive light builds."},
}

// NewWeaponPlugin registers /weapon <name>, looking the query up by name or
// alias (case-insensitively) against the plugin's configured dataset.
func NewWeaponPlugin(kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("weapon", kv)

	b.RegisterCommand("weapon", "look up a weapon's stats", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)
		if len(args) < 2 {
			return &plugin.Response{Text: "usage: /weapon <name>"}, nil
		}
		query := strings.ToLower(strings.Join(args[1:], " "))

		var cfg struct {
			Weapons []WeaponInfo `json:"weapons"`
		}
		if err := b.Data().LoadConfig(ctx, &cfg); err != nil {
			return nil, err
		}
		weapons := cfg.Weapons
		if len(weapons) == 0 {
			weapons = defaultWeaponData
		}

		for _, w := range weapons {
			if strings.ToLower(w.Name) == query || containsAlias(w.Aliases, query) {
				return &plugin.Response{Text: formatWeapon(w)}, nil
			}
		}
		return &plugin.Response{Text: fmt.Sprintf("no weapon found matching %q", query)}, nil
	})

	return b.Build()
}

func containsAlias(aliases []string, query string) bool {
	for _, a := range aliases {
		if strings.ToLower(a) == query {
			return true
		}
	}
	return false
}

func formatWeapon(w WeaponInfo) string {
	return fmt.Sprintf("%s\ndamage: %d\nfire rate: %d/min\n%s", w.Name, w.Damage, w.FireRate, utils.TruncateString(w.Description, descriptionLimit))
}
