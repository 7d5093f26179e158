// Package season implements the Season Pipeline and Season Manager: the
// per-season fetch loop that keeps the current season's hot tier (kvstore)
// and every historical season's cold tier (sqlstore) in sync with upstream,
// and the coordinator that routes player lookups to the right one. This
// replaces the teacher's singleton repository pattern (internal/service's
// package-level service construction) with an explicit registry built once
// at startup and handed around by reference, per the redesign flag against
// global resolution.
package season

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/finalsapi"
	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/logging"
	"thefinals-leaderboard-bot/internal/search"
	"thefinals-leaderboard-bot/internal/sqlstore"
)

const (
	playerKeyPrefix  = "player:"
	topPlayersKey    = "top_players"
	playerBatchSize  = 100
	topPlayersCount  = 5
)

// Player is one leaderboard row, immutable within a refresh cycle.
type Player struct {
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	ClubTag   string   `json:"clubTag,omitempty"`
	Rank      int      `json:"rank"`
	Score     int64    `json:"score"`
	Change    int64    `json:"change"`
	Platforms []string `json:"platforms,omitempty"`
}

// Fields implements search.Scorer[*Player]: canonical name plus aliases.
type PlayerScorer struct{}

func (PlayerScorer) Fields(p *Player) []string {
	fields := make([]string, 0, len(p.Aliases)+1)
	fields = append(fields, p.Name)
	fields = append(fields, p.Aliases...)
	return fields
}

func playerID(p *Player) string {
	return strings.ToLower(p.Name)
}

func fromDTO(d finalsapi.PlayerDTO) *Player {
	var aliases []string
	for _, a := range []string{d.SteamName, d.PSNName, d.XboxName} {
		if a != "" {
			aliases = append(aliases, a)
		}
	}
	return &Player{
		Name:    d.Name,
		Aliases: aliases,
		ClubTag: d.ClubTag,
		Rank:    d.Rank,
		Score:   d.Score(),
		Change:  d.Change,
	}
}

// Pipeline owns one season's refresh loop and storage tier. A current-
// season pipeline writes through kvstore and shares the process-wide
// player search index; a historical pipeline writes once through sqlstore
// and never refreshes again.
type Pipeline struct {
	seasonID string
	current  bool

	api     *finalsapi.Client
	kv      *kvstore.Store
	sql     *sqlstore.Store
	index   *search.Index[*Player] // only set for the current-season pipeline

	updateInterval time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped atomic.Bool
}

// NewCurrent builds the pipeline for the single designated current season.
// index is shared with the Manager so fuzzy queries always see the
// freshest build.
func NewCurrent(seasonID string, api *finalsapi.Client, kv *kvstore.Store, index *search.Index[*Player], updateInterval time.Duration) *Pipeline {
	return &Pipeline{
		seasonID:       seasonID,
		current:        true,
		api:            api,
		kv:             kv,
		index:          index,
		updateInterval: updateInterval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// NewHistorical builds the pipeline for a frozen season backed by an ESS file.
func NewHistorical(seasonID string, api *finalsapi.Client, store *sqlstore.Store) *Pipeline {
	return &Pipeline{
		seasonID: seasonID,
		current:  false,
		api:      api,
		sql:      store,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start populates the pipeline once and, for the current season, launches
// the periodic refresh loop. It returns after the initial populate.
func (p *Pipeline) Start(ctx context.Context) error {
	log := logging.ForComponent("season").With().Str("season", p.seasonID).Logger()

	if !p.current {
		n, err := p.sql.RowCount(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info().Int("rows", n).Msg("historical season already populated, skipping fetch")
			return nil
		}
		if err := p.refreshHistorical(ctx); err != nil {
			return err
		}
		log.Info().Msg("historical season bulk-inserted")
		return nil
	}

	if err := p.refreshCurrent(ctx); err != nil {
		log.Warn().Err(err).Msg("initial current-season refresh failed")
	}

	go p.loop(ctx)
	return nil
}

func (p *Pipeline) loop(ctx context.Context) {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.updateInterval)
	defer ticker.Stop()

	log := logging.ForComponent("season").With().Str("season", p.seasonID).Logger()

	for {
		select {
		case <-ticker.C:
			if err := p.refreshCurrent(ctx); err != nil {
				log.Warn().Err(err).Msg("refresh failed")
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop requests graceful shutdown: the running loop iteration finishes, no
// further iterations start, and the historical store (if any) is flushed,
// backed up and closed.
func (p *Pipeline) Stop(ctx context.Context) {
	if p.stopped.Swap(true) {
		return
	}
	close(p.stopCh)
	if p.current {
		<-p.doneCh
		return
	}
	if p.sql != nil {
		if err := p.sql.Close(); err != nil {
			logging.ForComponent("season").Warn().Err(err).Str("season", p.seasonID).Msg("error closing historical store")
		}
	}
}

func (p *Pipeline) refreshCurrent(ctx context.Context) error {
	resp, err := p.api.FetchLeaderboard(ctx, p.seasonID, true)
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		logging.ForComponent("season").Warn().Str("season", p.seasonID).Msg("upstream returned empty leaderboard, skipping refresh")
		return nil
	}

	players := make([]*Player, 0, len(resp.Data))
	for _, dto := range resp.Data {
		players = append(players, fromDTO(dto))
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Rank < players[j].Rank })

	if err := p.clearPlayerKeys(ctx); err != nil {
		return err
	}
	if err := p.writePlayers(ctx, players); err != nil {
		return err
	}
	if err := p.writeTopPlayers(ctx, players); err != nil {
		return err
	}

	p.index.Build(players, playerID)
	return nil
}

func (p *Pipeline) clearPlayerKeys(ctx context.Context) error {
	pattern := fmt.Sprintf("%s%s:*", playerKeyPrefix, p.seasonID)
	keys, err := p.kv.ScanKeys(ctx, pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return p.kv.Delete(ctx, keys...)
}

func (p *Pipeline) playerKey(name string) string {
	return fmt.Sprintf("%s%s:%s", playerKeyPrefix, p.seasonID, strings.ToLower(name))
}

func (p *Pipeline) writePlayers(ctx context.Context, players []*Player) error {
	ttl := 2 * p.updateInterval
	for i := 0; i < len(players); i += playerBatchSize {
		end := i + playerBatchSize
		if end > len(players) {
			end = len(players)
		}
		batch := p.kv.NewBatch()
		for _, pl := range players[i:end] {
			data, err := json.Marshal(pl)
			if err != nil {
				return apperr.Internal("marshaling player record", err)
			}
			batch.Set(ctx, p.playerKey(pl.Name), string(data), ttl)
		}
		if err := batch.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) writeTopPlayers(ctx context.Context, players []*Player) error {
	n := topPlayersCount
	if len(players) < n {
		n = len(players)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = players[i].Name
	}
	data, err := json.Marshal(names)
	if err != nil {
		return apperr.Internal("marshaling top players", err)
	}
	key := fmt.Sprintf("%s:%s", topPlayersKey, p.seasonID)
	return p.kv.Set(ctx, key, string(data), p.updateInterval)
}

func (p *Pipeline) refreshHistorical(ctx context.Context) error {
	resp, err := p.api.FetchLeaderboard(ctx, p.seasonID, false)
	if err != nil {
		return err
	}
	rows := make([]sqlstore.PlayerRow, 0, len(resp.Data))
	for _, dto := range resp.Data {
		data, err := json.Marshal(dto)
		if err != nil {
			return apperr.Internal("marshaling historical player record", err)
		}
		rows = append(rows, sqlstore.PlayerRow{
			Name:  dto.Name,
			Data:  string(data),
			Rank:  dto.Rank,
			Score: dto.Score(),
		})
	}
	return p.sql.BulkInsert(ctx, rows)
}

// GetPlayer implements the per-flavor lookup: current seasons try the
// exact KVS key and fall back to the shared index for a fuzzy resolve;
// historical seasons try an exact SQL match and fall back to LIKE.
func (p *Pipeline) GetPlayer(ctx context.Context, name string, useFuzzy bool) (*Player, bool, error) {
	lower := strings.ToLower(name)

	if p.current {
		return p.getCurrentPlayer(ctx, lower, useFuzzy)
	}
	return p.getHistoricalPlayer(ctx, lower, useFuzzy)
}

func (p *Pipeline) getCurrentPlayer(ctx context.Context, lowerName string, useFuzzy bool) (*Player, bool, error) {
	val, ok, err := p.kv.Get(ctx, p.playerKey(lowerName))
	if err != nil {
		return nil, false, err
	}
	if !ok && useFuzzy {
		matches := p.index.Search(lowerName, 1)
		if len(matches) > 0 {
			resolved := strings.ToLower(matches[0].Record.Name)
			val, ok, err = p.kv.Get(ctx, p.playerKey(resolved))
			if err != nil {
				return nil, false, err
			}
		}
	}
	if !ok {
		return nil, false, nil
	}

	var player Player
	if err := json.Unmarshal([]byte(val), &player); err != nil {
		return nil, false, apperr.Internal("unmarshaling player record", err)
	}
	return &player, true, nil
}

func (p *Pipeline) getHistoricalPlayer(ctx context.Context, lowerName string, useFuzzy bool) (*Player, bool, error) {
	row, found, err := p.sql.GetPlayer(ctx, lowerName, useFuzzy)
	if err != nil || !found {
		return nil, found, err
	}
	var dto finalsapi.PlayerDTO
	if err := json.Unmarshal([]byte(row.Data), &dto); err != nil {
		return nil, false, apperr.Internal("unmarshaling historical player record", err)
	}
	player := fromDTO(dto)
	return player, true, nil
}

// TopPlayers returns the cached leading names for the current season.
func (p *Pipeline) TopPlayers(ctx context.Context) ([]string, error) {
	key := fmt.Sprintf("%s:%s", topPlayersKey, p.seasonID)
	val, ok, err := p.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(val), &names); err != nil {
		return nil, apperr.Internal("unmarshaling top players", err)
	}
	return names, nil
}

// Manager is the process-wide coordinator holding one Pipeline per
// configured season, built explicitly at startup rather than resolved
// through a package-level singleton.
type Manager struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	current   string
	index     *search.Index[*Player]
}

// NewManager creates an empty manager with the shared player search index
// that Initialize wires into the current-season pipeline.
func NewManager() *Manager {
	return &Manager{
		pipelines: make(map[string]*Pipeline),
		index:     search.New[*Player](PlayerScorer{}, search.PlayerWeights()),
	}
}

// Index returns the shared fuzzy search index, built by the current
// season's refresh loop.
func (m *Manager) Index() *search.Index[*Player] {
	return m.index
}

// CurrentSeasonID returns the id commands should default to when the
// caller doesn't name one explicitly.
func (m *Manager) CurrentSeasonID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Initialize instantiates every configured season's pipeline in
// deterministic order, historical seasons first, then the current season,
// and starts each one.
func (m *Manager) Initialize(ctx context.Context, api *finalsapi.Client, kv *kvstore.Store, sqlDataDir string, currentSeasonID string, historicalSeasonIDs []string, updateInterval time.Duration) error {
	sorted := append([]string(nil), historicalSeasonIDs...)
	sort.Strings(sorted)

	for _, seasonID := range sorted {
		store, err := sqlstore.Open(sqlDataDir, seasonID)
		if err != nil {
			return fmt.Errorf("opening historical store for season %s: %w", seasonID, err)
		}
		pipeline := NewHistorical(seasonID, api, store)
		if err := pipeline.Start(ctx); err != nil {
			return fmt.Errorf("starting historical season %s: %w", seasonID, err)
		}
		m.mu.Lock()
		m.pipelines[seasonID] = pipeline
		m.mu.Unlock()
	}

	current := NewCurrent(currentSeasonID, api, kv, m.index, updateInterval)
	if err := current.Start(ctx); err != nil {
		return fmt.Errorf("starting current season %s: %w", currentSeasonID, err)
	}
	m.mu.Lock()
	m.pipelines[currentSeasonID] = current
	m.current = currentSeasonID
	m.mu.Unlock()

	return nil
}

// GetPlayerData delegates to the pipeline for the given season.
func (m *Manager) GetPlayerData(ctx context.Context, name, seasonID string, useFuzzy bool) (*Player, bool, error) {
	m.mu.RLock()
	p, ok := m.pipelines[seasonID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, apperr.NotFound(fmt.Sprintf("season %s", seasonID), nil)
	}
	return p.GetPlayer(ctx, name, useFuzzy)
}

// GetTopPlayers returns the cached leading names for the current season.
// Historical seasons do not maintain a top_players cache (they're frozen
// and never re-ranked after the bulk load).
func (m *Manager) GetTopPlayers(ctx context.Context, seasonID string, limit int) ([]string, error) {
	m.mu.RLock()
	p, ok := m.pipelines[seasonID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("season %s", seasonID), nil)
	}
	names, err := p.TopPlayers(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// Shutdown stops every pipeline, flushing pending writes.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pipelines {
		p.Stop(ctx)
	}
}
