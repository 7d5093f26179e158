// Package club is the Club Cache: structurally parallel to the season
// package's current-season pipeline, but for club-catalogue data. It keeps
// a Redis-backed hash of clubs, a lowercased-tag index for O(1) exact
// lookup, and an in-memory fuzzy indexer sharing search.Index[T]'s trigram
// engine with a coarser club-tag weight profile.
package club

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/finalsapi"
	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/logging"
	"thefinals-leaderboard-bot/internal/search"
)

const (
	clubsHashKey     = "clubs"
	clubTagIndexKey  = "clubs:tag_index"
	clubTagSetKey    = "clubs:tags"

	// fuzzyScanBudget bounds how many clubTagIndexKey fields a not-yet-built
	// index's fallback lookup will walk via HSCAN before giving up.
	fuzzyScanBudget = 1000
)

// Member is one club roster entry.
type Member struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// ModePosition is a club's leaderboard position in one game mode.
type ModePosition struct {
	Mode       string `json:"mode"`
	Rank       int    `json:"rank"`
	TotalValue int64  `json:"totalValue"`
}

// Club is one club catalogue entry.
type Club struct {
	ClubTag   string         `json:"clubTag"`
	Members   []Member       `json:"members"`
	Positions []ModePosition `json:"positions"`
}

// ClubScorer implements search.Scorer[*Club]: just the tag.
type ClubScorer struct{}

func (ClubScorer) Fields(c *Club) []string {
	return []string{c.ClubTag}
}

func clubID(c *Club) string {
	return strings.ToLower(c.ClubTag)
}

func fromDTO(d finalsapi.ClubDTO) *Club {
	members := make([]Member, 0, len(d.Members))
	for _, m := range d.Members {
		members = append(members, Member{Name: m.Name, Score: m.Score})
	}
	positions := make([]ModePosition, 0, len(d.Positions))
	for _, p := range d.Positions {
		positions = append(positions, ModePosition{Mode: p.Mode, Rank: p.Rank, TotalValue: p.TotalValue})
	}
	return &Club{ClubTag: d.ClubTag, Members: members, Positions: positions}
}

// Cache is the process-wide club catalogue cache.
type Cache struct {
	api            *finalsapi.Client
	kv             *kvstore.Store
	index          *search.Index[*Club]
	updateInterval time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped atomic.Bool
}

// New builds a club cache backed by the given upstream client and KV store.
func New(api *finalsapi.Client, kv *kvstore.Store, updateInterval time.Duration) *Cache {
	return &Cache{
		api:            api,
		kv:             kv,
		index:          search.New[*Club](ClubScorer{}, search.ClubWeights()),
		updateInterval: updateInterval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start populates the cache once and launches the periodic refresh loop,
// mirroring the season pipeline's refresh discipline.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		logging.ForComponent("club").Warn().Err(err).Msg("initial club catalogue refresh failed")
	}
	go c.loop(ctx)
	return nil
}

func (c *Cache) loop(ctx context.Context) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	log := logging.ForComponent("club")
	for {
		select {
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("refresh failed")
			}
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop requests graceful shutdown of the refresh loop.
func (c *Cache) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	close(c.stopCh)
	<-c.doneCh
}

func (c *Cache) refresh(ctx context.Context) error {
	resp, err := c.api.FetchClubCatalogue(ctx, true)
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		logging.ForComponent("club").Warn().Msg("upstream returned empty club catalogue, skipping refresh")
		return nil
	}

	clubs := make([]*Club, 0, len(resp.Data))
	for _, dto := range resp.Data {
		clubs = append(clubs, fromDTO(dto))
	}

	if err := c.writeClubs(ctx, clubs); err != nil {
		return err
	}
	c.index.Build(clubs, clubID)
	return nil
}

func (c *Cache) writeClubs(ctx context.Context, clubs []*Club) error {
	hashValues := make(map[string]string, len(clubs))
	tagIndex := make(map[string]string, len(clubs))
	for _, cl := range clubs {
		data, err := json.Marshal(cl)
		if err != nil {
			return apperr.Internal("marshaling club record", err)
		}
		hashValues[cl.ClubTag] = string(data)
		tagIndex[strings.ToLower(cl.ClubTag)] = cl.ClubTag
	}

	if err := c.kv.HSet(ctx, clubsHashKey, hashValues); err != nil {
		return err
	}
	if err := c.kv.HSet(ctx, clubTagIndexKey, tagIndex); err != nil {
		return err
	}
	tags := make([]string, 0, len(tagIndex))
	for tag := range tagIndex {
		tags = append(tags, tag)
	}
	return c.kv.SAdd(ctx, clubTagSetKey, tags...)
}

// GetClub looks up a club by tag: exact (case-insensitive, via the
// lowercased-tag index) first, then fuzzy if useFuzzy is set and the exact
// lookup misses. The fuzzy path uses the in-memory trigram indexer once it
// has completed at least one Build; before that (the window between process
// start and the first successful refresh) it streams clubTagIndexKey via
// HSCAN instead, bounding the work to fuzzyScanBudget fields rather than
// returning nothing until the index is ready.
func (c *Cache) GetClub(ctx context.Context, tag string, useFuzzy bool) (*Club, bool, error) {
	lower := strings.ToLower(tag)

	original, ok, err := c.kv.HGet(ctx, clubTagIndexKey, lower)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return c.getByExactTag(ctx, original)
	}
	if !useFuzzy {
		return nil, false, nil
	}

	if !c.index.IsReady() {
		return c.getByFuzzyScan(ctx, lower)
	}

	matches := c.index.Search(lower, 1)
	if len(matches) == 0 {
		return nil, false, nil
	}
	return c.getByExactTag(ctx, matches[0].Record.ClubTag)
}

// getByFuzzyScan is the HSCAN-backed fallback used while the in-memory
// index hasn't built yet: it scores each scanned tag with the same
// equal/prefix/contains discipline as the club scorer and keeps the single
// best match.
func (c *Cache) getByFuzzyScan(ctx context.Context, lower string) (*Club, bool, error) {
	_, original, _, found, err := c.kv.HScanBest(ctx, clubTagIndexKey, fuzzyScanBudget, func(field, value string) float64 {
		return tagScore(field, lower)
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return c.getByExactTag(ctx, original)
}

// tagScore mirrors search.ClubWeights' equal/prefix/contains tiers on the
// lowercased candidate tag, without depending on search.Index's unexported
// scoring internals.
func tagScore(candidate, query string) float64 {
	switch {
	case candidate == query:
		return 100
	case strings.HasPrefix(candidate, query):
		return 50 + 49*float64(len(query))/float64(len(candidate))
	case strings.Contains(candidate, query):
		return 10 + 39*float64(len(query))/float64(len(candidate))
	default:
		return 0
	}
}

func (c *Cache) getByExactTag(ctx context.Context, tag string) (*Club, bool, error) {
	raw, ok, err := c.kv.HGet(ctx, clubsHashKey, tag)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	var cl Club
	if err := json.Unmarshal([]byte(raw), &cl); err != nil {
		return nil, false, apperr.Internal("unmarshaling club record", err)
	}
	return &cl, true, nil
}

// AllTags returns every known club tag in its original casing, read from
// the lowercased-tag index with a single HGETALL; the hash is not streamed.
func (c *Cache) AllTags(ctx context.Context) ([]string, error) {
	all, err := c.kv.HGetAll(ctx, clubTagIndexKey)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(all))
	for _, original := range all {
		tags = append(tags, original)
	}
	return tags, nil
}

// Search runs the fuzzy tag indexer directly, for callers building a
// ranked disambiguation list rather than a single resolved club.
func (c *Cache) Search(q string, limit int) []search.Match[*Club] {
	return c.index.Search(q, limit)
}
