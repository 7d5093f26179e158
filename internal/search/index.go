// Package search implements the trigram-based fuzzy index shared by player
// name lookup and club tag lookup. There is no trigram/fuzzy-match library
// anywhere in the retrieved dependency pack (the one DuckDB-based fuzzy
// matcher seen elsewhere delegates entirely to a SQL extension and cannot
// produce this package's exact overlap/Jaccard/prefix scoring at the
// in-memory layer), so the engine is hand-written on sync/atomic and sort.
package search

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Weights parameterizes the similarity formula so the same trigram engine
// can serve both player search (spec §4.4's exact constants) and club tag
// search (a coarser 0-100 scale) without duplicating the index.
type Weights struct {
	Equal             float64
	PrefixBase        float64
	PrefixScale       float64
	ContainsBase      float64
	ContainsScale     float64
	Threshold         float64
	OverlapMultiplier float64
	CandidatePoolSize int
}

// PlayerWeights reproduces spec §4.4 exactly: equal=3.0, prefix=2.0+|q|/|n|,
// contains=1.0+|q|/|n|, drop ≤0.3, final = overlap + 10×similarity.
func PlayerWeights() Weights {
	return Weights{
		Equal:             3.0,
		PrefixBase:        2.0,
		PrefixScale:       1.0,
		ContainsBase:      1.0,
		ContainsScale:     1.0,
		Threshold:         0.3,
		OverlapMultiplier: 10.0,
		CandidatePoolSize: 50,
	}
}

// ClubWeights scores club tags on a coarser 0-100 scale, used when the
// caller wants tag matches ranked with more headroom between tiers than
// the player scorer's 0-3 range gives.
func ClubWeights() Weights {
	return Weights{
		Equal:             100.0,
		PrefixBase:        50.0,
		PrefixScale:       49.0,
		ContainsBase:      10.0,
		ContainsScale:     39.0,
		Threshold:         5.0,
		OverlapMultiplier: 100.0,
		CandidatePoolSize: 50,
	}
}

// Scorer describes how to extract the searchable text fields of a record.
type Scorer[T any] interface {
	// Fields returns the name and aliases to index and match against (e.g.
	// canonical name + steam/psn/xbox names for a player, or just the tag
	// for a club). Search lowercases them and cuts them at `#` itself when
	// scoring.
	Fields(item T) []string
}

// Match is one scored search result.
type Match[T any] struct {
	Record     T
	Similarity float64
	Overlap    int
	Score      float64
}

type indexedRecord[T any] struct {
	id     string
	record T
	fields []string
	order  int
}

type state[T any] struct {
	trigrams map[string]map[string]struct{} // trigram -> set(id)
	records  map[string]*indexedRecord[T]
	ready    bool
}

// Index is a generic, atomically-swapped trigram search index. Build is
// safe to call concurrently with Search; readers always see either the old
// or the new index, never a partial one.
type Index[T any] struct {
	scorer  Scorer[T]
	weights Weights
	current atomic.Pointer[state[T]]
}

// New creates an empty, not-yet-ready index using the given scorer and
// weight profile (PlayerWeights or ClubWeights, or a custom Weights value).
func New[T any](scorer Scorer[T], weights Weights) *Index[T] {
	idx := &Index[T]{scorer: scorer, weights: weights}
	idx.current.Store(&state[T]{
		trigrams: make(map[string]map[string]struct{}),
		records:  make(map[string]*indexedRecord[T]),
	})
	return idx
}

// IsReady reports whether at least one successful Build has completed.
func (idx *Index[T]) IsReady() bool {
	return idx.current.Load().ready
}

// Build replaces the live index with a fresh one constructed from items,
// keyed by id(item). The old index remains valid for any in-flight Search
// call until this swap completes.
func (idx *Index[T]) Build(items []T, idOf func(T) string) {
	next := &state[T]{
		trigrams: make(map[string]map[string]struct{}),
		records:  make(map[string]*indexedRecord[T], len(items)),
		ready:    true,
	}

	for i, item := range items {
		id := idOf(item)
		fields := idx.scorer.Fields(item)
		rec := &indexedRecord[T]{id: id, record: item, fields: fields, order: i}
		next.records[id] = rec

		seen := make(map[string]struct{})
		for _, f := range fields {
			for tg := range trigrams(f) {
				if _, dup := seen[tg]; dup {
					continue
				}
				seen[tg] = struct{}{}
				set, ok := next.trigrams[tg]
				if !ok {
					set = make(map[string]struct{})
					next.trigrams[tg] = set
				}
				set[id] = struct{}{}
			}
		}
	}

	idx.current.Store(next)
}

// Search returns up to limit matches for q, ranked by final score
// (overlap + OverlapMultiplier×similarity), ties broken by insertion order.
func (idx *Index[T]) Search(q string, limit int) []Match[T] {
	st := idx.current.Load()
	if !st.ready || limit <= 0 {
		return nil
	}

	qTrigrams := trigrams(q)
	if len(qTrigrams) == 0 {
		return nil
	}

	overlap := make(map[string]int)
	for tg := range qTrigrams {
		for id := range st.trigrams[tg] {
			overlap[id]++
		}
	}
	if len(overlap) == 0 {
		return nil
	}

	type candidate struct {
		id      string
		overlap int
	}
	candidates := make([]candidate, 0, len(overlap))
	for id, n := range overlap {
		candidates = append(candidates, candidate{id: id, overlap: n})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return st.records[candidates[i].id].order < st.records[candidates[j].id].order
	})

	poolSize := idx.weights.CandidatePoolSize
	if poolSize <= 0 {
		poolSize = 50
	}
	if len(candidates) > poolSize {
		candidates = candidates[:poolSize]
	}

	qNorm := normalize(q)
	matches := make([]Match[T], 0, len(candidates))
	for _, c := range candidates {
		rec := st.records[c.id]
		best := 0.0
		for _, field := range rec.fields {
			s := idx.weights.similarity(qNorm, normalize(field), qTrigrams)
			if s > best {
				best = s
			}
		}
		if best <= idx.weights.Threshold {
			continue
		}
		final := float64(c.overlap) + idx.weights.OverlapMultiplier*best
		matches = append(matches, Match[T]{Record: rec.record, Similarity: best, Overlap: c.overlap, Score: final})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func (w Weights) similarity(q, field string, qTrigrams map[string]struct{}) float64 {
	switch {
	case field == q:
		return w.Equal
	case strings.HasPrefix(field, q) && len(field) > 0:
		return w.PrefixBase + w.PrefixScale*float64(len(q))/float64(len(field))
	case strings.Contains(field, q) && len(field) > 0:
		return w.ContainsBase + w.ContainsScale*float64(len(q))/float64(len(field))
	default:
		return jaccard(qTrigrams, trigrams(field))
	}
}

// normalize lowercases and trims the substring before '#', matching the
// canonical-name convention used for player and club records alike.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return s
}

// trigrams lowercases, strips non-alphanumerics, pads with single
// leading/trailing spaces, then extracts every 3-character window.
func trigrams(s string) map[string]struct{} {
	var sb strings.Builder
	sb.WriteByte(' ')
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(' ')
	padded := sb.String()

	out := make(map[string]struct{})
	for i := 0; i+3 <= len(padded); i++ {
		out[padded[i:i+3]] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tg := range a {
		if _, ok := b[tg]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
