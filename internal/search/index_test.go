package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	ID      string
	Name    string
	Aliases []string
}

type fakeScorer struct{}

func (fakeScorer) Fields(p fakePlayer) []string {
	fields := []string{p.Name}
	return append(fields, p.Aliases...)
}

func buildIndex(t *testing.T, players []fakePlayer) *Index[fakePlayer] {
	t.Helper()
	idx := New[fakePlayer](fakeScorer{}, PlayerWeights())
	idx.Build(players, func(p fakePlayer) string { return p.ID })
	return idx
}

func TestIndex_NotReadyBeforeBuild(t *testing.T) {
	idx := New[fakePlayer](fakeScorer{}, PlayerWeights())
	assert.False(t, idx.IsReady())
	assert.Nil(t, idx.Search("anything", 5))
}

func TestIndex_ExactMatch(t *testing.T) {
	idx := buildIndex(t, []fakePlayer{
		{ID: "1", Name: "Player#1234"},
		{ID: "2", Name: "OtherGuy#5678"},
	})
	require.True(t, idx.IsReady())

	matches := idx.Search("player", 5)
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].Record.ID)
	assert.Equal(t, 3.0, matches[0].Similarity)
}

func TestIndex_PrefixBeatsContains(t *testing.T) {
	idx := buildIndex(t, []fakePlayer{
		{ID: "1", Name: "Abcdef#0001"},
		{ID: "2", Name: "XAbc#0002"},
	})

	matches := idx.Search("abc", 5)
	require.NotEmpty(t, matches)
	assert.Equal(t, "1", matches[0].Record.ID)
}

func TestIndex_DropsBelowThreshold(t *testing.T) {
	idx := buildIndex(t, []fakePlayer{
		{ID: "1", Name: "CompletelyUnrelated#0001"},
	})
	matches := idx.Search("zzz", 5)
	assert.Empty(t, matches)
}

func TestIndex_SearchesAliases(t *testing.T) {
	idx := buildIndex(t, []fakePlayer{
		{ID: "1", Name: "MainHandle#0001", Aliases: []string{"steamalias"}},
	})
	matches := idx.Search("steamalias", 5)
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].Record.ID)
}

func TestIndex_EmptyQueryReturnsNoMatches(t *testing.T) {
	idx := buildIndex(t, []fakePlayer{{ID: "1", Name: "Player#0001"}})
	assert.Empty(t, idx.Search("", 5))
}

func TestIndex_RebuildSwapsAtomically(t *testing.T) {
	idx := buildIndex(t, []fakePlayer{{ID: "1", Name: "Old#0001"}})
	require.Len(t, idx.Search("old", 5), 1)

	idx.Build([]fakePlayer{{ID: "2", Name: "New#0002"}}, func(p fakePlayer) string { return p.ID })
	assert.Empty(t, idx.Search("old", 5))
	require.Len(t, idx.Search("new", 5), 1)
}

func TestIndex_LimitTruncates(t *testing.T) {
	players := []fakePlayer{
		{ID: "1", Name: "Abc#0001"},
		{ID: "2", Name: "Abd#0002"},
		{ID: "3", Name: "Abe#0003"},
	}
	idx := buildIndex(t, players)
	matches := idx.Search("ab", 2)
	assert.Len(t, matches, 2)
}
