package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/classifier"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func result(id, platform string, offset int) *analyzer.Result {
	return &analyzer.Result{
		ID:          id,
		Platform:    platform,
		Query:       "q " + id,
		Yield:       100 * offset,
		Range:       classifier.Low,
		Suggestions: []string{"s"},
		CreatedAt:   base.Add(time.Duration(offset) * time.Minute),
	}
}

func TestMemorySaveGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	r := result("a", "pubmed", 1)
	require.NoError(t, m.Save(ctx, r))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, r, got)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrAnalysisNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))
}

func TestMemoryListNewestFirstWithFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	require.NoError(t, m.Save(ctx, result("a", "pubmed", 1)))
	require.NoError(t, m.Save(ctx, result("b", "crossref", 2)))
	require.NoError(t, m.Save(ctx, result("c", "pubmed", 3)))

	all, err := m.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	pubmed, err := m.List(ctx, ListOptions{Platform: "pubmed", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(pubmed))
	assert.Equal(t, classifier.Low, pubmed[0].Range)
}

func TestMemoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	for i := range 3 {
		require.NoError(t, m.Save(ctx, result(fmt.Sprint(i), "pubmed", i)))
	}
	_, err := m.Get(ctx, "0")
	assert.ErrorIs(t, err, apperrors.ErrAnalysisNotFound)

	// Re-saving an ID does not count twice.
	require.NoError(t, m.Save(ctx, result("2", "pubmed", 2)))
	list, err := m.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids(list))
}

func TestListLimitBounds(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ListOptions{}.limit())
	assert.Equal(t, DefaultListLimit, ListOptions{Limit: -3}.limit())
	assert.Equal(t, 7, ListOptions{Limit: 7}.limit())
	assert.Equal(t, MaxListLimit, ListOptions{Limit: MaxListLimit + 1}.limit())
}

func ids(s []analyzer.Summary) []string {
	out := make([]string, len(s))
	for i, x := range s {
		out[i] = x.ID
	}
	return out
}
