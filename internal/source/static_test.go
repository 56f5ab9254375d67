package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

const fixtureYAML = `
platform: crossref
boolean: false
results:
  - query: "crispr[tiab]"
    count: 120
    dois: ["10.1000/a", "10.1000/b"]
  - query: "a  AND   b"
    count: 3
`

func TestParseStaticNormalisesQueries(t *testing.T) {
	s, err := ParseStatic([]byte(fixtureYAML))
	require.NoError(t, err)
	assert.Equal(t, "crossref", s.Platform())
	assert.False(t, s.SupportsBoolean())

	res, err := s.Fetch(context.Background(), query.Term("crispr", query.FieldTiAb))
	require.NoError(t, err)
	assert.Equal(t, estimator.Result{Count: 120, Identifiers: []string{"10.1000/a", "10.1000/b"}}, res)

	res, err = s.Fetch(context.Background(), query.And(query.Term("a", ""), query.Term("b", "")))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
}

func TestParseStaticErrors(t *testing.T) {
	_, err := ParseStatic([]byte("results: [oops"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = ParseStatic([]byte("results:\n  - query: \"(a OR\"\n"))
	assert.Error(t, err)
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	assert.Equal(t, "crossref", s.Platform())

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStaticMissingAndCancelled(t *testing.T) {
	s := NewStatic("", true).Add(query.Term("a", ""), estimator.Result{Count: 1})
	assert.Equal(t, PlatformStatic, s.Platform())

	_, err := s.Fetch(context.Background(), query.Term("b", ""))
	assert.ErrorIs(t, err, apperrors.ErrNoResults)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Fetch(ctx, query.Term("a", ""))
	assert.ErrorIs(t, err, context.Canceled)
}
