package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansJoinTheTree(t *testing.T) {
	ctx, root := Start(context.Background(), "analyze", "an-1")
	_, flat := Child(ctx, "flatten")
	flat.End()

	estCtx, est := Child(ctx, "estimate")
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, f := Child(estCtx, "fetch")
			f.Set("platform", "pubmed")
			time.Sleep(time.Millisecond)
			f.End()
		}()
	}
	wg.Wait()
	est.End()
	root.End()

	assert.Equal(t, "an-1", FromContext(estCtx).TraceID)
	phases := root.Phases()
	assert.Len(t, phases, 2)
	assert.Contains(t, phases, "flatten")
	assert.GreaterOrEqual(t, phases["estimate"], int64(1))
	assert.Len(t, est.Phases(), 1, "fetch spans are summed under one name")
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := Start(context.Background(), "x", "")
	s.End()
	d := s.Duration()
	require.Positive(t, d)
	time.Sleep(2 * time.Millisecond)
	s.End()
	assert.Equal(t, d, s.Duration())
}

func TestDetachedChild(t *testing.T) {
	ctx, s := Child(context.Background(), "orphan")
	assert.Same(t, s, FromContext(ctx))
	assert.Empty(t, s.TraceID)
}

func TestLogWritesEverySpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := Start(context.Background(), "analyze", "an-2")
	_, c := Child(ctx, "advise")
	c.Set("trail", 3)
	c.End()
	root.End()
	root.Log(ctx, logger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=analyze")
	assert.Contains(t, lines[1], "parent=analyze")
	assert.Contains(t, lines[1], "trail=3")
}
