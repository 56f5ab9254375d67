package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/analyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/postgres"
)

// Schema creates the analyses table. The full result is kept as JSONB; the
// columns exist for listing and filtering.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS analyses (
		id          UUID PRIMARY KEY,
		platform    TEXT NOT NULL,
		query       TEXT NOT NULL,
		yield       INTEGER NOT NULL,
		yield_range TEXT NOT NULL,
		duration_ms BIGINT NOT NULL,
		result      JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS analyses_platform_created_idx ON analyses (platform, created_at DESC)`,
}

// Postgres is a Store backed by the analyses table.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "history-store"),
	}
}

// Migrate applies the Schema steps not yet recorded for history.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.db.Migrate(ctx, "history", Schema...)
}

func (p *Postgres) Save(ctx context.Context, result *analyzer.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding analysis %s: %w", result.ID, err)
	}
	_, err = p.db.DB.ExecContext(ctx,
		`INSERT INTO analyses (id, platform, query, yield, yield_range, duration_ms, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		result.ID, result.Platform, result.Query, result.Yield, result.Range.String(),
		result.DurationMs, data, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving analysis %s: %w", result.ID, err)
	}
	p.logger.Debug("analysis saved", "analysis_id", result.ID)
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*analyzer.Result, error) {
	var data []byte
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT result FROM analyses WHERE id = $1`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("analysis %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying analysis %s: %w", id, err)
	}
	var res analyzer.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding analysis %s: %w", id, err)
	}
	return &res, nil
}

func (p *Postgres) List(ctx context.Context, opts ListOptions) ([]analyzer.Summary, error) {
	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT id, platform, query, yield, yield_range, created_at
		 FROM analyses
		 WHERE ($1 = '' OR platform = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		opts.Platform, opts.limit(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	out := make([]analyzer.Summary, 0)
	for rows.Next() {
		var s analyzer.Summary
		var rng string
		if err := rows.Scan(&s.ID, &s.Platform, &s.Query, &s.Yield, &rng, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning analysis row: %w", err)
		}
		if err := s.Range.UnmarshalText([]byte(rng)); err != nil {
			return nil, fmt.Errorf("analysis %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
