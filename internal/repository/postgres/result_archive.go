package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/repository"
)

var _ repository.ResultArchive = (*pgResultArchive)(nil)

type pgResultArchive struct {
	pool *pgxpool.Pool
}

// NewResultArchive creates a PostgreSQL-backed archive of qualification
// results.
func NewResultArchive(pool *pgxpool.Pool) repository.ResultArchive {
	return &pgResultArchive{pool: pool}
}

func (r *pgResultArchive) SaveResult(ctx context.Context, runID uuid.UUID, result *domain.QualificationResult) error {
	raw, err := json.Marshal(result.Raw)
	if err != nil {
		return fmt.Errorf("postgres: marshal raw payloads: %w", err)
	}
	matched, err := json.Marshal(result.MatchedCriteria)
	if err != nil {
		return fmt.Errorf("postgres: marshal matched criteria: %w", err)
	}
	gaps, err := json.Marshal(result.Gaps)
	if err != nil {
		return fmt.Errorf("postgres: marshal gaps: %w", err)
	}

	query := `
		INSERT INTO qualification_results
			(run_id, domain, score, fit_level, reasoning, matched_criteria,
			 gaps, recommendation, fallback_used, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, domain) DO UPDATE
		SET score = EXCLUDED.score, fit_level = EXCLUDED.fit_level,
		    reasoning = EXCLUDED.reasoning, matched_criteria = EXCLUDED.matched_criteria,
		    gaps = EXCLUDED.gaps, recommendation = EXCLUDED.recommendation,
		    fallback_used = EXCLUDED.fallback_used, raw = EXCLUDED.raw`

	_, err = r.pool.Exec(ctx, query,
		runID, result.Domain, result.Score, result.FitLevel, result.Reasoning,
		matched, gaps, result.Recommendation, result.FallbackUsed, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: save result: %w", err)
	}
	return nil
}
