package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/leadscope/leadscope/internal/domain"
)

// ResultArchive persists terminal qualification results. A nil archive
// disables persistence; the pipeline treats saves as best-effort.
type ResultArchive interface {
	// SaveResult stores (or replaces) the result for a run/domain pair.
	SaveResult(ctx context.Context, runID uuid.UUID, result *domain.QualificationResult) error
}

// DedupStore deduplicates work within a qualification run, so a domain
// listed twice (or a redelivered intake message) is enriched once.
type DedupStore interface {
	// AcquireLock attempts to claim a run/domain pair. Returns true on the
	// first claim, false for duplicates.
	AcquireLock(ctx context.Context, runID uuid.UUID, domainName string) (bool, error)

	// ReleaseLock keeps the claim with a TTL for eventual cleanup.
	ReleaseLock(ctx context.Context, runID uuid.UUID, domainName string) error
}
