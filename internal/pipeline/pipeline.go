// Package pipeline binds the enrichment and scoring stages into the job
// processors the engine runs: qualify-prospects, analyze-domain and
// generate-profile.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/engine"
	"github.com/leadscope/leadscope/internal/enrich"
	"github.com/leadscope/leadscope/internal/repository"
	"github.com/leadscope/leadscope/internal/score"
)

// Pipeline orchestrates fetch-then-score per domain. Archive and dedup are
// optional collaborators; nil disables them.
type Pipeline struct {
	fetcher *enrich.Fetcher
	scorer  *score.Scorer
	archive repository.ResultArchive
	dedup   repository.DedupStore
	fanout  int
	logger  *zap.Logger
}

// New creates a Pipeline. fanout bounds how many domains of one run are
// processed concurrently.
func New(
	fetcher *enrich.Fetcher,
	scorer *score.Scorer,
	archive repository.ResultArchive,
	dedup repository.DedupStore,
	fanout int,
	logger *zap.Logger,
) *Pipeline {
	if fanout <= 0 {
		fanout = 5
	}
	return &Pipeline{
		fetcher: fetcher,
		scorer:  scorer,
		archive: archive,
		dedup:   dedup,
		fanout:  fanout,
		logger:  logger,
	}
}

// Register binds all processors onto the engine.
func (p *Pipeline) Register(e *engine.Engine) {
	e.RegisterProcessor(domain.JobQualifyProspects, p.QualifyProspects)
	e.RegisterProcessor(domain.JobAnalyzeDomain, p.AnalyzeDomain)
	e.RegisterProcessor(domain.JobGenerateProfile, p.GenerateProfile)
}

// QualifyProspects runs the full pipeline for every domain in the run.
// Per-domain failures degrade to fallback results; the run itself only
// fails on an invalid payload, so the caller always receives one result
// per input domain.
func (p *Pipeline) QualifyProspects(ctx context.Context, job *domain.Job, progress engine.ProgressReporter) (any, error) {
	payload, ok := job.Payload.(domain.QualifyProspectsPayload)
	if !ok {
		return nil, domain.ErrInvalidPayload
	}
	if len(payload.Domains) == 0 {
		return nil, domain.ErrEmptyDomainList
	}

	total := len(payload.Domains)
	results := make([]domain.QualificationResult, total)
	progress.Report(0, total, "starting qualification run")

	var done int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fanout)

	for i, d := range payload.Domains {
		i, d := i, d
		g.Go(func() error {
			results[i] = p.qualifyDomain(gctx, payload, d)
			n := int(atomic.AddInt32(&done, 1))
			progress.Report(n, total, d)

			if p.archive != nil {
				if err := p.archive.SaveResult(gctx, payload.RunID, &results[i]); err != nil {
					p.logger.Warn("Failed to archive result",
						zap.String("run_id", payload.RunID.String()),
						zap.String("domain", d),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	}
	g.Wait()

	return domain.RunSummary{
		RunID:     payload.RunID,
		ProfileID: payload.ProfileID,
		Results:   results,
	}, nil
}

// qualifyDomain produces exactly one result for a domain, falling back to
// deterministic defaults whenever a stage fails irrecoverably.
func (p *Pipeline) qualifyDomain(ctx context.Context, payload domain.QualifyProspectsPayload, domainName string) domain.QualificationResult {
	start := time.Now()
	meta := domain.ProcessingMeta{}

	if p.dedup != nil {
		acquired, err := p.dedup.AcquireLock(ctx, payload.RunID, domainName)
		if err != nil {
			meta.Errors = append(meta.Errors, "dedup: "+err.Error())
		} else if !acquired {
			p.logger.Debug("Duplicate domain in run, skipping",
				zap.String("run_id", payload.RunID.String()),
				zap.String("domain", domainName),
			)
			meta.DurationMs = time.Since(start).Milliseconds()
			return domain.QualificationResult{
				Domain:         domainName,
				Score:          0,
				FitLevel:       domain.FitPoor,
				Reasoning:      "Domain already processed earlier in this run.",
				Recommendation: "See the first occurrence of this domain for its result.",
				Raw:            domain.RawPayloads{Meta: &meta},
			}
		}
	}

	content, err := p.fetcher.Fetch(ctx, domainName, payload.UserID)
	if err != nil {
		meta.Errors = append(meta.Errors, err.Error())
		content = enrich.Fallback(domainName)
	}

	scoreResp, err := p.scorer.Score(ctx, payload.UserID, payload.Profile, content)
	if err != nil {
		meta.Errors = append(meta.Errors, err.Error())
		scoreResp = score.FallbackScore(domainName)
	}

	if p.dedup != nil {
		_ = p.dedup.ReleaseLock(ctx, payload.RunID, domainName)
	}

	meta.DurationMs = time.Since(start).Milliseconds()

	return domain.QualificationResult{
		Domain:          domainName,
		Score:           scoreResp.Score,
		FitLevel:        domain.FitLevelForScore(scoreResp.Score),
		Reasoning:       scoreResp.Reasoning,
		MatchedCriteria: scoreResp.Matched,
		Gaps:            scoreResp.Gaps,
		Recommendation:  scoreResp.Recommendation,
		FallbackUsed:    content.FallbackUsed || scoreResp.FallbackUsed,
		Raw: domain.RawPayloads{
			Enrichment: content,
			Scoring:    scoreResp,
			Meta:       &meta,
		},
	}
}

// AnalyzeDomain enriches a single domain. Retriable failures propagate to
// the engine's backoff until the attempt budget is spent, after which the
// job completes degraded with the deterministic fallback.
func (p *Pipeline) AnalyzeDomain(ctx context.Context, job *domain.Job, progress engine.ProgressReporter) (any, error) {
	payload, ok := job.Payload.(domain.AnalyzeDomainPayload)
	if !ok {
		return nil, domain.ErrInvalidPayload
	}

	content, err := p.fetcher.Fetch(ctx, payload.Domain, payload.UserID)
	if err != nil {
		if domain.IsRetriable(err) && job.Attempts >= job.MaxAttempts {
			p.logger.Warn("Analysis budget exhausted, completing with fallback",
				zap.String("domain", payload.Domain),
				zap.Error(err),
			)
			return enrich.Fallback(payload.Domain), nil
		}
		return nil, err
	}
	return content, nil
}

// GenerateProfile derives an ICP profile from company attributes.
func (p *Pipeline) GenerateProfile(ctx context.Context, job *domain.Job, progress engine.ProgressReporter) (any, error) {
	payload, ok := job.Payload.(domain.GenerateProfilePayload)
	if !ok {
		return nil, domain.ErrInvalidPayload
	}
	return p.scorer.GenerateProfile(ctx, payload.UserID, payload.Attributes)
}
