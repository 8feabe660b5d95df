// Package score turns enriched domain content into a qualification score by
// calling an external inference capability. Calls are cache-first, rate
// limited and retried with exponential backoff; an exhausted retry budget
// yields a deterministic low-confidence fallback at the call site.
package score

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/metrics"
	"github.com/leadscope/leadscope/internal/ratelimit"
)

// InferenceClient is the external scoring capability. Implementations talk
// to whatever model provider the deployment uses; this package only relies
// on the structured responses.
type InferenceClient interface {
	Score(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error)
	GenerateProfile(ctx context.Context, attrs domain.CompanyAttributes) (*domain.ICPProfile, error)
}

// Config bounds the scoring stage.
type Config struct {
	// Attempts is the in-stage attempt bound.
	Attempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
}

// Scorer wraps an InferenceClient with caching, rate limiting and retries.
type Scorer struct {
	cfg      Config
	client   InferenceClient
	scores   *cache.Cache[*domain.ScoreResponse]
	profiles *cache.Cache[*domain.ICPProfile]
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
}

// NewScorer creates a Scorer sharing the limiter with the rest of the
// pipeline.
func NewScorer(
	cfg Config,
	client InferenceClient,
	scores *cache.Cache[*domain.ScoreResponse],
	profiles *cache.Cache[*domain.ICPProfile],
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) *Scorer {
	cfg.applyDefaults()
	return &Scorer{
		cfg:      cfg,
		client:   client,
		scores:   scores,
		profiles: profiles,
		limiter:  limiter,
		logger:   logger,
	}
}

// Score returns the inference score for content against profile. Identical
// profile+domain pairs collide to one cached response for an hour.
func (s *Scorer) Score(ctx context.Context, identity string, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
	key := cache.Key("inference-response", map[string]any{
		"profile": profile,
		"domain":  content.Domain,
	})
	if resp, ok := s.scores.Get(key); ok {
		metrics.CacheHits.WithLabelValues("inference-response").Inc()
		return resp, nil
	}
	metrics.CacheMisses.WithLabelValues("inference-response").Inc()

	res := s.limiter.CheckLimit(ratelimit.CategoryGeneral+":"+identity, ratelimit.CategoryLimit(ratelimit.CategoryGeneral))
	if !res.Allowed {
		metrics.RateLimitDenials.WithLabelValues(ratelimit.CategoryGeneral).Inc()
		return nil, &domain.PipelineError{
			Category:  domain.CategoryRateLimited,
			Retriable: false,
			Err:       fmt.Errorf("inference rate limit reached, retry in %ds", res.RetryAfter),
		}
	}

	resp, err := s.withRetries(ctx, content.Domain, func() (*domain.ScoreResponse, error) {
		return s.client.Score(ctx, profile, content)
	})
	if err != nil {
		return nil, err
	}

	resp.Score = clampScore(resp.Score)
	s.scores.Set(key, resp, cache.TTLInferenceResponse)
	return resp, nil
}

// GenerateProfile derives an ICP profile from company attributes, cached
// for a day per attribute set.
func (s *Scorer) GenerateProfile(ctx context.Context, identity string, attrs domain.CompanyAttributes) (*domain.ICPProfile, error) {
	key := cache.Key("profile-generation", attrs)
	if profile, ok := s.profiles.Get(key); ok {
		metrics.CacheHits.WithLabelValues("profile-generation").Inc()
		return profile, nil
	}
	metrics.CacheMisses.WithLabelValues("profile-generation").Inc()

	res := s.limiter.CheckLimit(ratelimit.CategoryGeneral+":"+identity, ratelimit.CategoryLimit(ratelimit.CategoryGeneral))
	if !res.Allowed {
		metrics.RateLimitDenials.WithLabelValues(ratelimit.CategoryGeneral).Inc()
		return nil, &domain.PipelineError{
			Category:  domain.CategoryRateLimited,
			Retriable: false,
			Err:       fmt.Errorf("inference rate limit reached, retry in %ds", res.RetryAfter),
		}
	}

	var profile *domain.ICPProfile
	_, err := s.withRetries(ctx, attrs.Name, func() (*domain.ScoreResponse, error) {
		var genErr error
		profile, genErr = s.client.GenerateProfile(ctx, attrs)
		return nil, genErr
	})
	if err != nil {
		return nil, err
	}

	s.profiles.Set(key, profile, cache.TTLProfileGeneration)
	return profile, nil
}

// withRetries runs fn with exponential backoff between attempts, wrapping
// failures as retriable inference errors.
func (s *Scorer) withRetries(ctx context.Context, subject string, fn func() (*domain.ScoreResponse, error)) (*domain.ScoreResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		s.logger.Warn("Inference attempt failed",
			zap.String("subject", subject),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < s.cfg.Attempts {
			delay := s.cfg.BaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, &domain.PipelineError{Category: domain.CategoryTimeout, Retriable: true, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	return nil, &domain.PipelineError{
		Category:  domain.CategoryInference,
		Retriable: true,
		Err:       fmt.Errorf("inference failed after %d attempts: %w", s.cfg.Attempts, lastErr),
	}
}

// FallbackScore is the deterministic low-confidence score used when every
// inference attempt failed.
func FallbackScore(domainName string) *domain.ScoreResponse {
	return &domain.ScoreResponse{
		Score:          50,
		Reasoning:      fmt.Sprintf("Scoring service was unavailable for %s; assigned a neutral default score.", domainName),
		Gaps:           []string{"no inference available"},
		Recommendation: "Re-run qualification once the scoring service recovers.",
		FallbackUsed:   true,
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
