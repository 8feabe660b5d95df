// Package enrich fetches external content for prospect domains. Every fetch
// is guarded by the per-host circuit breaker and the outbound rate limiter,
// classified on failure, and backed by the domain-analysis cache.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/breaker"
	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/metrics"
	"github.com/leadscope/leadscope/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

// Config bounds the fetch stage.
type Config struct {
	// Timeout is the per-call deadline.
	Timeout time.Duration
	// Attempts is the in-stage attempt bound for retriable failures.
	Attempts int
	// RetryDelay is the linear spacing between in-stage attempts.
	RetryDelay time.Duration
	// MinContentLength is the smallest body accepted as valid content.
	MinContentLength int
	// Scheme overrides the request scheme (tests use http).
	Scheme string
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = 64
	}
	if c.Scheme == "" {
		c.Scheme = "https"
	}
}

// Fetcher retrieves content for one domain at a time.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	breaker *breaker.Registry
	limiter *ratelimit.Limiter
	cache   *cache.Cache[*domain.DomainContent]
	logger  *zap.Logger
}

// NewFetcher creates a Fetcher. The breaker, limiter and cache are shared
// with the rest of the pipeline.
func NewFetcher(
	cfg Config,
	br *breaker.Registry,
	limiter *ratelimit.Limiter,
	contentCache *cache.Cache[*domain.DomainContent],
	logger *zap.Logger,
) *Fetcher {
	cfg.applyDefaults()
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: br,
		limiter: limiter,
		cache:   contentCache,
		logger:  logger,
	}
}

// Fetch returns the content for domainName, consulting the cache first.
// Breaker and limiter refusals are returned as non-retriable categorized
// errors without touching the network. Transient fetch failures are retried
// in-stage; on exhaustion the breaker records a failure and the last error
// is returned. Callers substitute Fallback so a run never has gaps.
func (f *Fetcher) Fetch(ctx context.Context, domainName, identity string) (*domain.DomainContent, error) {
	key := cache.Key("domain-analysis", domainName)
	if content, ok := f.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("domain-analysis").Inc()
		return content, nil
	}
	metrics.CacheMisses.WithLabelValues("domain-analysis").Inc()

	// Limiter first: CanAttempt consumes the half-open probe slot, so no
	// guard that can refuse the call may run after it.
	res := f.limiter.CheckLimit(ratelimit.CategoryDomainAnalysis+":"+identity, ratelimit.CategoryLimit(ratelimit.CategoryDomainAnalysis))
	if !res.Allowed {
		metrics.RateLimitDenials.WithLabelValues(ratelimit.CategoryDomainAnalysis).Inc()
		return nil, &domain.PipelineError{
			Category:  domain.CategoryRateLimited,
			Retriable: false,
			Err:       fmt.Errorf("domain analysis rate limit reached, retry in %ds", res.RetryAfter),
		}
	}

	if !f.breaker.CanAttempt(domainName) {
		f.logger.Warn("Fetch refused by open circuit", zap.String("domain", domainName))
		return nil, &domain.PipelineError{
			Category:  domain.CategoryCircuitOpen,
			Retriable: false,
			Err:       fmt.Errorf("circuit open for %s", domainName),
		}
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		content, err := f.doFetch(ctx, domainName)
		if err == nil {
			f.breaker.RecordSuccess(domainName)
			f.cache.Set(key, content, cache.TTLDomainAnalysis)
			metrics.FetchesTotal.WithLabelValues("success").Inc()
			return content, nil
		}
		lastErr = err

		var pe *domain.PipelineError
		if errors.As(err, &pe) {
			metrics.FetchesTotal.WithLabelValues(string(pe.Category)).Inc()
			if !pe.Retriable {
				break
			}
		}

		f.logger.Warn("Fetch attempt failed",
			zap.String("domain", domainName),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < f.cfg.Attempts {
			select {
			case <-ctx.Done():
				// Giving up mid-stage is still a failed outcome; the breaker
				// must hear it or a half-open probe would leak.
				f.breaker.RecordFailure(domainName)
				return nil, &domain.PipelineError{Category: domain.CategoryTimeout, Retriable: true, Err: ctx.Err()}
			case <-time.After(f.cfg.RetryDelay):
			}
		}
	}

	f.breaker.RecordFailure(domainName)
	return nil, lastErr
}

// doFetch performs one HTTP GET and classifies the outcome.
func (f *Fetcher) doFetch(ctx context.Context, domainName string) (*domain.DomainContent, error) {
	url := f.cfg.Scheme + "://" + domainName

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.PipelineError{Category: domain.CategoryNetwork, Retriable: false, Err: err}
	}
	req.Header.Set("User-Agent", "leadscope/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		category := domain.CategoryNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			category = domain.CategoryTimeout
		}
		return nil, &domain.PipelineError{Category: category, Retriable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.PipelineError{
			Category:   domain.CategoryHTTP,
			StatusCode: resp.StatusCode,
			// 4xx client errors cannot succeed on retry.
			Retriable: resp.StatusCode < 400 || resp.StatusCode >= 500,
			Err:       fmt.Errorf("fetch %s: unexpected status", domainName),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.PipelineError{Category: domain.CategoryNetwork, Retriable: true, Err: err}
	}

	text := strings.TrimSpace(string(body))
	if len(text) < f.cfg.MinContentLength {
		return nil, &domain.PipelineError{
			Category:  domain.CategoryInvalidContent,
			Retriable: false,
			Err:       fmt.Errorf("fetch %s: body too short (%d bytes)", domainName, len(text)),
		}
	}

	return &domain.DomainContent{
		Domain:      domainName,
		CompanyName: CompanyNameFromDomain(domainName),
		Title:       extractTitle(text),
		Content:     text,
		StatusCode:  resp.StatusCode,
		FetchedAt:   time.Now(),
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// Fallback derives a deterministic, non-empty content record from the
// domain name alone, used when every fetch attempt failed.
func Fallback(domainName string) *domain.DomainContent {
	name := CompanyNameFromDomain(domainName)
	return &domain.DomainContent{
		Domain:       domainName,
		CompanyName:  name,
		Content:      fmt.Sprintf("%s (%s). No site content was available.", name, domainName),
		FetchedAt:    time.Now(),
		FallbackUsed: true,
	}
}

// CompanyNameFromDomain title-cases the registrable label of a domain:
// "acme-corp.io" becomes "Acme Corp".
func CompanyNameFromDomain(domainName string) string {
	label := strings.TrimPrefix(domainName, "www.")
	if i := strings.IndexByte(label, '.'); i > 0 {
		label = label[:i]
	}
	label = strings.Trim(label, "-_")
	if label == "" {
		return domainName
	}

	words := strings.FieldsFunc(label, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// extractTitle pulls the first <title> element out of an HTML body, if any.
func extractTitle(body string) string {
	lower := strings.ToLower(body)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	open := strings.IndexByte(lower[start:], '>')
	if open < 0 {
		return ""
	}
	rest := body[start+open+1:]
	end := strings.Index(strings.ToLower(rest), "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
