package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/breaker"
	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/enrich"
	"github.com/leadscope/leadscope/internal/ratelimit"
	"github.com/leadscope/leadscope/internal/repository/mock"
	"github.com/leadscope/leadscope/internal/score"
)

type progressRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *progressRecorder) Report(completed, total int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%d/%d %s", completed, total, message))
}

func (r *progressRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

const testPage = `<html><head><title>Acme Corp</title></head><body>` +
	`We build developer tools for mid-market SaaS companies across Europe.` +
	`</body></html>`

func newTestPipeline(t *testing.T, handler http.Handler) (*Pipeline, *mock.InferenceClient, *mock.ResultArchive, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	host := strings.TrimPrefix(srv.URL, "http://")

	logger := zap.NewNop()
	limiter := ratelimit.New()
	br := breaker.NewRegistry(5, time.Minute, logger)

	fetcher := enrich.NewFetcher(enrich.Config{
		Scheme:           "http",
		Timeout:          2 * time.Second,
		Attempts:         2,
		RetryDelay:       time.Millisecond,
		MinContentLength: 1,
	}, br, limiter, cache.New[*domain.DomainContent](cache.DefaultMaxEntries), logger)

	inference := &mock.InferenceClient{}
	scorer := score.NewScorer(score.Config{
		Attempts:  2,
		BaseDelay: time.Millisecond,
	}, inference,
		cache.New[*domain.ScoreResponse](cache.DefaultMaxEntries),
		cache.New[*domain.ICPProfile](cache.DefaultMaxEntries),
		limiter, logger)

	archive := &mock.ResultArchive{}
	p := New(fetcher, scorer, archive, &mock.DedupStore{}, 3, logger)
	return p, inference, archive, host
}

func qualifyPayload(domains ...string) domain.QualifyProspectsPayload {
	return domain.QualifyProspectsPayload{
		RunID:     uuid.New(),
		UserID:    "user-1",
		ProfileID: "profile-1",
		Profile:   domain.ICPProfile{Name: "Mid-market SaaS", Industries: []string{"SaaS"}},
		Domains:   domains,
	}
}

func TestQualifyProspectsFullRun(t *testing.T) {
	p, _, archive, host := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))

	// Two distinct domain strings that resolve to the same test server.
	other := strings.Replace(host, "127.0.0.1", "localhost", 1)
	payload := qualifyPayload(host, other)
	progress := &progressRecorder{}

	out, err := p.QualifyProspects(context.Background(), &domain.Job{Payload: payload}, progress)
	if err != nil {
		t.Fatalf("QualifyProspects: %v", err)
	}

	summary, ok := out.(domain.RunSummary)
	if !ok {
		t.Fatalf("result type = %T, want RunSummary", out)
	}
	if summary.RunID != payload.RunID {
		t.Errorf("RunID = %s, want %s", summary.RunID, payload.RunID)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(summary.Results))
	}
	for _, res := range summary.Results {
		if res.Score != 75 {
			t.Errorf("%s: score = %v, want 75", res.Domain, res.Score)
		}
		if res.FitLevel != domain.FitGood {
			t.Errorf("%s: fit = %s, want GOOD", res.Domain, res.FitLevel)
		}
		if res.FallbackUsed {
			t.Errorf("%s: unexpected fallback", res.Domain)
		}
		if res.Raw.Enrichment == nil || res.Raw.Scoring == nil || res.Raw.Meta == nil {
			t.Errorf("%s: incomplete raw payloads", res.Domain)
		}
	}
	if archive.SavedCount() != 2 {
		t.Errorf("archived = %d, want 2", archive.SavedCount())
	}
	// Initial report plus one per domain.
	if progress.count() != 3 {
		t.Errorf("progress reports = %d, want 3", progress.count())
	}
}

func TestQualifyProspectsFallbackOnFetchFailure(t *testing.T) {
	p, _, _, host := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))

	payload := qualifyPayload(host)
	out, err := p.QualifyProspects(context.Background(), &domain.Job{Payload: payload}, &progressRecorder{})
	if err != nil {
		t.Fatalf("QualifyProspects: %v", err)
	}

	res := out.(domain.RunSummary).Results[0]
	if !res.FallbackUsed {
		t.Error("expected fallback content after fetch failure")
	}
	if res.Raw.Meta == nil || len(res.Raw.Meta.Errors) == 0 {
		t.Error("expected fetch error recorded in meta")
	}
	if res.Raw.Enrichment == nil || !res.Raw.Enrichment.FallbackUsed {
		t.Error("expected fallback enrichment payload")
	}
	// Scoring still ran against the fallback content.
	if res.Score != 75 {
		t.Errorf("score = %v, want 75", res.Score)
	}
}

func TestQualifyProspectsFallbackOnScoreFailure(t *testing.T) {
	p, inference, _, host := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))
	inference.ScoreFn = func(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
		return nil, errors.New("model overloaded")
	}

	payload := qualifyPayload(host)
	out, err := p.QualifyProspects(context.Background(), &domain.Job{Payload: payload}, &progressRecorder{})
	if err != nil {
		t.Fatalf("QualifyProspects: %v", err)
	}

	res := out.(domain.RunSummary).Results[0]
	if res.Score != 50 {
		t.Errorf("score = %v, want neutral 50", res.Score)
	}
	if res.FitLevel != domain.FitFair {
		t.Errorf("fit = %s, want FAIR", res.FitLevel)
	}
	if !res.FallbackUsed {
		t.Error("expected fallback flag after scoring failure")
	}
}

func TestQualifyProspectsDeduplicatesDomains(t *testing.T) {
	p, _, _, host := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))

	payload := qualifyPayload(host, host)
	out, err := p.QualifyProspects(context.Background(), &domain.Job{Payload: payload}, &progressRecorder{})
	if err != nil {
		t.Fatalf("QualifyProspects: %v", err)
	}

	results := out.(domain.RunSummary).Results
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	var processed, skipped int
	for _, res := range results {
		if res.Raw.Enrichment != nil {
			processed++
		} else {
			skipped++
		}
	}
	if processed != 1 || skipped != 1 {
		t.Errorf("processed = %d, skipped = %d, want 1 and 1", processed, skipped)
	}
}

func TestQualifyProspectsRejectsBadPayloads(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, http.NotFoundHandler())

	_, err := p.QualifyProspects(context.Background(), &domain.Job{
		Payload: domain.AnalyzeDomainPayload{Domain: "acme.io"},
	}, &progressRecorder{})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("wrong payload type: err = %v, want ErrInvalidPayload", err)
	}

	_, err = p.QualifyProspects(context.Background(), &domain.Job{
		Payload: qualifyPayload(),
	}, &progressRecorder{})
	if !errors.Is(err, domain.ErrEmptyDomainList) {
		t.Errorf("empty domains: err = %v, want ErrEmptyDomainList", err)
	}
}

func TestAnalyzeDomain(t *testing.T) {
	p, _, _, host := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))

	out, err := p.AnalyzeDomain(context.Background(), &domain.Job{
		Payload:     domain.AnalyzeDomainPayload{Domain: host, UserID: "user-1"},
		Attempts:    1,
		MaxAttempts: 3,
	}, &progressRecorder{})
	if err != nil {
		t.Fatalf("AnalyzeDomain: %v", err)
	}

	content, ok := out.(*domain.DomainContent)
	if !ok {
		t.Fatalf("result type = %T, want *DomainContent", out)
	}
	if content.Title != "Acme Corp" {
		t.Errorf("title = %q, want %q", content.Title, "Acme Corp")
	}
}

func TestAnalyzeDomainRetriableFailurePropagates(t *testing.T) {
	p, _, _, host := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	job := &domain.Job{
		Payload:     domain.AnalyzeDomainPayload{Domain: host, UserID: "user-1"},
		Attempts:    1,
		MaxAttempts: 3,
	}
	_, err := p.AnalyzeDomain(context.Background(), job, &progressRecorder{})
	if err == nil {
		t.Fatal("expected error while attempts remain")
	}
	if !domain.IsRetriable(err) {
		t.Errorf("error should stay retriable for the engine: %v", err)
	}
}

func TestAnalyzeDomainFallsBackOnLastAttempt(t *testing.T) {
	p, _, _, host := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	job := &domain.Job{
		Payload:     domain.AnalyzeDomainPayload{Domain: host, UserID: "user-1"},
		Attempts:    3,
		MaxAttempts: 3,
	}
	out, err := p.AnalyzeDomain(context.Background(), job, &progressRecorder{})
	if err != nil {
		t.Fatalf("last attempt should degrade, not fail: %v", err)
	}
	content := out.(*domain.DomainContent)
	if !content.FallbackUsed {
		t.Error("expected fallback content on exhausted budget")
	}
	if content.Domain != host {
		t.Errorf("fallback domain = %q, want %q", content.Domain, host)
	}
}

func TestGenerateProfile(t *testing.T) {
	p, inference, _, _ := newTestPipeline(t, http.NotFoundHandler())
	inference.GenerateProfileFn = func(ctx context.Context, attrs domain.CompanyAttributes) (*domain.ICPProfile, error) {
		return &domain.ICPProfile{Name: "ICP for " + attrs.Name}, nil
	}

	out, err := p.GenerateProfile(context.Background(), &domain.Job{
		Payload: domain.GenerateProfilePayload{
			CompanyID:  "co-1",
			UserID:     "user-1",
			Attributes: domain.CompanyAttributes{Name: "Acme", Industry: "SaaS"},
		},
	}, &progressRecorder{})
	if err != nil {
		t.Fatalf("GenerateProfile: %v", err)
	}

	profile := out.(*domain.ICPProfile)
	if profile.Name != "ICP for Acme" {
		t.Errorf("profile name = %q", profile.Name)
	}

	_, err = p.GenerateProfile(context.Background(), &domain.Job{
		Payload: domain.QualifyProspectsPayload{},
	}, &progressRecorder{})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}
