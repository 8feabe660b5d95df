package score_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/ratelimit"
	"github.com/leadscope/leadscope/internal/repository/mock"
	"github.com/leadscope/leadscope/internal/score"
)

func newTestScorer(client *mock.InferenceClient) *score.Scorer {
	return score.NewScorer(
		score.Config{Attempts: 3, BaseDelay: time.Millisecond},
		client,
		cache.New[*domain.ScoreResponse](100),
		cache.New[*domain.ICPProfile](100),
		ratelimit.New(),
		zap.NewNop(),
	)
}

func testContent(d string) *domain.DomainContent {
	return &domain.DomainContent{Domain: d, CompanyName: "Acme", Content: "widgets"}
}

func testProfile() domain.ICPProfile {
	return domain.ICPProfile{ID: "p1", Name: "Mid-market manufacturers"}
}

func TestScorer_Score(t *testing.T) {
	client := &mock.InferenceClient{
		ScoreFn: func(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
			return &domain.ScoreResponse{Score: 85, Reasoning: "strong industry match"}, nil
		},
	}

	s := newTestScorer(client)
	resp, err := s.Score(context.Background(), "u1", testProfile(), testContent("acme.io"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if resp.Score != 85 {
		t.Errorf("expected score 85, got %f", resp.Score)
	}
}

// Test: identical profile+domain pairs are served from cache.
func TestScorer_CachesResponses(t *testing.T) {
	var calls atomic.Int32
	client := &mock.InferenceClient{
		ScoreFn: func(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
			calls.Add(1)
			return &domain.ScoreResponse{Score: 70}, nil
		},
	}

	s := newTestScorer(client)
	for i := 0; i < 3; i++ {
		if _, err := s.Score(context.Background(), "u1", testProfile(), testContent("acme.io")); err != nil {
			t.Fatalf("Score %d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 inference call, got %d", calls.Load())
	}

	// A different domain misses the cache.
	s.Score(context.Background(), "u1", testProfile(), testContent("other.io"))
	if calls.Load() != 2 {
		t.Errorf("expected 2 inference calls after new domain, got %d", calls.Load())
	}
}

// Test: transient inference failures are retried in-stage.
func TestScorer_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := &mock.InferenceClient{
		ScoreFn: func(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("model overloaded")
			}
			return &domain.ScoreResponse{Score: 60}, nil
		},
	}

	s := newTestScorer(client)
	resp, err := s.Score(context.Background(), "u1", testProfile(), testContent("acme.io"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if resp.Score != 60 || calls.Load() != 3 {
		t.Errorf("expected success on third call, got score=%f calls=%d", resp.Score, calls.Load())
	}
}

// Test: exhausted retries surface a retriable INFERENCE_ERROR.
func TestScorer_ExhaustedRetries(t *testing.T) {
	client := &mock.InferenceClient{
		ScoreFn: func(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
			return nil, errors.New("model down")
		},
	}

	s := newTestScorer(client)
	_, err := s.Score(context.Background(), "u1", testProfile(), testContent("acme.io"))
	if err == nil {
		t.Fatal("expected error")
	}
	if cat, _ := domain.CategoryOf(err); cat != domain.CategoryInference {
		t.Errorf("expected INFERENCE_ERROR, got %v", err)
	}
	if !domain.IsRetriable(err) {
		t.Error("inference failures should stay retriable for the engine")
	}
}

// Test: out-of-range model scores are clamped to [0,100].
func TestScorer_ClampsScore(t *testing.T) {
	client := &mock.InferenceClient{
		ScoreFn: func(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
			return &domain.ScoreResponse{Score: 140}, nil
		},
	}

	s := newTestScorer(client)
	resp, err := s.Score(context.Background(), "u1", testProfile(), testContent("acme.io"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if resp.Score != 100 {
		t.Errorf("expected clamped score 100, got %f", resp.Score)
	}
}

func TestScorer_GenerateProfileCached(t *testing.T) {
	var calls atomic.Int32
	client := &mock.InferenceClient{
		GenerateProfileFn: func(ctx context.Context, attrs domain.CompanyAttributes) (*domain.ICPProfile, error) {
			calls.Add(1)
			return &domain.ICPProfile{Name: "Generated for " + attrs.Name}, nil
		},
	}

	s := newTestScorer(client)
	attrs := domain.CompanyAttributes{Name: "Acme", Industry: "manufacturing"}

	for i := 0; i < 2; i++ {
		profile, err := s.GenerateProfile(context.Background(), "u1", attrs)
		if err != nil {
			t.Fatalf("GenerateProfile: %v", err)
		}
		if profile.Name != "Generated for Acme" {
			t.Errorf("unexpected profile: %+v", profile)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 generation call, got %d", calls.Load())
	}
}

func TestFallbackScore(t *testing.T) {
	fb := score.FallbackScore("acme.io")
	if !fb.FallbackUsed {
		t.Error("fallback must set FallbackUsed")
	}
	if fb.Score != 50 {
		t.Errorf("expected neutral score 50, got %f", fb.Score)
	}
	if domain.FitLevelForScore(fb.Score) != domain.FitFair {
		t.Errorf("expected FAIR fit for fallback score")
	}
}

func TestFitLevelForScore(t *testing.T) {
	cases := map[float64]domain.FitLevel{
		95: domain.FitExcellent,
		80: domain.FitExcellent,
		79: domain.FitGood,
		60: domain.FitGood,
		45: domain.FitFair,
		10: domain.FitPoor,
	}
	for scoreVal, want := range cases {
		if got := domain.FitLevelForScore(scoreVal); got != want {
			t.Errorf("FitLevelForScore(%v) = %s, want %s", scoreVal, got, want)
		}
	}
}
