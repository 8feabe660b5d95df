package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/repository"
	"github.com/leadscope/leadscope/internal/score"
)

// ---- ResultArchive mock ----

var _ repository.ResultArchive = (*ResultArchive)(nil)

// ResultArchive is a test double for repository.ResultArchive.
type ResultArchive struct {
	mu sync.Mutex

	SaveResultFn func(ctx context.Context, runID uuid.UUID, result *domain.QualificationResult) error

	// Recorded calls for assertions.
	Saved []SavedResult
}

type SavedResult struct {
	RunID  uuid.UUID
	Result *domain.QualificationResult
}

func (m *ResultArchive) SaveResult(ctx context.Context, runID uuid.UUID, result *domain.QualificationResult) error {
	m.mu.Lock()
	m.Saved = append(m.Saved, SavedResult{RunID: runID, Result: result})
	m.mu.Unlock()
	if m.SaveResultFn != nil {
		return m.SaveResultFn(ctx, runID, result)
	}
	return nil
}

// SavedCount returns how many results were archived.
func (m *ResultArchive) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Saved)
}

// ---- DedupStore mock ----

var _ repository.DedupStore = (*DedupStore)(nil)

// DedupStore is a test double for repository.DedupStore. The default
// behaviour claims each run/domain pair exactly once, like the Redis
// implementation.
type DedupStore struct {
	mu sync.Mutex

	AcquireLockFn func(ctx context.Context, runID uuid.UUID, domainName string) (bool, error)
	ReleaseLockFn func(ctx context.Context, runID uuid.UUID, domainName string) error

	claimed      map[string]bool
	AcquireCalls []string
	ReleaseCalls []string
}

func (m *DedupStore) AcquireLock(ctx context.Context, runID uuid.UUID, domainName string) (bool, error) {
	key := runID.String() + ":" + domainName

	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, key)
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	first := !m.claimed[key]
	m.claimed[key] = true
	m.mu.Unlock()

	if m.AcquireLockFn != nil {
		return m.AcquireLockFn(ctx, runID, domainName)
	}
	return first, nil
}

func (m *DedupStore) ReleaseLock(ctx context.Context, runID uuid.UUID, domainName string) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, runID.String()+":"+domainName)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, runID, domainName)
	}
	return nil
}

// ---- InferenceClient mock ----

var _ score.InferenceClient = (*InferenceClient)(nil)

// InferenceClient is a test double for score.InferenceClient.
type InferenceClient struct {
	mu sync.Mutex

	ScoreFn           func(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error)
	GenerateProfileFn func(ctx context.Context, attrs domain.CompanyAttributes) (*domain.ICPProfile, error)

	ScoreCalls    []string
	GenerateCalls []string
}

func (m *InferenceClient) Score(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
	m.mu.Lock()
	m.ScoreCalls = append(m.ScoreCalls, content.Domain)
	m.mu.Unlock()
	if m.ScoreFn != nil {
		return m.ScoreFn(ctx, profile, content)
	}
	return &domain.ScoreResponse{Score: 75, Reasoning: "default mock score"}, nil
}

func (m *InferenceClient) GenerateProfile(ctx context.Context, attrs domain.CompanyAttributes) (*domain.ICPProfile, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, attrs.Name)
	m.mu.Unlock()
	if m.GenerateProfileFn != nil {
		return m.GenerateProfileFn(ctx, attrs)
	}
	return &domain.ICPProfile{Name: "Mock profile"}, nil
}
