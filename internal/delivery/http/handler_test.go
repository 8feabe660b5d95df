package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/engine"
	"github.com/leadscope/leadscope/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter() (*gin.Engine, *engine.Engine) {
	eng := engine.New(zap.NewNop())
	router := NewRouter(eng, ratelimit.New(), zap.NewNop(), 1<<20)
	return router, eng
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQualifyHandler_Success(t *testing.T) {
	router, eng := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/qualifications", map[string]any{
		"user_id":    "user-1",
		"profile_id": "profile-1",
		"profile":    map[string]any{"name": "Mid-market SaaS"},
		"domains":    []string{"acme.io", "globex.com"},
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp EnqueueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == uuid.Nil {
		t.Error("expected a job id")
	}
	if resp.RunID == uuid.Nil {
		t.Error("expected a run id")
	}
	if resp.Status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING", resp.Status)
	}

	job, err := eng.GetJob(resp.JobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	payload := job.Payload.(domain.QualifyProspectsPayload)
	if len(payload.Domains) != 2 {
		t.Errorf("stored domains = %d, want 2", len(payload.Domains))
	}
}

func TestQualifyHandler_BadRequests(t *testing.T) {
	router, _ := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/qualifications", map[string]any{
		"user_id": "user-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing fields: status = %d, want 400", w.Code)
	}

	w = doJSON(router, http.MethodPost, "/api/v1/qualifications", map[string]any{
		"user_id": "user-1",
		"profile": map[string]any{"name": "p"},
		"domains": []string{},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty domains: status = %d, want 400", w.Code)
	}
}

func TestAnalyzeHandler(t *testing.T) {
	router, eng := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/domains/analyze", map[string]any{
		"domain":  "acme.io",
		"user_id": "user-1",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp EnqueueResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	job, err := eng.GetJob(resp.JobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Type != domain.JobAnalyzeDomain {
		t.Errorf("type = %s, want analyze-domain", job.Type)
	}
}

func TestGenerateHandler(t *testing.T) {
	router, eng := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/profiles/generate", map[string]any{
		"user_id":    "user-1",
		"attributes": map[string]any{"name": "Acme", "industry": "SaaS"},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp EnqueueResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if _, err := eng.GetJob(resp.JobID); err != nil {
		t.Fatalf("job not stored: %v", err)
	}
}

func TestGetJobHandler(t *testing.T) {
	router, eng := setupTestRouter()

	id, err := eng.Enqueue(domain.JobAnalyzeDomain, domain.AnalyzeDomainPayload{
		Domain: "acme.io", UserID: "user-1",
	}, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := doJSON(router, http.MethodGet, "/api/v1/jobs/"+id.String(), nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	w = doJSON(router, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}

	w = doJSON(router, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestCancelJobHandler(t *testing.T) {
	router, eng := setupTestRouter()

	id, err := eng.Enqueue(domain.JobAnalyzeDomain, domain.AnalyzeDomainPayload{
		Domain: "acme.io", UserID: "user-1",
	}, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := doJSON(router, http.MethodDelete, "/api/v1/jobs/"+id.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	job, _ := eng.GetJob(id)
	if job.Status != domain.StatusFailed {
		t.Errorf("status after cancel = %s, want FAILED", job.Status)
	}

	// Cancelling a terminal job conflicts.
	w = doJSON(router, http.MethodDelete, "/api/v1/jobs/"+id.String(), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second cancel: status = %d, want 409", w.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	router, eng := setupTestRouter()

	eng.Enqueue(domain.JobAnalyzeDomain, domain.AnalyzeDomainPayload{
		Domain: "acme.io", UserID: "user-1",
	}, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var stats engine.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Counts[domain.StatusPending] != 1 {
		t.Errorf("pending = %d, want 1", stats.Counts[domain.StatusPending])
	}
}

func TestQualificationRateLimit(t *testing.T) {
	router, _ := setupTestRouter()

	body := map[string]any{
		"user_id": "user-1",
		"profile": map[string]any{"name": "p"},
		"domains": []string{"acme.io"},
	}

	limit := ratelimit.CategoryLimit(ratelimit.CategoryQualification)
	for i := 0; i < limit.Requests; i++ {
		if w := doJSON(router, http.MethodPost, "/api/v1/qualifications", body); w.Code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d, want 202", i+1, w.Code)
		}
	}

	w := doJSON(router, http.MethodPost, "/api/v1/qualifications", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestHealthHandler(t *testing.T) {
	router, _ := setupTestRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
