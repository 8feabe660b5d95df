package domain

import (
	"time"

	"github.com/google/uuid"
)

// FitLevel is the categorical bucket derived from a numeric score.
type FitLevel string

const (
	FitExcellent FitLevel = "EXCELLENT"
	FitGood      FitLevel = "GOOD"
	FitFair      FitLevel = "FAIR"
	FitPoor      FitLevel = "POOR"
)

// FitLevelForScore maps a score in [0,100] to its fit level.
func FitLevelForScore(score float64) FitLevel {
	switch {
	case score >= 80:
		return FitExcellent
	case score >= 60:
		return FitGood
	case score >= 40:
		return FitFair
	default:
		return FitPoor
	}
}

// ICPProfile is the target-customer definition prospects are scored against.
type ICPProfile struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Industries   []string `json:"industries,omitempty"`
	CompanySizes []string `json:"company_sizes,omitempty"`
	Regions      []string `json:"regions,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// CompanyAttributes are the known facts about a company used to generate a
// profile.
type CompanyAttributes struct {
	Name        string `json:"name"`
	Website     string `json:"website,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Size        string `json:"size,omitempty"`
	Description string `json:"description,omitempty"`
}

// DomainContent is the enrichment stage's output for one domain. The body is
// opaque text; scraping specifics live outside this system.
type DomainContent struct {
	Domain       string    `json:"domain"`
	CompanyName  string    `json:"company_name"`
	Title        string    `json:"title,omitempty"`
	Content      string    `json:"content,omitempty"`
	StatusCode   int       `json:"status_code,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	FallbackUsed bool      `json:"fallback_used,omitempty"`
}

// MatchedCriterion records one profile criterion a prospect satisfies.
type MatchedCriterion struct {
	Criterion string  `json:"criterion"`
	Evidence  string  `json:"evidence,omitempty"`
	Weight    float64 `json:"weight,omitempty"`
}

// ScoreResponse is the scoring stage's output for one domain.
type ScoreResponse struct {
	Score          float64            `json:"score"`
	Reasoning      string             `json:"reasoning,omitempty"`
	Matched        []MatchedCriterion `json:"matched,omitempty"`
	Gaps           []string           `json:"gaps,omitempty"`
	Recommendation string             `json:"recommendation,omitempty"`
	FallbackUsed   bool               `json:"fallback_used,omitempty"`
}

// ProcessingMeta describes how a result was produced. Errors holds one
// entry per stage that had to fall back.
type ProcessingMeta struct {
	DurationMs int64    `json:"duration_ms"`
	Errors     []string `json:"errors,omitempty"`
}

// RawPayloads nests the stage outputs a qualification result was built from.
type RawPayloads struct {
	Enrichment *DomainContent  `json:"enrichment,omitempty"`
	Scoring    *ScoreResponse  `json:"scoring,omitempty"`
	Meta       *ProcessingMeta `json:"meta,omitempty"`
}

// QualificationResult is the terminal artifact produced per domain. It is
// immutable once produced.
type QualificationResult struct {
	Domain          string             `json:"domain"`
	Score           float64            `json:"score"`
	FitLevel        FitLevel           `json:"fit_level"`
	Reasoning       string             `json:"reasoning,omitempty"`
	MatchedCriteria []MatchedCriterion `json:"matched_criteria,omitempty"`
	Gaps            []string           `json:"gaps,omitempty"`
	Recommendation  string             `json:"recommendation,omitempty"`
	FallbackUsed    bool               `json:"fallback_used,omitempty"`
	Raw             RawPayloads        `json:"raw"`
}

// RunSummary is the data attached to a completed qualify-prospects job:
// exactly one result per input domain, success or fallback.
type RunSummary struct {
	RunID     uuid.UUID             `json:"run_id"`
	ProfileID string                `json:"profile_id"`
	Results   []QualificationResult `json:"results"`
}
