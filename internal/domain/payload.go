package domain

import "github.com/google/uuid"

// Payload is the typed job payload. Each job type has exactly one variant;
// processors type-assert their own.
type Payload interface {
	JobType() JobType
}

// QualifyProspectsPayload drives one qualification run: every domain in the
// list is enriched and scored against the profile.
type QualifyProspectsPayload struct {
	RunID     uuid.UUID  `json:"run_id"`
	UserID    string     `json:"user_id"`
	ProfileID string     `json:"profile_id"`
	Profile   ICPProfile `json:"profile"`
	Domains   []string   `json:"domains"`
}

func (QualifyProspectsPayload) JobType() JobType { return JobQualifyProspects }

// AnalyzeDomainPayload requests enrichment of a single domain.
type AnalyzeDomainPayload struct {
	Domain    string `json:"domain"`
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id,omitempty"`
}

func (AnalyzeDomainPayload) JobType() JobType { return JobAnalyzeDomain }

// GenerateProfilePayload requests an ICP profile derived from known company
// attributes.
type GenerateProfilePayload struct {
	CompanyID  string            `json:"company_id"`
	UserID     string            `json:"user_id"`
	Attributes CompanyAttributes `json:"attributes"`
}

func (GenerateProfilePayload) JobType() JobType { return JobGenerateProfile }
