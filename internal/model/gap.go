package model

import "time"

// GapStatus is the lifecycle state of a content gap.
type GapStatus string

const (
	GapIdentified     GapStatus = "identified"
	GapContentCreated GapStatus = "content_created"
	GapVerified       GapStatus = "verified"
)

// ContentGap is derived from a scan where the brand was not mentioned.
// It moves identified -> content_created -> verified; a gap that exhausts
// its verification attempts stays content_created permanently.
type ContentGap struct {
	ID                  string                `json:"id"`
	BrandID             string                `json:"brand_id"`
	QueryID             string                `json:"query_id"`
	SourceQuery         string                `json:"source_query"`
	Status              GapStatus             `json:"status"`
	ResponseMemoID      *string               `json:"response_memo_id,omitempty"`
	ContentPublishedAt  *time.Time            `json:"content_published_at,omitempty"`
	TimeToCitationHours *float64              `json:"time_to_citation_hours,omitempty"`
	Attempts            []VerificationAttempt `json:"attempts"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// VerificationAttempt records one verification pass over a gap's query.
// Attempts are immutable once written and accumulate on the gap.
type VerificationAttempt struct {
	ID                 string    `json:"id"`
	GapID              string    `json:"gap_id"`
	Attempt            int       `json:"attempt"`
	ModelsWithCitation []string  `json:"models_with_citation"`
	ModelsWithMention  []string  `json:"models_with_mention"`
	Verified           bool      `json:"verified"`
	CreatedAt          time.Time `json:"created_at"`
}
