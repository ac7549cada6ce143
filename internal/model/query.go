package model

import "time"

// FunnelStage tags a query's position in the buyer journey.
type FunnelStage string

const (
	FunnelTop    FunnelStage = "top"
	FunnelMid    FunnelStage = "mid"
	FunnelBottom FunnelStage = "bottom"
)

// Query is a prompt whose answers are scanned for brand visibility.
// Text is immutable once created; PromptScore is derived (see scoring).
type Query struct {
	ID          string      `json:"id"`
	BrandID     string      `json:"brand_id"`
	Text        string      `json:"text"`
	IsActive    bool        `json:"is_active"`
	Priority    int         `json:"priority"`
	FunnelStage FunnelStage `json:"funnel_stage,omitempty"`
	PromptScore int         `json:"prompt_score"`
	CreatedAt   time.Time   `json:"created_at"`
}
