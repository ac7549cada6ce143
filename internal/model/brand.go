package model

import "time"

// Brand is a tenant-owned brand being tracked for LLM visibility.
// No paid operation may run while IsPaused is set.
type Brand struct {
	ID                  string    `json:"id"`
	TenantID            string    `json:"tenant_id"`
	Name                string    `json:"name"`
	Domain              string    `json:"domain"`
	IsPaused            bool      `json:"is_paused"`
	AutoVerifyCitations bool      `json:"auto_verify_citations"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Competitor is a rival brand name matched against scan responses.
// Inactive competitors are excluded from matching.
type Competitor struct {
	ID       string `json:"id"`
	BrandID  string `json:"brand_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
