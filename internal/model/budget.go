package model

import "time"

// SpendRecord is an append-only ledger entry for one paid model call.
type SpendRecord struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	TenantID  string    `json:"tenant_id"`
	Model     string    `json:"model"`
	CostCents int       `json:"cost_cents"`
	CreatedAt time.Time `json:"created_at"`
}

// BudgetPolicy is the per-brand monthly spend policy. A nil cap means
// unlimited spend.
type BudgetPolicy struct {
	BrandID        string `json:"brand_id"`
	MonthlyCapCents *int  `json:"monthly_cap_cents,omitempty"`
	AlertAtPercent int    `json:"alert_at_percent"`
	PauseAtCap     bool   `json:"pause_at_cap"`
}

// AlertKind identifies a budget alert row.
type AlertKind string

const (
	AlertBudgetWarning  AlertKind = "budget_warning"
	AlertBudgetExceeded AlertKind = "budget_exceeded"
)

// BudgetAlert marks that an alert of a given kind was raised for a brand
// in a given calendar month. Uniqueness on (BrandID, MonthKey, Kind) makes
// alert emission idempotent.
type BudgetAlert struct {
	ID         string    `json:"id"`
	BrandID    string    `json:"brand_id"`
	MonthKey   string    `json:"month_key"` // "2026-08"
	Kind       AlertKind `json:"kind"`
	SpentCents int       `json:"spent_cents"`
	CapCents   int       `json:"cap_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

// MonthKey returns the calendar-month bucket for t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
