// Package store persists the engine's entities. ScanResults and
// SpendRecords are append-only logs; everything else is row state.
package store

import (
	"context"
	"time"

	"github.com/sells-group/visibility-engine/internal/model"
)

// GapFilter narrows ListGaps.
type GapFilter struct {
	Status model.GapStatus
	Limit  int
}

// ScanAggregates summarizes recent scans of one query, feeding the
// prompt score.
type ScanAggregates struct {
	Scans          int     `json:"scans"`
	AvgCitations   float64 `json:"avg_citations"`
	AvgCompetitors float64 `json:"avg_competitors"`
}

// BrandStats summarizes a brand's recent activity for monitoring.
type BrandStats struct {
	Scans      int `json:"scans"`
	Mentioned  int `json:"mentioned"`
	Cited      int `json:"cited"`
	SpendCents int `json:"spend_cents"`
}

// Store defines the persistence interface for the visibility engine.
type Store interface {
	// Brands
	CreateBrand(ctx context.Context, b *model.Brand) error
	GetBrand(ctx context.Context, id string) (*model.Brand, error)
	ListActiveBrands(ctx context.Context) ([]model.Brand, error)
	// PauseBrand atomically sets is_paused and reports whether this call
	// performed the flip. Losing a pause race returns false, nil.
	PauseBrand(ctx context.Context, id string) (bool, error)
	ResumeBrand(ctx context.Context, id string) error

	// Competitors
	ListCompetitors(ctx context.Context, brandID string) ([]model.Competitor, error)
	UpsertCompetitors(ctx context.Context, brandID string, names []string) (int64, error)

	// Queries
	CreateQuery(ctx context.Context, q *model.Query) error
	ListActiveQueries(ctx context.Context, brandID string) ([]model.Query, error)
	GetQuery(ctx context.Context, id string) (*model.Query, error)
	UpdatePromptScore(ctx context.Context, queryID string, score int) error

	// Scan results (append-only; dedup on the natural key)
	InsertScanResult(ctx context.Context, r *model.ScanResult) error
	QueryScanAggregates(ctx context.Context, queryID string, since time.Time) (*ScanAggregates, error)

	// Content gaps
	CreateGap(ctx context.Context, g *model.ContentGap) error
	GetGap(ctx context.Context, id string) (*model.ContentGap, error)
	ListGaps(ctx context.Context, brandID string, filter GapFilter) ([]model.ContentGap, error)
	MarkGapContentCreated(ctx context.Context, gapID, memoID string, publishedAt time.Time) error
	MarkGapVerified(ctx context.Context, gapID string, timeToCitationHours float64) error
	AppendVerificationAttempt(ctx context.Context, a *model.VerificationAttempt) error

	// Spend ledger and budget policy
	InsertSpendRecord(ctx context.Context, r *model.SpendRecord) error
	MonthlySpendCents(ctx context.Context, brandID, monthKey string) (int, error)
	GetBudgetPolicy(ctx context.Context, brandID string) (*model.BudgetPolicy, error)
	SetBudgetPolicy(ctx context.Context, p *model.BudgetPolicy) error
	// TryInsertBudgetAlert inserts the alert row unless one already exists
	// for the same (brand, month, kind); reports whether it inserted.
	TryInsertBudgetAlert(ctx context.Context, a *model.BudgetAlert) (bool, error)

	// Monitoring
	GetBrandStats(ctx context.Context, brandID string, since time.Time) (*BrandStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
