// Package budget gates paid model calls against per-brand monthly caps.
package budget

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/config"
	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/monitoring"
	"github.com/sells-group/visibility-engine/internal/store"
)

// Deny reasons returned in Decision.Reason.
const (
	ReasonBrandPaused = "brand_paused"
	ReasonOverCap     = "over_cap"
)

// Decision is the outcome of a budget check for one batch.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason,omitempty"`
	SpentCents int    `json:"spent_cents"`
	CapCents   *int   `json:"cap_cents,omitempty"`
}

// Guard enforces the monthly spend policy. All mutations it performs are
// conditional writes in the store, so concurrent checks across processes
// converge on one pause and one alert per (brand, month, kind).
type Guard struct {
	store   store.Store
	alerter *monitoring.Alerter
	cfg     config.BudgetConfig
	now     func() time.Time
}

// NewGuard creates a budget guard.
func NewGuard(st store.Store, alerter *monitoring.Alerter, cfg config.BudgetConfig) *Guard {
	return &Guard{
		store:   st,
		alerter: alerter,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Check decides whether the brand may spend money right now. The paused
// flag is read fresh from the store on every check, so a pause taken by a
// concurrent batch (or an operator) stops the very next call. A deny is not
// an error; errors mean the check itself could not run.
func (g *Guard) Check(ctx context.Context, brandID string) (*Decision, error) {
	brand, err := g.store.GetBrand(ctx, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "budget: get brand")
	}
	if brand.IsPaused {
		return &Decision{Reason: ReasonBrandPaused}, nil
	}

	policy, err := g.store.GetBudgetPolicy(ctx, brand.ID)
	if err != nil {
		return nil, eris.Wrap(err, "budget: get policy")
	}
	if policy == nil || policy.MonthlyCapCents == nil {
		// No cap configured: spend is unlimited for this brand.
		return &Decision{Allowed: true}, nil
	}

	monthKey := model.MonthKey(g.now())
	spent, err := g.store.MonthlySpendCents(ctx, brand.ID, monthKey)
	if err != nil {
		return nil, eris.Wrap(err, "budget: monthly spend")
	}
	cap := *policy.MonthlyCapCents
	decision := &Decision{SpentCents: spent, CapCents: &cap}

	if spent >= cap {
		if policy.PauseAtCap {
			flipped, err := g.store.PauseBrand(ctx, brand.ID)
			if err != nil {
				return nil, eris.Wrap(err, "budget: pause brand")
			}
			if flipped {
				zap.L().Warn("budget: brand auto-paused at cap",
					zap.String("brand_id", brand.ID),
					zap.Int("spent_cents", spent),
					zap.Int("cap_cents", cap),
				)
			}
		}
		g.raiseAlert(ctx, brand, monthKey, model.AlertBudgetExceeded, spent, cap)
		decision.Reason = ReasonOverCap
		return decision, nil
	}

	alertAt := policy.AlertAtPercent
	if alertAt <= 0 {
		alertAt = g.cfg.DefaultAlertAtPercent
	}
	if alertAt > 0 && spent*100 >= cap*alertAt {
		g.raiseAlert(ctx, brand, monthKey, model.AlertBudgetWarning, spent, cap)
	}

	decision.Allowed = true
	return decision, nil
}

// RecordSpend appends one ledger entry for a completed paid call.
func (g *Guard) RecordSpend(ctx context.Context, brand *model.Brand, modelID string, costCents int) error {
	err := g.store.InsertSpendRecord(ctx, &model.SpendRecord{
		BrandID:   brand.ID,
		TenantID:  brand.TenantID,
		Model:     modelID,
		CostCents: costCents,
		CreatedAt: g.now(),
	})
	return eris.Wrap(err, "budget: record spend")
}

// raiseAlert persists the alert row and, only when this call won the
// insert, delivers the webhook. Alert failures never block scanning.
func (g *Guard) raiseAlert(ctx context.Context, brand *model.Brand, monthKey string, kind model.AlertKind, spent, cap int) {
	alert := &model.BudgetAlert{
		BrandID:    brand.ID,
		MonthKey:   monthKey,
		Kind:       kind,
		SpentCents: spent,
		CapCents:   cap,
	}
	inserted, err := g.store.TryInsertBudgetAlert(ctx, alert)
	if err != nil {
		zap.L().Error("budget: failed to record alert",
			zap.String("brand_id", brand.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}
	if !inserted {
		return
	}
	if g.alerter != nil {
		g.alerter.SendAlerts(ctx, []monitoring.Alert{monitoring.BudgetAlert(brand.Name, alert)})
	}
}
