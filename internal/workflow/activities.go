// Package workflow hosts the durable execution layer: Temporal workflows
// drive scan batches and the delayed verification loop, with all real work
// in activities.
package workflow

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-engine/internal/adapter"
	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/scan"
	"github.com/sells-group/visibility-engine/internal/store"
	"github.com/sells-group/visibility-engine/internal/verify"
)

// Activities bundles the application services workflows call into.
type Activities struct {
	Store        store.Store
	Orchestrator *scan.Orchestrator
	Verifier     *verify.Verifier
	Panels       adapter.Panels
}

// VerifyAttemptInput identifies one verification attempt.
type VerifyAttemptInput struct {
	GapID   string `json:"gap_id"`
	Attempt int    `json:"attempt"`
}

// RunScanBatch scans one brand across the scan panel. Scan results dedup
// on their natural key, so a retried activity never double-writes.
func (a *Activities) RunScanBatch(ctx context.Context, brandID string) (*model.BatchSummary, error) {
	return a.Orchestrator.RunBatch(ctx, brandID, a.Panels.Scan)
}

// RunVerificationAttempt executes one verification attempt against the
// verification panel.
func (a *Activities) RunVerificationAttempt(ctx context.Context, in VerifyAttemptInput) (*verify.Outcome, error) {
	return a.Verifier.RunAttempt(ctx, in.GapID, in.Attempt, a.Panels.Verification)
}

// ListActiveBrandIDs returns the ids of brands eligible for scanning.
func (a *Activities) ListActiveBrandIDs(ctx context.Context) ([]string, error) {
	brands, err := a.Store.ListActiveBrands(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: list active brands")
	}
	ids := make([]string, 0, len(brands))
	for _, b := range brands {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// ListVerifiableGapIDs returns gaps awaiting verification across all
// active brands. Brands with auto-verification disabled are skipped; their
// gaps would no-op anyway.
func (a *Activities) ListVerifiableGapIDs(ctx context.Context) ([]string, error) {
	brands, err := a.Store.ListActiveBrands(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: list active brands")
	}
	var ids []string
	for _, b := range brands {
		if !b.AutoVerifyCitations {
			continue
		}
		gaps, err := a.Store.ListGaps(ctx, b.ID, store.GapFilter{Status: model.GapContentCreated})
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: list gaps for brand %s", b.ID)
		}
		for _, g := range gaps {
			ids = append(ids, g.ID)
		}
	}
	return ids, nil
}
