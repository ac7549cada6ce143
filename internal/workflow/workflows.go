package workflow

import (
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/verify"
)

// ScanWorkflowInput starts a scan batch for one brand.
type ScanWorkflowInput struct {
	BrandID string `json:"brand_id"`
}

// VerifyWorkflowInput starts the verification loop for one gap.
type VerifyWorkflowInput struct {
	GapID      string `json:"gap_id"`
	DelayHours int    `json:"delay_hours"`
}

// ScanWorkflow runs one scan batch. The batch is internally fault
// tolerant (per-pair failures are counted, not raised), so the activity
// gets a small retry budget for infrastructure errors only.
func ScanWorkflow(ctx workflow.Context, in ScanWorkflowInput) (*model.BatchSummary, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 3,
		},
	})

	var a *Activities
	var summary model.BatchSummary
	if err := workflow.ExecuteActivity(ctx, a.RunScanBatch, in.BrandID).Get(ctx, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// NightlyScanWorkflow scans every active brand, one batch at a time, then
// sweeps for gaps awaiting verification and starts a verification loop for
// each. It runs on a cron schedule; brands paused by the budget guard
// mid-run drop out of the next listing.
func NightlyScanWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 3,
		},
	})

	var a *Activities
	var brandIDs []string
	if err := workflow.ExecuteActivity(ctx, a.ListActiveBrandIDs).Get(ctx, &brandIDs); err != nil {
		return err
	}

	log := workflow.GetLogger(ctx)
	for _, brandID := range brandIDs {
		cwo := workflow.ChildWorkflowOptions{
			WorkflowID: "scan-" + brandID + "-" + workflow.Now(ctx).UTC().Format("2006-01-02"),
		}
		childCtx := workflow.WithChildOptions(ctx, cwo)
		var summary model.BatchSummary
		if err := workflow.ExecuteChildWorkflow(childCtx, ScanWorkflow, ScanWorkflowInput{BrandID: brandID}).Get(childCtx, &summary); err != nil {
			log.Error("nightly scan: brand batch failed", "brand_id", brandID, "error", err)
			continue
		}
	}

	// Sweep gaps whose content is published but not yet verified. Each gap
	// gets its own verification loop; a gap whose loop is already running
	// fails the duplicate-id start and is skipped. The loops sleep for
	// hours between attempts, so the sweep abandons them after the start
	// instead of waiting for results.
	var gapIDs []string
	if err := workflow.ExecuteActivity(ctx, a.ListVerifiableGapIDs).Get(ctx, &gapIDs); err != nil {
		return err
	}
	for _, gapID := range gapIDs {
		cwo := workflow.ChildWorkflowOptions{
			WorkflowID:        "verify-" + gapID,
			ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
		}
		childCtx := workflow.WithChildOptions(ctx, cwo)
		fut := workflow.ExecuteChildWorkflow(childCtx, VerifyWorkflow, VerifyWorkflowInput{GapID: gapID})
		if err := fut.GetChildWorkflowExecution().Get(childCtx, nil); err != nil {
			log.Info("nightly scan: verification loop not started", "gap_id", gapID, "error", err)
		}
	}
	return nil
}

// VerifyWorkflow drives the bounded verification loop for one gap:
// attempt, sleep, re-attempt, never more than the verifier's attempt
// budget. The attempt counter lives in workflow state, so a replayed
// history never runs a fourth attempt.
func VerifyWorkflow(ctx workflow.Context, in VerifyWorkflowInput) (*verify.Outcome, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 3,
		},
	})

	delay := time.Duration(in.DelayHours) * time.Hour
	if delay <= 0 {
		delay = 24 * time.Hour
	}

	var a *Activities
	log := workflow.GetLogger(ctx)

	attempt := 1
	for {
		var out verify.Outcome
		err := workflow.ExecuteActivity(ctx, a.RunVerificationAttempt, VerifyAttemptInput{
			GapID:   in.GapID,
			Attempt: attempt,
		}).Get(ctx, &out)
		if err != nil {
			return nil, err
		}
		if out.Verified || !out.Reschedule {
			return &out, nil
		}

		log.Info("verification attempt unverified, sleeping",
			"gap_id", in.GapID, "attempt", attempt, "delay", delay)
		if err := workflow.Sleep(ctx, delay); err != nil {
			return nil, err
		}
		attempt++
	}
}
