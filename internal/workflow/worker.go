package workflow

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/sells-group/visibility-engine/internal/config"
)

// NewClient dials the Temporal frontend.
func NewClient(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "workflow: dial temporal")
	}
	return c, nil
}

// NewWorker builds a worker with every workflow and activity registered.
func NewWorker(c client.Client, taskQueue string, activities *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(ScanWorkflow)
	w.RegisterWorkflow(NightlyScanWorkflow)
	w.RegisterWorkflow(VerifyWorkflow)
	w.RegisterActivity(activities)
	return w
}

// StartVerification kicks off the durable verification loop for one gap.
// The workflow id derives from the gap id, so repeated kickoffs for the
// same gap collapse into the run already in flight.
func StartVerification(ctx context.Context, c client.Client, cfg config.TemporalConfig, gapID string, delayHours int) error {
	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "verify-" + gapID,
		TaskQueue: cfg.TaskQueue,
	}, VerifyWorkflow, VerifyWorkflowInput{GapID: gapID, DelayHours: delayHours})
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}
	return eris.Wrap(err, "workflow: start verification")
}

// EnsureNightlySchedule creates (or leaves in place) the cron schedule for
// the nightly scan sweep.
func EnsureNightlySchedule(ctx context.Context, c client.Client, cfg config.TemporalConfig) error {
	handle := c.ScheduleClient().GetHandle(ctx, "nightly-scan")
	if _, err := handle.Describe(ctx); err == nil {
		return nil
	}

	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: "nightly-scan",
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cfg.ScanCron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "nightly-scan-run",
			Workflow:  NightlyScanWorkflow,
			TaskQueue: cfg.TaskQueue,
		},
	})
	if err != nil {
		return eris.Wrap(err, "workflow: create nightly schedule")
	}
	return nil
}
