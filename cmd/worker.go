package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker",
	Long:  "Registers the scan and verification workflows on the task queue and installs the nightly scan cron schedule. All durable execution (delayed re-verification, nightly sweeps, activity retries) runs through this process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := workflow.NewClient(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := workflow.EnsureNightlySchedule(ctx, c, cfg.Temporal); err != nil {
			// Worker can still process workflows started by hand.
			zap.L().Warn("nightly schedule setup failed", zap.Error(err))
		}

		activities := &workflow.Activities{
			Store:        env.store,
			Orchestrator: env.orchestrator,
			Verifier:     env.verifier,
			Panels:       *env.panels,
		}
		w := workflow.NewWorker(c, cfg.Temporal.TaskQueue, activities)

		zap.L().Info("starting worker",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.String("namespace", cfg.Temporal.Namespace),
		)

		errCh := make(chan error, 1)
		go func() { errCh <- w.Run(nil) }()

		select {
		case <-ctx.Done():
			w.Stop()
			return nil
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "worker run")
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
