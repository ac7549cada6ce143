package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verifyGapID   string
	verifyAttempt int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run one verification attempt for a content gap",
	Long:  "Re-scans the gap's source query across the verification panel and marks the gap verified when any model cites the brand's domain. Scheduled re-attempts run through the worker; this command is the manual escape hatch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("verify"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.verifier.RunAttempt(ctx, verifyGapID, verifyAttempt, env.panels.Verification)
		if err != nil {
			return eris.Wrap(err, "run verification attempt")
		}

		zap.L().Info("verification attempt complete",
			zap.String("gap_id", out.GapID),
			zap.Int("attempt", out.Attempt),
			zap.Bool("verified", out.Verified),
			zap.Bool("reschedule", out.Reschedule),
			zap.Int("spent_cents", out.SpentCents),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyGapID, "gap", "", "content gap id (required)")
	verifyCmd.Flags().IntVar(&verifyAttempt, "attempt", 1, "attempt number")
	_ = verifyCmd.MarkFlagRequired("gap")
	rootCmd.AddCommand(verifyCmd)
}
