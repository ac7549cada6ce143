package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scanBrandID string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one visibility scan batch for a brand",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scan"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.orchestrator.RunBatch(ctx, scanBrandID, env.panels.Scan)
		if err != nil {
			return eris.Wrap(err, "run scan batch")
		}

		zap.L().Info("scan batch complete",
			zap.String("brand_id", summary.BrandID),
			zap.Int("scanned", summary.Scanned),
			zap.Int("failed", summary.Failed),
			zap.Int("denied", summary.Denied),
			zap.Int("visibility_score", summary.VisibilityScore),
			zap.Int("gap_count", summary.GapCount),
			zap.Int("spent_cents", summary.SpentCents),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanBrandID, "brand", "", "brand id (required)")
	_ = scanCmd.MarkFlagRequired("brand")
	rootCmd.AddCommand(scanCmd)
}
