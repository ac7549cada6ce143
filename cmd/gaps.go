package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/store"
	"github.com/sells-group/visibility-engine/internal/workflow"
)

var (
	gapsBrandID     string
	gapsStatus      string
	gapsLimit       int
	gapsGapID       string
	gapsMemoID      string
	gapsPublishedAt string
)

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List content gaps and advance their lifecycle",
}

var gapsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List content gaps for a brand",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("budget"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		gaps, err := st.ListGaps(ctx, gapsBrandID, store.GapFilter{
			Status: model.GapStatus(gapsStatus),
			Limit:  gapsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list gaps")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(gaps)
	},
}

var gapsMarkCreatedCmd = &cobra.Command{
	Use:   "mark-created",
	Short: "Record that response content was published for a gap",
	Long:  "Flips the gap to content_created so the verification loop picks it up. The published-at timestamp anchors the time-to-citation measurement.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("budget"); err != nil {
			return err
		}
		ctx := cmd.Context()

		publishedAt := time.Now().UTC()
		if gapsPublishedAt != "" {
			t, err := time.Parse(time.RFC3339, gapsPublishedAt)
			if err != nil {
				return eris.Wrapf(err, "parse published-at %q", gapsPublishedAt)
			}
			publishedAt = t.UTC()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.MarkGapContentCreated(ctx, gapsGapID, gapsMemoID, publishedAt); err != nil {
			return eris.Wrap(err, "mark gap content created")
		}

		zap.L().Info("gap marked content_created",
			zap.String("gap_id", gapsGapID),
			zap.String("memo_id", gapsMemoID),
			zap.Time("published_at", publishedAt),
		)

		// Best effort: the nightly sweep starts the loop for any gap this
		// misses, so an unreachable Temporal frontend is a warning, not a
		// failed command.
		c, err := workflow.NewClient(cfg.Temporal)
		if err != nil {
			zap.L().Warn("temporal unreachable, nightly sweep will start verification",
				zap.String("gap_id", gapsGapID), zap.Error(err))
			return nil
		}
		defer c.Close()

		if err := workflow.StartVerification(ctx, c, cfg.Temporal, gapsGapID, cfg.Verification.DelayHours); err != nil {
			zap.L().Warn("verification workflow not started, nightly sweep will retry",
				zap.String("gap_id", gapsGapID), zap.Error(err))
			return nil
		}
		zap.L().Info("verification workflow started", zap.String("gap_id", gapsGapID))
		return nil
	},
}

func init() {
	gapsListCmd.Flags().StringVar(&gapsBrandID, "brand", "", "brand id (required)")
	gapsListCmd.Flags().StringVar(&gapsStatus, "status", "", "filter by status (identified, content_created, verified)")
	gapsListCmd.Flags().IntVar(&gapsLimit, "limit", 50, "max gaps to return")
	_ = gapsListCmd.MarkFlagRequired("brand")

	gapsMarkCreatedCmd.Flags().StringVar(&gapsGapID, "gap", "", "content gap id (required)")
	gapsMarkCreatedCmd.Flags().StringVar(&gapsMemoID, "memo", "", "response memo id (required)")
	gapsMarkCreatedCmd.Flags().StringVar(&gapsPublishedAt, "published-at", "", "RFC3339 publish time (default now)")
	_ = gapsMarkCreatedCmd.MarkFlagRequired("gap")
	_ = gapsMarkCreatedCmd.MarkFlagRequired("memo")

	gapsCmd.AddCommand(gapsListCmd, gapsMarkCreatedCmd)
	rootCmd.AddCommand(gapsCmd)
}
