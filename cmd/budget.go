package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/model"
)

var (
	budgetBrandID    string
	budgetCapCents   int
	budgetAlertAt    int
	budgetPauseAtCap bool
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect and manage brand budget policies",
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print month-to-date spend against the brand's cap",
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

		brand, err := st.GetBrand(ctx, budgetBrandID)
		if err != nil {
			return eris.Wrap(err, "get brand")
		}
		policy, err := st.GetBudgetPolicy(ctx, budgetBrandID)
		if err != nil {
			return eris.Wrap(err, "get budget policy")
		}
		monthKey := model.MonthKey(time.Now())
		spent, err := st.MonthlySpendCents(ctx, budgetBrandID, monthKey)
		if err != nil {
			return eris.Wrap(err, "monthly spend")
		}

		out := map[string]any{
			"brand_id":    brand.ID,
			"brand_name":  brand.Name,
			"month_key":   monthKey,
			"spent_cents": spent,
			"is_paused":   brand.IsPaused,
		}
		if policy != nil {
			out["cap_cents"] = policy.MonthlyCapCents
			out["alert_at_percent"] = policy.AlertAtPercent
			out["pause_at_cap"] = policy.PauseAtCap
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the brand's monthly budget policy",
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

		policy := &model.BudgetPolicy{
			BrandID:        budgetBrandID,
			AlertAtPercent: budgetAlertAt,
			PauseAtCap:     budgetPauseAtCap,
		}
		// A negative cap clears the limit; the guard treats nil as unlimited.
		if budgetCapCents >= 0 {
			policy.MonthlyCapCents = &budgetCapCents
		}

		if err := st.SetBudgetPolicy(ctx, policy); err != nil {
			return eris.Wrap(err, "set budget policy")
		}

		zap.L().Info("budget policy set",
			zap.String("brand_id", budgetBrandID),
			zap.Int("cap_cents", budgetCapCents),
			zap.Int("alert_at_percent", budgetAlertAt),
			zap.Bool("pause_at_cap", budgetPauseAtCap),
		)
		return nil
	},
}

var budgetResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Un-pause a brand that was stopped at its budget cap",
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

		if err := st.ResumeBrand(ctx, budgetBrandID); err != nil {
			return eris.Wrap(err, "resume brand")
		}

		zap.L().Info("brand resumed", zap.String("brand_id", budgetBrandID))
		return nil
	},
}

func init() {
	budgetCmd.PersistentFlags().StringVar(&budgetBrandID, "brand", "", "brand id (required)")
	_ = budgetCmd.MarkPersistentFlagRequired("brand")

	budgetSetCmd.Flags().IntVar(&budgetCapCents, "cap-cents", -1, "monthly cap in cents (negative = unlimited)")
	budgetSetCmd.Flags().IntVar(&budgetAlertAt, "alert-at", 80, "warning threshold as percent of cap")
	budgetSetCmd.Flags().BoolVar(&budgetPauseAtCap, "pause-at-cap", true, "pause the brand when the cap is reached")

	budgetCmd.AddCommand(budgetShowCmd, budgetSetCmd, budgetResumeCmd)
	rootCmd.AddCommand(budgetCmd)
}
