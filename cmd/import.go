package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/visibility-engine/internal/model"
)

var importFile string

// brandImport is the YAML shape of one brand onboarding file.
type brandImport struct {
	Brand struct {
		ID                  string `yaml:"id"`
		TenantID            string `yaml:"tenant_id"`
		Name                string `yaml:"name"`
		Domain              string `yaml:"domain"`
		AutoVerifyCitations bool   `yaml:"auto_verify_citations"`
	} `yaml:"brand"`
	Competitors []string `yaml:"competitors"`
	Queries     []struct {
		Text        string `yaml:"text"`
		FunnelStage string `yaml:"funnel_stage"`
		Priority    int    `yaml:"priority"`
	} `yaml:"queries"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a brand with its competitors and queries from YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("budget"); err != nil {
			return err
		}
		ctx := cmd.Context()

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read import file %s", importFile)
		}
		var imp brandImport
		if err := yaml.Unmarshal(data, &imp); err != nil {
			return eris.Wrapf(err, "parse import file %s", importFile)
		}
		if imp.Brand.Name == "" || imp.Brand.Domain == "" {
			return eris.New("import file must set brand.name and brand.domain")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		brandID := imp.Brand.ID
		if brandID == "" {
			brandID = uuid.NewString()
		}

		// Re-running the same file against an existing brand just tops up
		// competitors and queries.
		if _, err := st.GetBrand(ctx, brandID); err != nil {
			if err := st.CreateBrand(ctx, &model.Brand{
				ID:                  brandID,
				TenantID:            imp.Brand.TenantID,
				Name:                imp.Brand.Name,
				Domain:              imp.Brand.Domain,
				AutoVerifyCitations: imp.Brand.AutoVerifyCitations,
			}); err != nil {
				return eris.Wrap(err, "create brand")
			}
		}

		upserted, err := st.UpsertCompetitors(ctx, brandID, imp.Competitors)
		if err != nil {
			return eris.Wrap(err, "upsert competitors")
		}

		created := 0
		for _, q := range imp.Queries {
			if q.Text == "" {
				continue
			}
			err := st.CreateQuery(ctx, &model.Query{
				ID:          uuid.NewString(),
				BrandID:     brandID,
				Text:        q.Text,
				IsActive:    true,
				Priority:    q.Priority,
				FunnelStage: model.FunnelStage(q.FunnelStage),
			})
			if err != nil {
				return eris.Wrapf(err, "create query %q", q.Text)
			}
			created++
		}

		zap.L().Info("import complete",
			zap.String("brand_id", brandID),
			zap.String("brand_name", imp.Brand.Name),
			zap.Int64("competitors_upserted", upserted),
			zap.Int("queries_created", created),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "YAML import file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
