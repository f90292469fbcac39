package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genaiops/internal/insights"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Questions over the feedback lake",
}

var insightsAskCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question with a generated Athena query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		c := insights.Config{
			Model:           v.GetString("model"),
			Database:        v.GetString("database"),
			Tables:          list("tables"),
			Workgroup:       v.GetString("workgroup"),
			Output:          v.GetString("output"),
			DateColumn:      v.GetString("date-column"),
			MaxDaysLookback: v.GetInt("max-days"),
			MaxFixAttempts:  v.GetInt("max-fix-attempts"),
			MaxRows:         v.GetInt("max-rows"),
		}
		if c.Database == "" || !strings.HasPrefix(c.Output, "s3://") {
			return fmt.Errorf("--database and an s3:// --output are required")
		}

		ans, err := insights.NewFromConfig(cfg, c, logger).Ask(ctx, strings.Join(args, " "))
		if err != nil && !errors.Is(err, insights.ErrQueryFailed) {
			return err
		}
		if err != nil {
			logger.Warn("no answer", zap.Int("attempts", ans.Attempts), zap.Error(err))
		}
		return printJSON(cmd, ans)
	},
}

func init() {
	f := insightsAskCmd.Flags()
	f.String("model", insights.DefaultModel, "Bedrock model compiling the SQL")
	f.String("database", "", "Athena database")
	f.StringSlice("tables", []string{"quality_scores"}, "tables the query may read")
	f.String("workgroup", "primary", "Athena workgroup")
	f.String("output", "", "Athena results location (s3://...)")
	f.String("date-column", "dt", "partition column that must be bounded")
	f.Int("max-days", 90, "oldest date the query may read")
	f.Int("max-fix-attempts", 2, "repair rounds after a failed query")
	f.Int("max-rows", 200, "result row cap")

	insightsCmd.AddCommand(insightsAskCmd)
}
