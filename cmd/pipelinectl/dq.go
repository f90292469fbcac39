package main

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genaiops/internal/dataquality"
)

var dqCmd = &cobra.Command{
	Use:   "dq",
	Short: "Glue Data Quality rulesets",
}

var dqRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the customer reviews ruleset as DQDL",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), dataquality.Render(dataquality.CustomerReviewRules()))
		return err
	},
}

var dqCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register the customer reviews ruleset with Glue",
	Long: `Creates the customer reviews ruleset. With --database and --table the
ruleset is bound to the table after checking that every rule column exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		spec := dataquality.CustomerReviewsSpec()
		spec.Database = v.GetString("database")
		spec.Table = v.GetString("table")
		if n := v.GetString("name"); n != "" {
			spec.Name = n
		}

		name, err := dataquality.CreateRuleset(ctx, glue.NewFromConfig(cfg), spec)
		if err != nil {
			return err
		}
		logger.Info("data quality ruleset created", zap.String("ruleset", name), zap.Int("rules", len(spec.Rules)))
		return printJSON(cmd, map[string]any{"ruleset": name, "rules": len(spec.Rules)})
	},
}

func init() {
	dqCreateCmd.Flags().String("name", "", "ruleset name override")
	dqCreateCmd.Flags().String("database", "", "Glue database holding the reviews table")
	dqCreateCmd.Flags().String("table", "", "Glue table to bind the ruleset to")

	dqCmd.AddCommand(dqRulesCmd, dqCreateCmd)
}
