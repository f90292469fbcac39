package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"genaiops/internal/support"
)

var supportCmd = &cobra.Command{
	Use:   "support",
	Short: "Customer support assistant",
}

var supportAnalyzeCmd = &cobra.Command{
	Use:   "analyze-feedback",
	Short: "Summarize recent assistant feedback",
	Long: `Loads the assistant configuration from the usual environment variables
(FEEDBACK_TABLE, CONVERSATION_TABLE, ...) and analyzes the feedback window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		sc, err := support.LoadConfig()
		if err != nil {
			return fmt.Errorf("load support config: %w", err)
		}
		res, _ := support.NewFromConfig(cfg, sc, logger).AnalyzeFeedback(ctx, support.AnalysisFilter{
			Hours:      v.GetInt("hours"),
			TemplateID: v.GetString("template-id"),
			Intent:     v.GetString("intent"),
		})
		if res.Error != "" {
			return fmt.Errorf("analyze feedback: %s", res.Error)
		}
		return printJSON(cmd, res.Analysis)
	},
}

func init() {
	f := supportAnalyzeCmd.Flags()
	f.Int("hours", 24, "analysis window")
	f.String("template-id", "", "only feedback for this template")
	f.String("intent", "", "only feedback for this intent")

	supportCmd.AddCommand(supportAnalyzeCmd)
}
