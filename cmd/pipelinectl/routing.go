package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genaiops/internal/routing"
)

var routingCmd = &cobra.Command{
	Use:   "routing",
	Short: "Model routing strategy",
}

var routingEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score candidate models and build a routing strategy",
	Long: `Runs every test case against every model, ranks the models and prints
the resulting strategy. With --write the strategy is saved to the SSM
parameter the router reads.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var cases []routing.TestCase
		if path := v.GetString("cases"); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open test cases: %w", err)
			}
			defer f.Close()
			if cases, err = routing.LoadTestCases(f); err != nil {
				return err
			}
		}

		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		rc := routing.Config{
			StrategyParameter: v.GetString("parameter"),
			CacheTable:        v.GetString("cache-table"),
		}
		ev := routing.NewEvaluator(routing.NewInvoker(cfg, rc, logger), routing.NewStrategyStoreFromConfig(cfg, rc, logger), v.GetInt("concurrency"))
		st, results, err := ev.Run(ctx, list("models"), cases, v.GetBool("write"))
		if err != nil {
			return err
		}
		logger.Info("models evaluated",
			zap.Int("results", len(results)),
			zap.String("primary", st.PrimaryModel),
			zap.Bool("saved", v.GetBool("write")),
		)
		return printJSON(cmd, map[string]any{"strategy": st, "results": results})
	},
}

func init() {
	f := routingEvaluateCmd.Flags()
	f.String("cases", "", "YAML file of test cases (default: built-in case)")
	f.StringSlice("models", nil, "Bedrock model ids to evaluate")
	f.String("parameter", "/genaiops/routing/strategy", "SSM parameter for the strategy")
	f.String("cache-table", "", "DynamoDB response cache table")
	f.Int("concurrency", 4, "parallel model invocations")
	f.Bool("write", false, "save the strategy to the SSM parameter")

	routingCmd.AddCommand(routingEvaluateCmd)
}
