package main

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genaiops/internal/claims"
	"genaiops/internal/llm"
	"genaiops/internal/metrics"
	"genaiops/internal/objstore"
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Claim document processing",
}

var claimsBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process claim documents with every listed model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bucket := v.GetString("bucket")
		files := list("files")
		if bucket == "" || len(files) == 0 {
			return fmt.Errorf("--bucket and --files are required")
		}
		models := list("models")
		if len(models) == 0 {
			models = []string{claims.DefaultModel}
		}

		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		store := objstore.New(s3.NewFromConfig(cfg))
		policies, err := claims.LoadPolicies(ctx, store, bucket, v.GetString("policy-key"))
		if err != nil {
			logger.Warn("policies unavailable, summaries run without policy context", zap.Error(err))
		}
		inv := llm.NewBreaker(llm.NewBedrock(bedrockruntime.NewFromConfig(cfg)), llm.DefaultBreakerConfig(), logger)
		pub := metrics.NewPublisher(v.GetString("namespace"), cloudwatch.NewFromConfig(cfg), logger)

		items, err := claims.NewProcessor(inv, store, policies, pub, logger).RunBatch(ctx, bucket, files, models, v.GetInt("concurrency"))
		if err != nil {
			return err
		}
		failed := 0
		for _, it := range items {
			if it.Error != "" {
				failed++
			}
		}
		logger.Info("claim batch finished", zap.Int("items", len(items)), zap.Int("failed", failed))
		return printJSON(cmd, items)
	},
}

func init() {
	f := claimsBatchCmd.Flags()
	f.String("bucket", "", "bucket holding the claim documents")
	f.StringSlice("files", nil, "claim document keys")
	f.StringSlice("models", nil, "Bedrock model ids to compare")
	f.String("policy-key", claims.DefaultPolicyKey, "policy snippets key in the bucket")
	f.String("namespace", "ClaimProcessing", "CloudWatch namespace")
	f.Int("concurrency", 4, "parallel model invocations")

	claimsCmd.AddCommand(claimsBatchCmd)
}
