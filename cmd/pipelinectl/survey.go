package main

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genaiops/internal/survey"
)

var surveyCmd = &cobra.Command{
	Use:   "survey",
	Short: "Survey processing jobs",
}

var surveyLaunchCmd = &cobra.Command{
	Use:   "launch-job",
	Short: "Start a SageMaker Processing job over s3://<bucket>/raw-data/",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		job, err := survey.LaunchProcessingJob(ctx, sagemaker.NewFromConfig(cfg), sts.NewFromConfig(cfg), survey.JobOptions{
			Bucket:       v.GetString("bucket"),
			Region:       cfg.Region,
			ImageURI:     v.GetString("image"),
			RoleName:     v.GetString("role"),
			InstanceType: v.GetString("instance-type"),
			MaxRuntime:   v.GetDuration("max-runtime"),
		}, time.Now())
		if err != nil {
			return err
		}
		logger.Info("processing job started", zap.String("job", job.Name), zap.String("arn", job.Arn))
		return printJSON(cmd, job)
	},
}

func init() {
	f := surveyLaunchCmd.Flags()
	f.String("bucket", "", "data bucket")
	f.String("image", "", "processing image URI (default: the account's survey-processor ECR image)")
	f.String("role", "", "SageMaker execution role name")
	f.String("instance-type", "", "processing instance type")
	f.Duration("max-runtime", time.Hour, "job runtime limit")

	surveyCmd.AddCommand(surveyLaunchCmd)
}
