package main

import (
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genaiops/internal/alerts"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "SNS alert topics",
}

var alertsSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Create the topic for a channel and subscribe an email to it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		channel := v.GetString("channel")
		arn, err := alerts.EnsureEmailTopic(ctx, sns.NewFromConfig(cfg), v.GetString("project"), v.GetString("stage"), channel, v.GetString("email"))
		if err != nil {
			return err
		}
		logger.Info("alert topic ready", zap.String("channel", channel), zap.String("topic_arn", arn))
		return printJSON(cmd, map[string]string{"channel": channel, "topic_arn": arn})
	},
}

func init() {
	f := alertsSubscribeCmd.Flags()
	f.String("project", "genaiops", "project prefix for topic names")
	f.String("stage", "dev", "deployment stage")
	f.String("channel", "", "alert channel, e.g. escalations or data-quality")
	f.String("email", "", "subscriber email")

	alertsCmd.AddCommand(alertsSubscribeCmd)
}
