package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"genaiops/internal/logging"
)

// v holds flag values overlaid with GENAIOPS_* env vars and the config file.
var (
	v      = viper.New()
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Operate the feedback analysis and GenAI pipelines",
	Long: `pipelinectl runs the one-off operations of the pipelines: data quality
rulesets, survey processing jobs, claim batches, model evaluation, prompt
templates, alert subscriptions, questions over the feedback lake and audit
exports.

Every flag can also be set as GENAIOPS_<FLAG> (dashes become underscores)
or as a key in the --config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (yaml)")
	rootCmd.PersistentFlags().String("region", "", "AWS region (defaults to the SDK chain)")

	rootCmd.AddCommand(dqCmd, surveyCmd, claimsCmd, routingCmd, promptsCmd, alertsCmd, supportCmd, insightsCmd, auditCmd)
}

func initConfig(cmd *cobra.Command) error {
	v.SetEnvPrefix("GENAIOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pipelinectl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func awsConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if r := v.GetString("region"); r != "" {
		opts = append(opts, awsconfig.WithRegion(r))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func printJSON(cmd *cobra.Command, val any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

// list reads a comma separated flag; env and config values arrive as
// one string.
func list(key string) []string {
	var out []string
	for _, raw := range v.GetStringSlice(key) {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func main() {
	logger = logging.New("pipelinectl")
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
