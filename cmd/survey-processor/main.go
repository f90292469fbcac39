package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genaiops/internal/logging"
	"genaiops/internal/survey"
)

var (
	inputPath  string
	outputPath string
)

var rootCmd = &cobra.Command{
	Use:   "survey-processor",
	Short: "Summarize survey CSV files inside a processing container",
	Long: `Reads every survey CSV under the input path, writes per-response
summaries, aggregate statistics and a parquet copy of the summaries to the
output path.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New("survey-processor")
		defer logger.Sync()

		logger.Info("processing surveys", zap.String("input", inputPath), zap.String("output", outputPath))
		res, err := survey.ProcessDir(inputPath, outputPath)
		if err != nil {
			logger.Error("survey processing failed", zap.Error(err))
			return err
		}
		logger.Info("surveys processed",
			zap.Int("responses", len(res.Rows)),
			zap.Int("summaries", len(res.Summaries)),
		)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&inputPath, "input-path", survey.ContainerInputPath, "directory holding survey CSV files")
	rootCmd.Flags().StringVar(&outputPath, "output-path", survey.ContainerOutputPath, "directory for summaries and statistics")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
