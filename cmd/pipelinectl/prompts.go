package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"genaiops/internal/db"
	"genaiops/internal/objstore"
	"genaiops/internal/support"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Versioned prompt templates",
}

func promptStore(cmd *cobra.Command) (*support.PromptStore, error) {
	cfg, err := awsConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	return support.NewPromptStore(
		dynamodb.NewFromConfig(cfg), v.GetString("table"),
		objstore.New(s3.NewFromConfig(cfg)), v.GetString("bucket"),
		logger,
	), nil
}

var promptsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store a template version and point latest at it",
	Long: `Reads a template file (YAML or JSON with name, template and parameters)
and stores it under --id at --version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(v.GetString("file"))
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		var t support.Template
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("decode template: %w", err)
		}
		if t.Template == "" {
			return fmt.Errorf("template file has no template text")
		}

		ps, err := promptStore(cmd)
		if err != nil {
			return err
		}
		id, version := v.GetString("id"), v.GetString("version")
		if err := ps.Save(cmd.Context(), id, t, version, map[string]any{"source_file": v.GetString("file")}); err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"template_id": id, "version": version})
	},
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored and built-in templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := promptStore(cmd)
		if err != nil {
			return err
		}
		return printJSON(cmd, ps.List(cmd.Context()))
	},
}

func init() {
	promptsCmd.PersistentFlags().String("table", db.PromptTableName(), "template index table")
	promptsCmd.PersistentFlags().String("bucket", "", "template body bucket")

	f := promptsSaveCmd.Flags()
	f.String("id", "", "template id")
	f.String("version", "", "template version (not \"latest\")")
	f.String("file", "", "template file")

	promptsCmd.AddCommand(promptsSaveCmd, promptsListCmd)
}
