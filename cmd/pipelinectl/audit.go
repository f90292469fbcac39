package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"genaiops/internal/config"
	"genaiops/internal/governance"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Governance audit trail",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one UTC day of audit events to S3",
	Long: `Re-runs the scheduled audit export for a single day. The JSON export,
its summary and the parquet partition are overwritten in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		day, err := time.Parse("2006-01-02", v.GetString("date"))
		if err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		c := governance.ExportConfig{
			AuditTable: v.GetString("table"),
			Bucket:     v.GetString("bucket"),
			LakePrefix: v.GetString("lake-prefix"),
			DaysBack:   1,
		}
		if err := config.Validate(c); err != nil {
			return err
		}
		cfg, err := awsConfig(ctx)
		if err != nil {
			return err
		}
		res, err := governance.NewExporter(cfg, c, logger).ExportDay(ctx, day)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	f := auditExportCmd.Flags()
	f.String("date", time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"), "UTC day to export")
	f.String("table", "", "audit trail DynamoDB table")
	f.String("bucket", "", "audit logs bucket")
	f.String("lake-prefix", "audit_events/", "parquet prefix inside the bucket")

	auditCmd.AddCommand(auditExportCmd)
}
