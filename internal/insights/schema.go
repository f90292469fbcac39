package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
)

type GlueClient interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

type Column struct {
	Name string
	Type string
}

type TableSchema struct {
	Database   string
	Table      string
	Location   string
	Columns    []Column
	Partitions []Column
}

// LoadSchema reads the catalog entry of every table. Columns are sorted so
// the prompt text is stable across runs.
func LoadSchema(ctx context.Context, c GlueClient, database string, tables []string) ([]TableSchema, error) {
	out := make([]TableSchema, 0, len(tables))
	for _, t := range tables {
		res, err := c.GetTable(ctx, &glue.GetTableInput{DatabaseName: aws.String(database), Name: aws.String(t)})
		if err != nil {
			return nil, fmt.Errorf("glue GetTable %s.%s: %w", database, t, err)
		}
		if res.Table == nil {
			return nil, fmt.Errorf("glue GetTable %s.%s: empty table", database, t)
		}
		ts := TableSchema{Database: database, Table: aws.ToString(res.Table.Name)}
		if sd := res.Table.StorageDescriptor; sd != nil {
			ts.Location = aws.ToString(sd.Location)
			for _, col := range sd.Columns {
				ts.Columns = append(ts.Columns, Column{Name: aws.ToString(col.Name), Type: strings.ToLower(aws.ToString(col.Type))})
			}
		}
		for _, p := range res.Table.PartitionKeys {
			ts.Partitions = append(ts.Partitions, Column{Name: aws.ToString(p.Name), Type: strings.ToLower(aws.ToString(p.Type))})
		}
		sort.Slice(ts.Columns, func(i, j int) bool { return ts.Columns[i].Name < ts.Columns[j].Name })
		out = append(out, ts)
	}
	return out, nil
}

// SchemaText renders tables as a compact DDL-like block for prompts:
//
//	DATABASE feedback
//	TABLE quality_scores (
//	  file_id string,
//	  quality_score double
//	)
//	PARTITIONED BY (dt string)
func SchemaText(schemas []TableSchema) string {
	var b strings.Builder
	for i, s := range schemas {
		if i == 0 {
			fmt.Fprintf(&b, "DATABASE %s\n", s.Database)
		}
		fmt.Fprintf(&b, "TABLE %s (\n", s.Table)
		for ci, c := range s.Columns {
			sep := ","
			if ci == len(s.Columns)-1 {
				sep = ""
			}
			fmt.Fprintf(&b, "  %s %s%s\n", c.Name, c.Type, sep)
		}
		b.WriteString(")\n")
		if len(s.Partitions) > 0 {
			parts := make([]string, 0, len(s.Partitions))
			for _, p := range s.Partitions {
				parts = append(parts, p.Name+" "+p.Type)
			}
			fmt.Fprintf(&b, "PARTITIONED BY (%s)\n", strings.Join(parts, ", "))
		}
		if s.Location != "" {
			fmt.Fprintf(&b, "LOCATION %s\n", s.Location)
		}
	}
	return b.String()
}
