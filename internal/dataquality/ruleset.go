package dataquality

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
)

const (
	CustomerReviewsRuleset = "customer_reviews_ruleset"
	ProjectTag             = "CustomerFeedbackAnalysis"
)

type GlueClient interface {
	CreateDataQualityRuleset(ctx context.Context, params *glue.CreateDataQualityRulesetInput, optFns ...func(*glue.Options)) (*glue.CreateDataQualityRulesetOutput, error)
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

type RulesetSpec struct {
	Name        string
	Description string
	Rules       []Rule
	Tags        map[string]string

	// Optional. When set, the ruleset is bound to the table and every rule
	// column must exist in it.
	Database string
	Table    string
}

func CustomerReviewsSpec() RulesetSpec {
	return RulesetSpec{
		Name:        CustomerReviewsRuleset,
		Description: "Data quality rules for customer reviews",
		Rules:       CustomerReviewRules(),
		Tags:        map[string]string{"Project": ProjectTag},
	}
}

// TableColumns returns the lower-cased column names of a catalog table,
// partition keys included.
func TableColumns(ctx context.Context, c GlueClient, database, table string) (map[string]string, error) {
	out, err := c.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: %w", database, table, err)
	}
	cols := map[string]string{}
	if out.Table == nil {
		return cols, nil
	}
	if sd := out.Table.StorageDescriptor; sd != nil {
		for _, col := range sd.Columns {
			cols[strings.ToLower(aws.ToString(col.Name))] = strings.ToLower(aws.ToString(col.Type))
		}
	}
	for _, p := range out.Table.PartitionKeys {
		cols[strings.ToLower(aws.ToString(p.Name))] = strings.ToLower(aws.ToString(p.Type))
	}
	return cols, nil
}

// MissingColumns reports rule columns absent from the table.
func MissingColumns(rules []Rule, tableCols map[string]string) []string {
	var missing []string
	for _, c := range Columns(rules) {
		if _, ok := tableCols[strings.ToLower(c)]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// CreateRuleset registers spec with Glue and returns the ruleset name.
func CreateRuleset(ctx context.Context, c GlueClient, spec RulesetSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("ruleset name is required")
	}
	if len(spec.Rules) == 0 {
		return "", fmt.Errorf("ruleset %s has no rules", spec.Name)
	}

	in := &glue.CreateDataQualityRulesetInput{
		Name:        aws.String(spec.Name),
		Description: aws.String(spec.Description),
		Ruleset:     aws.String(Render(spec.Rules)),
		Tags:        spec.Tags,
	}

	if spec.Database != "" && spec.Table != "" {
		cols, err := TableColumns(ctx, c, spec.Database, spec.Table)
		if err != nil {
			return "", err
		}
		if missing := MissingColumns(spec.Rules, cols); len(missing) > 0 {
			return "", fmt.Errorf("table %s.%s is missing columns: %s", spec.Database, spec.Table, strings.Join(missing, ", "))
		}
		in.TargetTable = &gluetypes.DataQualityTargetTable{
			DatabaseName: aws.String(spec.Database),
			TableName:    aws.String(spec.Table),
		}
	}

	out, err := c.CreateDataQualityRuleset(ctx, in)
	if err != nil {
		return "", fmt.Errorf("glue CreateDataQualityRuleset %s: %w", spec.Name, err)
	}
	return aws.ToString(out.Name), nil
}
