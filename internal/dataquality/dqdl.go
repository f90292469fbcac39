// Package dataquality renders Glue Data Quality (DQDL) rulesets and
// registers them with Glue.
package dataquality

import (
	"fmt"
	"strings"
)

type Rule interface {
	DQDL() string
	Column() string
}

type isComplete struct{ col string }

func (r isComplete) DQDL() string   { return fmt.Sprintf("IsComplete %s", quote(r.col)) }
func (r isComplete) Column() string { return r.col }

type columnValuesMatch struct{ col, pattern string }

func (r columnValuesMatch) DQDL() string {
	return fmt.Sprintf("ColumnValues %s matches %s", quote(r.col), quote(r.pattern))
}
func (r columnValuesMatch) Column() string { return r.col }

type columnLength struct {
	col      string
	min, max int
}

func (r columnLength) DQDL() string {
	return fmt.Sprintf("ColumnLength %s between %d and %d", quote(r.col), r.min, r.max)
}
func (r columnLength) Column() string { return r.col }

func IsComplete(col string) Rule { return isComplete{col: col} }

func ColumnValuesMatch(col, pattern string) Rule {
	return columnValuesMatch{col: col, pattern: pattern}
}

func ColumnLengthBetween(col string, min, max int) Rule {
	return columnLength{col: col, min: min, max: max}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Render produces a DQDL document: Rules = [ ... ].
func Render(rules []Rule) string {
	var b strings.Builder
	b.WriteString("Rules = [\n")
	for i, r := range rules {
		b.WriteString("    ")
		b.WriteString(r.DQDL())
		if i < len(rules)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("]")
	return b.String()
}

// Columns lists the distinct columns the rules reference, in order.
func Columns(rules []Rule) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if !seen[r.Column()] {
			seen[r.Column()] = true
			out = append(out, r.Column())
		}
	}
	return out
}

// CustomerReviewRules are the checks applied to the reviews table before
// Comprehend enrichment.
func CustomerReviewRules() []Rule {
	return []Rule{
		IsComplete("review_text"),
		IsComplete("product_id"),
		IsComplete("customer_id"),
		IsComplete("rating"),
		IsComplete("review_date"),

		ColumnValuesMatch("review_text", ".{10,}"),
		ColumnValuesMatch("rating", "^[1-5]$"),
		ColumnValuesMatch("review_date", `\d{4}-\d{2}-\d{2}`),

		ColumnLengthBetween("review_text", 10, 5000),
	}
}
