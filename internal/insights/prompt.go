// Package insights answers natural-language questions about the feedback
// lake by compiling them to Athena SQL with a Bedrock model.
package insights

import (
	"fmt"
	"strings"
)

const planFormat = `Return JSON:
{
  "sql": "...",
  "confidence": 0.0,
  "assumptions": ["..."],
  "needs_clarification": false,
  "clarifying_question": null
}`

type PromptInput struct {
	Question   string
	SchemaText string
	Tables     []string
	DateColumn string
	Today      string
	DateMin    string
}

func BuildPrompt(in PromptInput) string {
	return fmt.Sprintf(`You are a Text-to-SQL compiler for AWS Athena over a customer feedback data lake.

OUTPUT: valid JSON ONLY (never SQL alone).

RULES:
- One SELECT statement only, no semicolon, no comments.
- Use ONLY these tables: [%s] and only columns in the schema.
- %s must always have a lower bound >= '%s', e.g. %s >= '%s'.
- Wrap aggregates with COALESCE(..., 0) so results are never NULL.
- For a single total, return one column with a descriptive name.
- If the question cannot be answered from the schema, set needs_clarification
  and ask one short clarifying_question.

TODAY: %s

SCHEMA:
%s
QUESTION:
%s

%s
`, strings.Join(in.Tables, ", "), in.DateColumn, in.DateMin, in.DateColumn, in.DateMin,
		in.Today, in.SchemaText, in.Question, planFormat)
}

// BuildFixPrompt asks the model to repair a query that was rejected or
// failed in Athena.
func BuildFixPrompt(in PromptInput, previousSQL, failure string) string {
	return fmt.Sprintf(`FIX the Athena SQL query.

RULES:
- Output JSON only.
- One SELECT only, no semicolon, no comments.
- Use ONLY these tables: [%s].
- %s MUST have a lower bound >= '%s'.
- Respect the schema and the question.

SCHEMA:
%s
QUESTION:
%s

PREVIOUS SQL:
%s

ERROR:
%s

%s
`, strings.Join(in.Tables, ", "), in.DateColumn, in.DateMin, in.SchemaText, in.Question, previousSQL, failure, planFormat)
}
