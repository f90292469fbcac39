// Package claims extracts structured fields and summaries from insurance
// claim documents with Bedrock models.
package claims

import (
	"fmt"
	"strings"
)

const (
	extractMaxTokens   = 1000
	extractTemperature = 0.0
	summaryMaxTokens   = 500
	summaryTemperature = 0.7

	// ValidationGoal is the shorter extraction asked of every validation
	// model so their outputs are comparable.
	ValidationGoal = "Extract key information from this document (Name, Policy, Date, Amount)."
)

var extractFields = []string{
	"Claimant Name",
	"Policy Number",
	"Incident Date",
	"Claim Amount",
	"Incident Description",
}

func ExtractPrompt(document string) string {
	var b strings.Builder
	b.WriteString("Extract the following information from this insurance claim document:\n")
	for _, f := range extractFields {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("\nDocument:\n")
	b.WriteString(document)
	b.WriteString("\n\nReturn the information in JSON format.")
	return b.String()
}

func SummaryPrompt(extracted, policies string) string {
	input := extracted
	if strings.TrimSpace(policies) != "" {
		input = fmt.Sprintf("EXTRACTED DATA:\n%s\n\nRELEVANT POLICIES:\n%s", extracted, policies)
	}
	return fmt.Sprintf("Based on this extracted information:\n%s\n\nGenerate a concise summary of the claim.", input)
}

func validationPrompt(goal, document string) string {
	return fmt.Sprintf("%s\n\nDocument:\n%s", goal, document)
}
