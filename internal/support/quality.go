package support

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultQualityThreshold = 70.0

	minResponseChars = 100
	maxResponseChars = 3000
)

var (
	acknowledgmentRe = regexp.MustCompile(`(?i)(understand|see|notice|recognize|thank you|thanks|i can help)`)
	nextStepsRe      = regexp.MustCompile(`(?i)(next step|you should|please|recommend|suggest|you can|try)`)
	placeholderRe    = regexp.MustCompile(`\[.*?\]|\{.*?\}|TODO|FIXME|XXX`)
	listRe           = regexp.MustCompile(`(?m)^\s*[\d\-\*•]\s+`)
	numberedRe       = regexp.MustCompile(`(?m)^\d+\.`)

	accuracyChecks = []struct {
		re  *regexp.Regexp
		msg string
	}{
		{regexp.MustCompile(`http://docs\.aws`), "Should use HTTPS for AWS docs"},
		{regexp.MustCompile(`<YOUR_.*?>`), "Contains placeholder tags"},
		{regexp.MustCompile(`\$\{.*?\}`), "Contains template variables"},
	}

	relevanceServices = []string{"ec2", "s3", "lambda", "rds", "dynamodb", "vpc", "iam", "cloudwatch", "cloudformation", "elb"}
	jargonTerms       = []string{"api", "cli", "sdk", "vpc", "cidr", "arn", "iam"}
	empathyTerms      = []string{"understand", "help", "assist", "sorry", "apologize", "i see", "i notice", "i can help"}
)

type CheckResult struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
	Penalty  float64  `json:"penalty"`
}

func (c *CheckResult) issue(penalty float64, format string, args ...any) {
	c.Issues = append(c.Issues, fmt.Sprintf(format, args...))
	c.Penalty += penalty
}

func (c *CheckResult) warn(penalty float64, msg string) {
	c.Warnings = append(c.Warnings, msg)
	c.Penalty += penalty
}

type QualityResult struct {
	IsValid   bool                   `json:"is_valid"`
	Score     float64                `json:"score"`
	Issues    []string               `json:"issues"`
	Warnings  []string               `json:"warnings"`
	Details   map[string]CheckResult `json:"details"`
	Timestamp string                 `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
}

// ValidateResponse scores a reply out of 100. Every check subtracts its
// penalty; the reply is valid at 70 or above with no issues.
func ValidateResponse(response, query string) QualityResult {
	checks := []struct {
		name string
		res  CheckResult
	}{
		{"completeness", checkCompleteness(response)},
		{"structure", checkStructure(response)},
		{"accuracy", checkAccuracy(response)},
		{"relevance", checkRelevance(response, query)},
		{"tone", checkTone(response)},
	}

	r := QualityResult{
		Issues:    []string{},
		Warnings:  []string{},
		Details:   make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC().Format(timeLayout),
	}
	score := 100.0
	for _, c := range checks {
		c.res.Valid = len(c.res.Issues) == 0
		r.Issues = append(r.Issues, c.res.Issues...)
		r.Warnings = append(r.Warnings, c.res.Warnings...)
		score -= c.res.Penalty
		r.Details[c.name] = c.res
	}
	r.Score = math.Max(0, score)
	r.IsValid = score >= DefaultQualityThreshold && len(r.Issues) == 0
	return r
}

func checkCompleteness(resp string) CheckResult {
	var c CheckResult
	if n := utf8.RuneCountInString(resp); n < minResponseChars {
		c.issue(30, "Response too short: %d chars", n)
	}
	if !acknowledgmentRe.MatchString(resp) {
		c.warn(5, "Response lacks acknowledgment of user's issue")
	}
	if !nextStepsRe.MatchString(resp) {
		c.issue(20, "Response lacks clear next steps or guidance")
	}
	return c
}

func checkStructure(resp string) CheckResult {
	var c CheckResult
	n := utf8.RuneCountInString(resp)
	if n > maxResponseChars {
		c.issue(10, "Response too long: %d chars (max: %d)", n, maxResponseChars)
	}
	if len(strings.Split(resp, "\n")) < 3 {
		c.warn(3, "Response could benefit from better organization")
	}
	if !listRe.MatchString(resp) && n > 500 {
		c.warn(2, "Long response could benefit from lists or bullet points")
	}
	return c
}

func checkAccuracy(resp string) CheckResult {
	var c CheckResult
	if ph := placeholderRe.FindAllString(resp, 3); len(ph) > 0 {
		c.issue(40, "Response contains placeholders: %q", ph)
	}
	if strings.Count(resp, "```")%2 != 0 {
		c.issue(15, "Unmatched code block markers")
	}
	for _, chk := range accuracyChecks {
		if chk.re.MatchString(resp) {
			c.issue(10, "%s", chk.msg)
		}
	}
	return c
}

func checkRelevance(resp, query string) CheckResult {
	var c CheckResult
	q := strings.ToLower(query)
	r := strings.ToLower(resp)
	var mentioned []string
	for _, s := range relevanceServices {
		if strings.Contains(q, s) {
			mentioned = append(mentioned, s)
		}
	}
	if len(mentioned) == 0 {
		return c
	}
	for _, s := range mentioned {
		if strings.Contains(r, s) {
			return c
		}
	}
	c.warn(10, fmt.Sprintf("Response may not address mentioned services: %v", mentioned))
	return c
}

func checkTone(resp string) CheckResult {
	var c CheckResult
	r := strings.ToLower(resp)
	jargon := 0
	for _, t := range jargonTerms {
		if strings.Contains(r, t) {
			jargon++
		}
	}
	if jargon > 5 && utf8.RuneCountInString(resp) < 500 {
		c.warn(5, "Response may be too technical - consider simplifying")
	}
	empathetic := false
	for _, t := range empathyTerms {
		if strings.Contains(r, t) {
			empathetic = true
			break
		}
	}
	if !empathetic {
		c.warn(3, "Response could be more empathetic")
	}
	return c
}

// TestCase is a scripted expectation for a canned query.
type TestCase struct {
	ID                 string   `json:"id" yaml:"id"`
	RequiredKeywords   []string `json:"required_keywords" yaml:"required_keywords"`
	ProhibitedKeywords []string `json:"prohibited_keywords" yaml:"prohibited_keywords"`
	ExpectedFormat     string   `json:"expected_format" yaml:"expected_format"`
	MinSteps           int      `json:"min_steps" yaml:"min_steps"`
}

type TestCaseResult struct {
	Passed     bool     `json:"passed"`
	Issues     []string `json:"issues"`
	TestCaseID string   `json:"test_case_id"`
}

func ValidateTestCase(resp string, tc TestCase) TestCaseResult {
	lower := strings.ToLower(resp)
	issues := []string{}
	for _, kw := range tc.RequiredKeywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			issues = append(issues, "Missing required keyword: "+kw)
		}
	}
	for _, kw := range tc.ProhibitedKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			issues = append(issues, "Contains prohibited keyword: "+kw)
		}
	}
	switch tc.ExpectedFormat {
	case "numbered_list":
		if !numberedRe.MatchString(resp) {
			issues = append(issues, "Expected numbered list format")
		}
	case "code_block":
		if !strings.Contains(resp, "```") {
			issues = append(issues, "Expected code block")
		}
	}
	if tc.MinSteps > 0 {
		if steps := len(numberedRe.FindAllString(resp, -1)); steps < tc.MinSteps {
			issues = append(issues, fmt.Sprintf("Expected at least %d steps, found %d", tc.MinSteps, steps))
		}
	}
	id := tc.ID
	if id == "" {
		id = "unknown"
	}
	return TestCaseResult{Passed: len(issues) == 0, Issues: issues, TestCaseID: id}
}

func ImprovementSuggestions(r QualityResult) []string {
	var out []string
	if r.Score < DefaultQualityThreshold {
		out = append(out, "Consider regenerating the response with a different approach")
	}
	if len(r.Issues) > 0 {
		n := len(r.Issues)
		if n > 3 {
			n = 3
		}
		out = append(out, "Address critical issues: "+strings.Join(r.Issues[:n], "; "))
	}
	if len(r.Details["completeness"].Warnings) > 0 {
		out = append(out, "Add clear acknowledgment of the user's issue at the start")
	}
	if len(r.Details["structure"].Warnings) > 0 {
		out = append(out, "Improve organization with sections or bullet points")
	}
	if len(r.Details["tone"].Warnings) > 0 {
		out = append(out, "Use more empathetic and supportive language")
	}
	return out
}
