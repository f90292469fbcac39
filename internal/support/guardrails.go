package support

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"genaiops/internal/nlp"
)

type sensitivePattern struct {
	Name        string
	Description string
	re          *regexp.Regexp
}

var sensitivePatterns = []sensitivePattern{
	{"AWS Access Key", "AWS Access Key ID", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"AWS Secret Key", "Potential AWS Secret Access Key", regexp.MustCompile(`[A-Za-z0-9/+=]{40}`)},
	{"Password", "Password in plain text", regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*[:=]\s*\S+`)},
	{"Private Key", "Private key material", regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----`)},
	{"API Key", "Generic API key", regexp.MustCompile(`(?i)\b(api[_-]?key|apikey)\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}`)},
}

type BlockedTopic struct {
	Topic    string
	Keywords []string
	Response string
}

var blockedTopics = []BlockedTopic{
	{
		Topic:    "future_features",
		Keywords: []string{"roadmap", "upcoming", "will be released", "future release", "planning to launch", "next version", "soon", "future plans"},
		Response: "I cannot make commitments or discuss specific future AWS features or roadmap items. " +
			"I recommend checking the AWS What's New blog (https://aws.amazon.com/new/) and AWS re:Invent " +
			"announcements for information about new services and features.",
	},
	{
		Topic:    "account_credentials",
		Keywords: []string{"access key", "secret key", "password", "credentials", "login info", "authentication token"},
		Response: "I cannot provide, request, or handle AWS account credentials. Please never share your " +
			"access keys, passwords, or other credentials in this chat. If you've accidentally exposed " +
			"credentials, please rotate them immediately through the AWS Console.",
	},
	{
		Topic:    "direct_account_modification",
		Keywords: []string{"delete my", "modify my account", "change my billing", "cancel my subscription", "close my account"},
		Response: "I cannot directly modify AWS accounts or resources. For account changes, billing " +
			"modifications, or account closure, please use the AWS Console or contact AWS Support " +
			"directly through your support plan.",
	},
}

var (
	futureCommitment = []*regexp.Regexp{
		regexp.MustCompile(`(?i)we will (launch|release|add)`),
		regexp.MustCompile(`(?i)coming soon`),
		regexp.MustCompile(`(?i)in the (next|upcoming) (version|release)`),
		regexp.MustCompile(`(?i)(aws|amazon) (is|will be) planning`),
	}
	competitorDisparagement = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(azure|gcp|google cloud).*(bad|worse|inferior|poor)`),
		regexp.MustCompile(`(?i)(azure|gcp|google cloud).*(should not|shouldn't|avoid)`),
		regexp.MustCompile(`(?i)(azure|gcp|google cloud).*(problem|issue|flaw)`),
	}
)

const (
	credentialsResponse = "I noticed your message may contain sensitive credentials. " +
		"Please never share AWS access keys, secret keys, passwords, or " +
		"other credentials in this chat. If you've accidentally exposed " +
		"credentials, please rotate them immediately through the AWS Console. " +
		"I'm here to help with your technical question - could you rephrase " +
		"without including sensitive information?"
	refineResponse = "I apologize, but I need to refine my response to ensure it meets our " +
		"guidelines. Let me provide you with accurate information about AWS services " +
		"and how they can help with your needs. Could you provide more details about " +
		"your specific use case or issue?"
	rephraseResponse = "I want to make sure I provide safe and accurate information. " +
		"Could you please rephrase your question or provide more context?"
)

// ValidateInput checks user text for secrets and blocked topics.
func ValidateInput(text string) (bool, []string) {
	var issues []string
	for _, p := range sensitivePatterns {
		if p.re.MatchString(text) {
			issues = append(issues, fmt.Sprintf("Detected %s: %s", p.Name, p.Description))
		}
	}
	lower := strings.ToLower(text)
	for _, t := range blockedTopics {
		for _, kw := range t.Keywords {
			if strings.Contains(lower, kw) {
				issues = append(issues, "Blocked topic detected: "+t.Topic)
				break
			}
		}
	}
	return len(issues) == 0, issues
}

// ValidateOutput checks model text before it reaches the user.
func ValidateOutput(text string) (bool, []string) {
	var issues []string
	for _, p := range sensitivePatterns {
		if p.re.MatchString(text) {
			issues = append(issues, "Output contains "+p.Name)
		}
	}
	if anyMatch(futureCommitment, text) {
		issues = append(issues, "Output contains future commitment")
	}
	if anyMatch(competitorDisparagement, text) {
		issues = append(issues, "Output may contain competitor disparagement")
	}
	return len(issues) == 0, issues
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// SafeResponse picks the replacement text for a blocked exchange.
func SafeResponse(inputIssues, outputIssues []string) string {
	if len(inputIssues) > 0 {
		for _, issue := range inputIssues {
			l := strings.ToLower(issue)
			if strings.Contains(l, "credentials") || strings.Contains(l, "key") {
				return credentialsResponse
			}
		}
		for _, t := range blockedTopics {
			for _, issue := range inputIssues {
				if strings.Contains(strings.ToLower(issue), t.Topic) {
					return t.Response
				}
			}
		}
	}
	if len(outputIssues) > 0 {
		return refineResponse
	}
	return rephraseResponse
}

type GuardrailResult struct {
	InputSafe    bool     `json:"input_safe"`
	InputIssues  []string `json:"input_issues"`
	OutputSafe   bool     `json:"output_safe"`
	OutputIssues []string `json:"output_issues"`
	OverallSafe  bool     `json:"overall_safe"`
	SafeResponse string   `json:"safe_response,omitempty"`
}

func ApplyGuardrails(prompt, response string) GuardrailResult {
	r := GuardrailResult{}
	r.InputSafe, r.InputIssues = ValidateInput(prompt)
	r.OutputSafe, r.OutputIssues = ValidateOutput(response)
	r.OverallSafe = r.InputSafe && r.OutputSafe
	if !r.OverallSafe {
		r.SafeResponse = SafeResponse(r.InputIssues, r.OutputIssues)
	}
	return r
}

type GuardrailClient interface {
	ApplyGuardrail(ctx context.Context, params *bedrockruntime.ApplyGuardrailInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error)
}

// Guardrails layers an optional Bedrock managed guardrail and a Comprehend
// sentiment check over the local pattern checks.
type Guardrails struct {
	client   GuardrailClient
	id       string
	version  string
	analyzer *nlp.Analyzer
	logger   *zap.Logger
}

// NewGuardrails leaves the managed guardrail off when id is empty and the
// sentiment check off when analyzer is nil.
func NewGuardrails(client GuardrailClient, id, version string, analyzer *nlp.Analyzer, logger *zap.Logger) *Guardrails {
	if version == "" {
		version = "DRAFT"
	}
	return &Guardrails{client: client, id: strings.TrimSpace(id), version: version, analyzer: analyzer, logger: logger}
}

func (g *Guardrails) CheckInput(ctx context.Context, text string) (bool, []string) {
	safe, issues := ValidateInput(text)
	if msg, hit := g.managed(ctx, brtypes.GuardrailContentSourceInput, text); hit {
		issues = append(issues, "Managed guardrail intervened: "+msg)
		safe = false
	}
	return safe, issues
}

func (g *Guardrails) CheckOutput(ctx context.Context, text string) (bool, []string) {
	safe, issues := ValidateOutput(text)
	if msg, hit := g.managed(ctx, brtypes.GuardrailContentSourceOutput, text); hit {
		issues = append(issues, "Managed guardrail intervened: "+msg)
		safe = false
	}
	return safe, issues
}

// managed fails open: an ApplyGuardrail error is logged and ignored.
func (g *Guardrails) managed(ctx context.Context, src brtypes.GuardrailContentSource, text string) (string, bool) {
	if g == nil || g.id == "" || g.client == nil {
		return "", false
	}
	out, err := g.client.ApplyGuardrail(ctx, &bedrockruntime.ApplyGuardrailInput{
		GuardrailIdentifier: aws.String(g.id),
		GuardrailVersion:    aws.String(g.version),
		Source:              src,
		Content: []brtypes.GuardrailContentBlock{
			&brtypes.GuardrailContentBlockMemberText{Value: brtypes.GuardrailTextBlock{Text: aws.String(text)}},
		},
	})
	if err != nil {
		g.logger.Warn("apply guardrail failed", zap.String("guardrail", g.id), zap.Error(err))
		return "", false
	}
	if out.Action != brtypes.GuardrailActionGuardrailIntervened {
		return "", false
	}
	var parts []string
	for _, o := range out.Outputs {
		if t := aws.ToString(o.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), true
}

type TopicAnalysis struct {
	Entities      []string       `json:"entities"`
	Sentiment     *nlp.Sentiment `json:"sentiment,omitempty"`
	KeyPhrases    []string       `json:"key_phrases"`
	IsAppropriate bool           `json:"is_appropriate"`
	Error         string         `json:"error,omitempty"`
}

// CheckTopic runs Comprehend over the text. Strong negative sentiment is
// logged for review but never blocks; errors fail open.
func (g *Guardrails) CheckTopic(ctx context.Context, text string) TopicAnalysis {
	if g == nil || g.analyzer == nil {
		return TopicAnalysis{IsAppropriate: true}
	}
	ents, err := g.analyzer.Entities(ctx, text)
	if err != nil {
		return g.topicFailed(err)
	}
	sent, err := g.analyzer.Sentiment(ctx, text)
	if err != nil {
		return g.topicFailed(err)
	}
	kps, err := g.analyzer.KeyPhrases(ctx, text)
	if err != nil {
		return g.topicFailed(err)
	}
	if sent.Label == "NEGATIVE" && sent.Scores.Negative > 0.9 {
		g.logger.Warn("strongly negative input", zap.Float32("negative", sent.Scores.Negative))
	}
	return TopicAnalysis{
		Entities:      nlp.EntityTexts(ents),
		Sentiment:     &sent,
		KeyPhrases:    nlp.PhraseTexts(kps),
		IsAppropriate: true,
	}
}

func (g *Guardrails) topicFailed(err error) TopicAnalysis {
	g.logger.Warn("topic check failed", zap.Error(err))
	return TopicAnalysis{IsAppropriate: true, Error: err.Error()}
}
