package support

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"genaiops/internal/nlp"
)

const (
	IntentGeneral = "general_support"

	ConfidentThreshold     = 0.7
	ClarificationThreshold = 0.5
	// Intent confidence below this escalates and asks open questions.
	lowConfidence = 0.3
	negativeLimit = 0.85
)

type intentPattern struct {
	Name        string
	Keywords    []string
	Services    []string
	Description string
	TemplateID  string
	Escalate    bool
}

// Order matters: ties go to the earlier intent.
var intentPatterns = []intentPattern{
	{
		Name:        "ec2_troubleshooting",
		Keywords:    []string{"ec2", "instance", "virtual machine", "vm", "compute", "instance not responding", "cannot connect", "ssh", "rdp", "instance status", "instance stopped"},
		Services:    []string{"ec2", "compute"},
		Description: "EC2 instance troubleshooting and support",
		TemplateID:  "ec2_troubleshooting",
	},
	{
		Name:        "s3_troubleshooting",
		Keywords:    []string{"s3", "bucket", "object storage", "storage", "file upload", "access denied", "403", "bucket policy", "cors"},
		Services:    []string{"s3", "storage"},
		Description: "S3 storage troubleshooting and support",
		TemplateID:  "s3_troubleshooting",
	},
	{
		Name:        "lambda_troubleshooting",
		Keywords:    []string{"lambda", "function", "serverless", "timeout", "cold start", "memory exceeded", "execution error", "lambda error"},
		Services:    []string{"lambda", "serverless"},
		Description: "Lambda function troubleshooting and support",
		TemplateID:  "lambda_troubleshooting",
	},
	{
		Name:        "rds_database",
		Keywords:    []string{"rds", "database", "mysql", "postgresql", "aurora", "db instance", "connection string", "database connection"},
		Services:    []string{"rds", "database"},
		Description: "RDS database support",
		TemplateID:  IntentGeneral,
	},
	{
		Name:        "networking",
		Keywords:    []string{"vpc", "subnet", "security group", "network acl", "route table", "internet gateway", "nat gateway", "network", "connectivity"},
		Services:    []string{"vpc", "networking"},
		Description: "VPC and networking support",
		TemplateID:  IntentGeneral,
	},
	{
		Name:        "iam_security",
		Keywords:    []string{"iam", "permission", "access denied", "policy", "role", "user", "authentication", "authorization", "security"},
		Services:    []string{"iam", "security"},
		Description: "IAM and security support",
		TemplateID:  IntentGeneral,
	},
	{
		Name:        "billing_cost",
		Keywords:    []string{"billing", "cost", "charge", "invoice", "pricing", "cost explorer", "budget", "free tier"},
		Services:    []string{"billing", "cost"},
		Description: "Billing and cost support",
		TemplateID:  IntentGeneral,
		Escalate:    true,
	},
	{
		Name:        "account_management",
		Keywords:    []string{"account", "organization", "consolidated billing", "service limit", "quota", "support plan"},
		Services:    []string{"account"},
		Description: "Account management support",
		TemplateID:  IntentGeneral,
		Escalate:    true,
	},
}

func lookupIntent(name string) (intentPattern, bool) {
	for _, p := range intentPatterns {
		if p.Name == name {
			return p, true
		}
	}
	return intentPattern{}, false
}

type Alternative struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

type IntentResult struct {
	Intent             string        `json:"intent"`
	Confidence         float64       `json:"confidence"`
	IsConfident        bool          `json:"is_confident"`
	NeedsClarification bool          `json:"needs_clarification"`
	TemplateID         string        `json:"template_id"`
	Description        string        `json:"description"`
	EscalationRequired bool          `json:"escalation_required"`
	DetectedServices   []string      `json:"detected_services"`
	Sentiment          nlp.Sentiment `json:"sentiment"`
	Entities           []string      `json:"entities"`
	KeyPhrases         []string      `json:"key_phrases"`
	Alternatives       []Alternative `json:"alternative_intents"`
}

type IntentDetector struct {
	analyzer *nlp.Analyzer
	logger   *zap.Logger
}

func NewIntentDetector(analyzer *nlp.Analyzer, logger *zap.Logger) *IntentDetector {
	return &IntentDetector{analyzer: analyzer, logger: logger}
}

// Detect never fails: each Comprehend call degrades to an empty result and
// scoring falls back to the query text alone.
func (d *IntentDetector) Detect(ctx context.Context, query string) IntentResult {
	var (
		ents []string
		kps  []string
		sent = nlp.Sentiment{Label: "NEUTRAL"}
	)
	if d.analyzer != nil {
		if e, err := d.analyzer.Entities(ctx, query); err != nil {
			d.logger.Warn("detect entities failed", zap.Error(err))
		} else {
			ents = nlp.EntityTexts(e)
		}
		if k, err := d.analyzer.KeyPhrases(ctx, query); err != nil {
			d.logger.Warn("detect key phrases failed", zap.Error(err))
		} else {
			kps = nlp.PhraseTexts(k)
		}
		if s, err := d.analyzer.Sentiment(ctx, query); err != nil {
			d.logger.Warn("detect sentiment failed", zap.Error(err))
		} else {
			sent = s
		}
	}

	scores := ScoreIntents(query, ents, kps)
	res := Classify(scores)
	res.Sentiment = sent
	res.Entities = ents
	res.KeyPhrases = kps
	d.logger.Info("intent detected", zap.String("intent", res.Intent), zap.Float64("confidence", res.Confidence))
	return res
}

// ScoreIntents weights keyword hits by where they occur: the query itself
// 1.0, a detected entity 0.7, a key phrase 0.5. Intents without a hit are
// absent from the result.
func ScoreIntents(query string, entities, phrases []string) []Alternative {
	q := strings.ToLower(query)
	ents := lowerAll(entities)
	kps := lowerAll(phrases)

	var scores []Alternative
	for _, p := range intentPatterns {
		score, hits := 0.0, 0
		for _, kw := range p.Keywords {
			kw = strings.ToLower(kw)
			switch {
			case strings.Contains(q, kw):
				score += 1.0
			case containsAny(ents, kw):
				score += 0.7
			case containsAny(kps, kw):
				score += 0.5
			default:
				continue
			}
			hits++
		}
		if hits == 0 {
			continue
		}
		norm := math.Min(score/float64(len(p.Keywords)), 1.0)
		boost := math.Min(float64(hits)/3, 0.3)
		scores = append(scores, Alternative{Intent: p.Name, Confidence: math.Min(norm+boost, 1.0)})
	}
	return scores
}

// Classify turns raw scores into a routed intent.
func Classify(scores []Alternative) IntentResult {
	top := Alternative{Intent: IntentGeneral, Confidence: 0.5}
	for i, s := range scores {
		if i == 0 || s.Confidence > top.Confidence {
			top = s
		}
	}

	res := IntentResult{
		Intent:             top.Intent,
		Confidence:         top.Confidence,
		IsConfident:        top.Confidence >= ConfidentThreshold,
		NeedsClarification: top.Confidence < ClarificationThreshold,
		TemplateID:         IntentGeneral,
		Description:        "General support",
		DetectedServices:   []string{},
		Alternatives:       []Alternative{},
	}
	if p, ok := lookupIntent(top.Intent); ok {
		res.TemplateID = p.TemplateID
		res.Description = p.Description
		res.EscalationRequired = p.Escalate
		res.DetectedServices = p.Services
	}

	sorted := append([]Alternative(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) > 1 {
		end := len(sorted)
		if end > 4 {
			end = 4
		}
		res.Alternatives = sorted[1:end]
	}
	return res
}

// ClarificationQuestion asks the user to narrow an uncertain query.
func ClarificationQuestion(r IntentResult) string {
	if r.Confidence < lowConfidence {
		return "I'd like to help you with your AWS question. To provide the most " +
			"accurate assistance, could you please provide more details about:\n" +
			"- Which AWS service you're working with?\n" +
			"- What specific issue or task you're trying to accomplish?\n" +
			"- Any error messages you're seeing?"
	}
	if r.Confidence < ClarificationThreshold && len(r.Alternatives) >= 2 {
		return fmt.Sprintf("I want to make sure I understand your question correctly. "+
			"Are you asking about:\n"+
			"A) %s\n"+
			"B) %s\n"+
			"C) Something else (please specify)\n\n"+
			"Or feel free to rephrase your question with more details.",
			titleIntent(r.Alternatives[0].Intent), titleIntent(r.Alternatives[1].Intent))
	}
	desc := r.Intent
	if p, ok := lookupIntent(r.Intent); ok {
		desc = p.Description
	}
	return fmt.Sprintf("I understand you're asking about %s. "+
		"To help you better, could you provide more specific details about "+
		"what you're trying to accomplish or the issue you're experiencing?", desc)
}

// RequiresEscalation reports whether a human should take the turn.
func RequiresEscalation(r IntentResult) (bool, string) {
	if r.EscalationRequired {
		return true, fmt.Sprintf("Intent '%s' requires human support", r.Intent)
	}
	if r.Sentiment.Label == "NEGATIVE" && r.Sentiment.Scores.Negative > negativeLimit {
		return true, "High negative sentiment detected - customer may be frustrated"
	}
	if r.Confidence < lowConfidence {
		return true, "Unable to determine intent with sufficient confidence"
	}
	return false, ""
}

func titleIntent(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func containsAny(texts []string, kw string) bool {
	for _, t := range texts {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
