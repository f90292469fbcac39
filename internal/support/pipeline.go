package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"genaiops/internal/alerts"
	"genaiops/internal/governance"
	"genaiops/internal/llm"
	"genaiops/internal/metrics"
	"genaiops/internal/nlp"
	"genaiops/internal/objstore"
)

const (
	ResponseAnswer        = "answer"
	ResponseClarification = "clarification"
	ResponseEscalation    = "escalation"
	ResponseGuardrail     = "guardrail"

	generateMaxTokens   = 2048
	generateTemperature = 0.7
	historyTurns        = 5

	escalationMessage = "Thank you for contacting AWS Support. Based on your inquiry, " +
		"I'd like to connect you with a specialist who can provide " +
		"more detailed assistance. \n\n" +
		"Your case has been escalated to our support team. " +
		"You can expect a response from a support engineer soon. " +
		"In the meantime, you can check the status of your case in the " +
		"AWS Support Center."
	apologyMessage = "I apologize, but I encountered an error while processing your request. " +
		"Please try again or contact AWS Support for assistance."
)

// Turn is the state passed between the Step Functions tasks. Each task
// returns its input with its own fields filled in.
type Turn struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`

	SessionID     string            `json:"session_id,omitempty"`
	InteractionID string            `json:"interaction_id,omitempty"`
	Query         string            `json:"query"`
	UserID        string            `json:"user_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	TurnCount     int               `json:"turn_count,omitempty"`
	Timestamp     string            `json:"timestamp,omitempty"`

	GuardrailTriggered bool     `json:"guardrail_triggered"`
	GuardrailIssues    []string `json:"guardrail_issues,omitempty"`
	SkipProcessing     bool     `json:"skip_processing"`
	PIIRedacted        bool     `json:"pii_redacted,omitempty"`
	PIITypes           []string `json:"pii_types,omitempty"`

	Intent             string         `json:"intent,omitempty"`
	IntentConfidence   float64        `json:"intent_confidence,omitempty"`
	IsConfident        bool           `json:"is_confident,omitempty"`
	NeedsClarification bool           `json:"needs_clarification,omitempty"`
	TemplateID         string         `json:"template_id,omitempty"`
	EscalationRequired bool           `json:"escalation_required,omitempty"`
	EscalationReason   string         `json:"escalation_reason,omitempty"`
	DetectedServices   []string       `json:"detected_services,omitempty"`
	Sentiment          *nlp.Sentiment `json:"sentiment,omitempty"`
	AlternativeIntents []Alternative  `json:"alternative_intents,omitempty"`

	Response                 string     `json:"response,omitempty"`
	ResponseType             string     `json:"response_type,omitempty"`
	ModelID                  string     `json:"model_id,omitempty"`
	OutputGuardrailTriggered bool       `json:"output_guardrail_triggered,omitempty"`
	Usage                    *llm.Usage `json:"usage,omitempty"`
	EscalationMessageID      string     `json:"escalation_message_id,omitempty"`

	QualityValidation      *QualityResult `json:"quality_validation,omitempty"`
	QualityScore           *float64       `json:"quality_score,omitempty"`
	QualityPassed          *bool          `json:"quality_passed,omitempty"`
	NeedsRegeneration      bool           `json:"needs_regeneration,omitempty"`
	ImprovementSuggestions []string       `json:"improvement_suggestions,omitempty"`

	FeedbackType      string `json:"feedback_type,omitempty"`
	Rating            int    `json:"rating,omitempty"`
	Comments          string `json:"comments,omitempty"`
	FeedbackCollected *bool  `json:"feedback_collected,omitempty"`
	FeedbackError     string `json:"feedback_error,omitempty"`
}

func (t Turn) failed(status int, msg string) Turn {
	t.StatusCode = status
	t.Error = msg
	return t
}

// Assistant owns the clients every task needs.
type Assistant struct {
	conversations *Conversations
	guardrails    *Guardrails
	detector      *IntentDetector
	prompts       *PromptStore
	inv           llm.Invoker
	feedback      *FeedbackStore
	notifier      *alerts.Notifier
	governance    *governance.Service
	cfg           Config
	logger        *zap.Logger
	newID         func() string
	now           func() time.Time
}

type Deps struct {
	Conversations *Conversations
	Guardrails    *Guardrails
	Detector      *IntentDetector
	Prompts       *PromptStore
	Invoker       llm.Invoker
	Feedback      *FeedbackStore
	Notifier      *alerts.Notifier
	Governance    *governance.Service
}

func NewAssistant(d Deps, cfg Config, logger *zap.Logger) *Assistant {
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModel
	}
	return &Assistant{
		conversations: d.Conversations,
		guardrails:    d.Guardrails,
		detector:      d.Detector,
		prompts:       d.Prompts,
		inv:           d.Invoker,
		feedback:      d.Feedback,
		notifier:      d.Notifier,
		governance:    d.Governance,
		cfg:           cfg,
		logger:        logger,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

func NewFromConfig(cfg aws.Config, c Config, logger *zap.Logger) *Assistant {
	ddb := dynamodb.NewFromConfig(cfg)
	brt := bedrockruntime.NewFromConfig(cfg)
	analyzer := nlp.NewAnalyzer(comprehend.NewFromConfig(cfg))

	var inv llm.Invoker = llm.NewBreaker(llm.NewBedrock(brt), llm.DefaultBreakerConfig(), logger)
	if cache := llm.NewResponseCache(ddb, c.CacheTable, 0); cache != nil {
		inv = llm.NewCached(inv, cache)
	}
	var topic *nlp.Analyzer
	if c.TopicCheck {
		topic = analyzer
	}

	return NewAssistant(Deps{
		Conversations: NewConversations(ddb, c.ConversationTable, c.SessionTTL),
		Guardrails:    NewGuardrails(brt, c.GuardrailID, c.GuardrailVersion, topic, logger),
		Detector:      NewIntentDetector(analyzer, logger),
		Prompts:       NewPromptStore(ddb, c.PromptTable, objstore.New(s3.NewFromConfig(cfg)), c.PromptBucket, logger),
		Invoker:       inv,
		Feedback:      NewFeedbackStore(ddb, c.FeedbackTable, metrics.NewPublisher(c.MetricsNamespace, cloudwatch.NewFromConfig(cfg), logger), logger),
		Notifier:      alerts.NewNotifier(sns.NewFromConfig(cfg), c.EscalationTopicArn),
		Governance:    governance.NewFromConfig(cfg, c.Governance, logger),
	}, c, logger)
}

func (a *Assistant) Conversations() *Conversations { return a.conversations }
func (a *Assistant) Feedback() *FeedbackStore       { return a.feedback }

func (a *Assistant) stamp() string { return a.now().UTC().Format(timeLayout) }

// Capture validates the query, opens or resumes the session and screens
// the input. A blocked input short-circuits the remaining tasks. PII is
// masked before the query is stored or sent to a model.
func (a *Assistant) Capture(ctx context.Context, t Turn) (Turn, error) {
	if strings.TrimSpace(t.Query) == "" {
		return t.failed(400, "Query is required"), nil
	}
	if t.UserID == "" {
		t.UserID = "anonymous"
	}
	if t.InteractionID == "" {
		t.InteractionID = a.newID()
	}

	var sess *Session
	if t.SessionID == "" {
		t.SessionID = a.newID()
		source := t.Metadata["source"]
		if source == "" {
			source = "api"
		}
		s, err := a.conversations.Create(ctx, t.SessionID, map[string]any{
			"user_id":    t.UserID,
			"source":     source,
			"created_at": a.stamp(),
		})
		if err != nil {
			a.logger.Error("create session failed", zap.Error(err))
			return t.failed(500, err.Error()), nil
		}
		sess = s
		a.logger.Info("session created", zap.String("session_id", t.SessionID))
	} else {
		s, err := a.conversations.Get(ctx, t.SessionID)
		if errors.Is(err, ErrSessionNotFound) {
			return t.failed(404, "Session not found"), nil
		}
		if err != nil {
			a.logger.Error("load session failed", zap.String("session_id", t.SessionID), zap.Error(err))
			return t.failed(500, err.Error()), nil
		}
		sess = s
	}

	if topic := a.guardrails.CheckTopic(ctx, t.Query); topic.Sentiment != nil {
		t.Sentiment = topic.Sentiment
	}
	if safe, issues := a.guardrails.CheckInput(ctx, t.Query); !safe {
		a.logger.Warn("input guardrail triggered", zap.String("session_id", t.SessionID), zap.Strings("issues", issues))
		t.StatusCode = 200
		t.GuardrailTriggered = true
		t.GuardrailIssues = issues
		t.Response = SafeResponse(issues, nil)
		t.ResponseType = ResponseGuardrail
		t.SkipProcessing = true
		if _, err := a.governance.Log(ctx, governance.EventGuardrailBlocked, t.UserID, map[string]any{
			"source":     "INPUT",
			"session_id": t.SessionID,
			"issues":     issues,
		}, governance.SeverityMedium); err != nil {
			a.logger.Error("audit guardrail block failed", zap.String("session_id", t.SessionID), zap.Error(err))
		}
		return t, nil
	}

	if r := a.governance.Redact(ctx, t.Query, t.UserID); r.HasPII {
		t.Query = r.Text
		t.PIIRedacted = true
		t.PIITypes = r.PIITypes
	}

	if err := a.conversations.AddMessage(ctx, t.SessionID, RoleUser, t.Query, map[string]any{"timestamp": a.stamp()}); err != nil {
		a.logger.Error("store user message failed", zap.String("session_id", t.SessionID), zap.Error(err))
		return t.failed(500, err.Error()), nil
	}

	t.StatusCode = 200
	t.TurnCount = sess.TurnCount + 1
	t.GuardrailTriggered = false
	t.SkipProcessing = false
	t.Timestamp = a.stamp()
	a.logger.Info("query captured", zap.String("session_id", t.SessionID), zap.Int("turn", t.TurnCount))
	return t, nil
}

// DetectIntent routes the query to a template and decides whether to ask
// for clarification or hand off to a human.
func (a *Assistant) DetectIntent(ctx context.Context, t Turn) (Turn, error) {
	if t.SkipProcessing {
		return t, nil
	}
	if t.Query == "" {
		t.Error = "Query is required for intent detection"
		return t, nil
	}
	r := a.detector.Detect(ctx, t.Query)
	t.Intent = r.Intent
	t.IntentConfidence = r.Confidence
	t.IsConfident = r.IsConfident
	t.NeedsClarification = r.NeedsClarification
	t.TemplateID = r.TemplateID
	t.EscalationRequired, t.EscalationReason = RequiresEscalation(r)
	t.DetectedServices = r.DetectedServices
	sent := r.Sentiment
	t.Sentiment = &sent
	t.AlternativeIntents = r.Alternatives
	return t, nil
}

func (t Turn) intentResult() IntentResult {
	return IntentResult{
		Intent:       t.Intent,
		Confidence:   t.IntentConfidence,
		Alternatives: t.AlternativeIntents,
	}
}

// Generate answers the turn. Clarification wins over escalation, which
// wins over a model answer.
func (a *Assistant) Generate(ctx context.Context, t Turn) (Turn, error) {
	if t.SkipProcessing {
		return t, nil
	}
	switch {
	case t.NeedsClarification:
		return a.clarify(ctx, t), nil
	case t.EscalationRequired:
		return a.escalate(ctx, t), nil
	}

	if t.TemplateID == "" {
		t.TemplateID = IntentGeneral
	}
	start := a.now()
	text, usage, outputSafe, err := a.answer(ctx, t)
	if err != nil {
		a.logger.Error("response generation failed", zap.String("session_id", t.SessionID), zap.Error(err))
		t.Error = "Response generation error: " + err.Error()
		t.Response = apologyMessage
		return t, nil
	}

	if err := a.conversations.AddMessage(ctx, t.SessionID, RoleAssistant, text, map[string]any{
		"template_id": t.TemplateID,
		"model_id":    a.cfg.ModelID,
		"intent":      t.Intent,
		"output_safe": outputSafe,
	}); err != nil {
		a.logger.Error("store assistant message failed", zap.String("session_id", t.SessionID), zap.Error(err))
		t.Error = "Response generation error: " + err.Error()
		t.Response = apologyMessage
		return t, nil
	}

	t.Response = text
	t.ResponseType = ResponseAnswer
	t.ModelID = a.cfg.ModelID
	t.OutputGuardrailTriggered = !outputSafe
	t.Usage = &usage
	a.audit(ctx, t, a.now().Sub(start))
	return t, nil
}

func (a *Assistant) audit(ctx context.Context, t Turn, latency time.Duration) {
	if t.OutputGuardrailTriggered {
		if _, err := a.governance.Log(ctx, governance.EventResponseBlocked, t.UserID, map[string]any{
			"source":     "OUTPUT",
			"session_id": t.SessionID,
			"model_id":   t.ModelID,
		}, governance.SeverityHigh); err != nil {
			a.logger.Error("audit response block failed", zap.String("session_id", t.SessionID), zap.Error(err))
		}
	}
	if _, err := a.governance.LogQuery(ctx, governance.QueryEvent{
		RequestID:        t.InteractionID,
		UserID:           t.UserID,
		Query:            t.Query,
		Response:         t.Response,
		ModelID:          t.ModelID,
		HasPII:           t.PIIRedacted,
		GuardrailBlocked: t.OutputGuardrailTriggered,
		Latency:          latency,
	}); err != nil {
		a.logger.Error("audit query failed", zap.String("session_id", t.SessionID), zap.Error(err))
	}
}

func (a *Assistant) answer(ctx context.Context, t Turn) (string, llm.Usage, bool, error) {
	hist, err := a.conversations.History(ctx, t.SessionID, historyTurns)
	if err != nil {
		return "", llm.Usage{}, false, err
	}
	tmpl := a.prompts.Get(ctx, t.TemplateID, "")
	prompt := tmpl.Format(map[string]string{"query": t.Query, "history": FormatHistory(hist)})

	c, err := a.inv.Invoke(ctx, llm.Request{
		ModelID:     a.cfg.ModelID,
		Prompt:      prompt,
		MaxTokens:   generateMaxTokens,
		Temperature: generateTemperature,
	})
	if err != nil {
		return "", llm.Usage{}, false, fmt.Errorf("model invocation failed: %w", err)
	}

	text := c.Text
	safe, issues := a.guardrails.CheckOutput(ctx, text)
	if !safe {
		a.logger.Warn("output guardrail triggered", zap.String("session_id", t.SessionID), zap.Strings("issues", issues))
		text = SafeResponse(nil, issues)
	}
	return text, c.Usage, safe, nil
}

func (a *Assistant) clarify(ctx context.Context, t Turn) Turn {
	q := ClarificationQuestion(t.intentResult())
	if t.SessionID != "" {
		if err := a.conversations.AddMessage(ctx, t.SessionID, RoleAssistant, q, map[string]any{"type": ResponseClarification}); err != nil {
			a.logger.Error("store clarification failed", zap.String("session_id", t.SessionID), zap.Error(err))
		}
	}
	t.Response = q
	t.ResponseType = ResponseClarification
	return t
}

func (a *Assistant) escalate(ctx context.Context, t Turn) Turn {
	if t.SessionID != "" {
		if err := a.conversations.AddMessage(ctx, t.SessionID, RoleAssistant, escalationMessage, map[string]any{"type": ResponseEscalation}); err != nil {
			a.logger.Error("store escalation failed", zap.String("session_id", t.SessionID), zap.Error(err))
		}
		if err := a.conversations.UpdateMetadata(ctx, t.SessionID, map[string]any{"escalated": true}); err != nil {
			a.logger.Error("mark session escalated failed", zap.String("session_id", t.SessionID), zap.Error(err))
		}
	}
	if a.notifier.Enabled() {
		subject := fmt.Sprintf("Support escalation: %s", t.Intent)
		body := fmt.Sprintf("Session: %s\nIntent: %s (%.2f)\nReason: %s\n\nQuery:\n%s",
			t.SessionID, t.Intent, t.IntentConfidence, t.EscalationReason, t.Query)
		id, err := a.notifier.Notify(ctx, subject, body)
		if err != nil {
			a.logger.Error("escalation notice failed", zap.String("session_id", t.SessionID), zap.Error(err))
		}
		t.EscalationMessageID = id
	}
	t.Response = escalationMessage
	t.ResponseType = ResponseEscalation
	return t
}

// Validate scores the generated response.
func (a *Assistant) Validate(_ context.Context, t Turn) (Turn, error) {
	if t.SkipProcessing {
		return t, nil
	}
	if t.Response == "" {
		t.QualityValidation = &QualityResult{Error: "No response to validate", Issues: []string{}, Warnings: []string{}}
		passed := false
		t.QualityPassed = &passed
		return t, nil
	}
	r := ValidateResponse(t.Response, t.Query)
	a.logger.Info("response quality scored",
		zap.Float64("score", r.Score),
		zap.Float64("threshold", a.cfg.QualityThreshold),
		zap.Strings("issues", r.Issues))

	var suggestions []string
	if r.Score < a.cfg.QualityThreshold {
		suggestions = ImprovementSuggestions(r)
	}
	score, passed := r.Score, r.IsValid
	t.QualityValidation = &r
	t.QualityScore = &score
	t.QualityPassed = &passed
	t.NeedsRegeneration = r.Score < a.cfg.QualityThreshold && len(r.Issues) > 0
	t.ImprovementSuggestions = suggestions
	return t, nil
}

// CollectFeedback stores explicit feedback when the turn carries one and
// always records the implicit signals of the turn.
func (a *Assistant) CollectFeedback(ctx context.Context, t Turn) (Turn, error) {
	interaction := t.InteractionID
	if interaction == "" {
		interaction = t.SessionID
	}
	if t.FeedbackType == "" {
		t.FeedbackType = FeedbackImplicit
	}
	meta := t.feedbackMetadata()

	collected := true
	var errs []error
	if IsExplicitFeedback(t.FeedbackType) {
		if err := a.feedback.Collect(ctx, t.SessionID, interaction, t.FeedbackType, t.Rating, t.Comments, meta); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.feedback.CollectImplicit(ctx, t.SessionID, interaction, t.implicitMetrics(), meta); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("collect feedback failed", zap.String("session_id", t.SessionID), zap.Error(err))
		collected = false
		t.FeedbackError = err.Error()
	}
	t.FeedbackCollected = &collected
	return t, nil
}

func (t Turn) feedbackMetadata() map[string]any {
	m := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("intent", t.Intent)
	put("template_id", t.TemplateID)
	put("response_type", t.ResponseType)
	put("model_id", t.ModelID)
	if t.QualityScore != nil {
		m["quality_score"] = *t.QualityScore
	}
	return m
}

func (t Turn) implicitMetrics() map[string]any {
	passed := true
	if t.QualityPassed != nil {
		passed = *t.QualityPassed
	}
	conf := t.IntentConfidence
	if conf == 0 {
		conf = 0.5
	}
	return map[string]any{
		"quality_passed":      passed,
		"needs_regeneration":  t.NeedsRegeneration,
		"needs_clarification": t.NeedsClarification,
		"escalation_required": t.EscalationRequired,
		"guardrail_triggered": t.GuardrailTriggered,
		"intent_confidence":   conf,
	}
}

type AnalysisResponse struct {
	StatusCode int       `json:"statusCode"`
	Analysis   *Analysis `json:"analysis,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (a *Assistant) AnalyzeFeedback(ctx context.Context, f AnalysisFilter) (AnalysisResponse, error) {
	an, err := a.feedback.Analyze(ctx, f)
	if err != nil {
		a.logger.Error("analyze feedback failed", zap.Error(err))
		return AnalysisResponse{StatusCode: 500, Error: err.Error()}, nil
	}
	a.logger.Info("feedback analyzed",
		zap.Int("total", an.TotalFeedback),
		zap.Float64("satisfaction_rate", an.Statistics.SatisfactionRate),
		zap.Strings("recommendations", an.Recommendations))
	return AnalysisResponse{StatusCode: 200, Analysis: &an}, nil
}

type pipelineStep struct {
	name string
	run  func(context.Context, Turn) (Turn, error)
}

// runSteps stops at the first step that errors or leaves a failure status.
func (a *Assistant) runSteps(ctx context.Context, t Turn, steps ...pipelineStep) (Turn, bool) {
	for _, s := range steps {
		next, err := s.run(ctx, t)
		if err != nil {
			a.logger.Error("pipeline step failed",
				zap.String("step", s.name),
				zap.String("session_id", t.SessionID),
				zap.Error(err))
			return t.failed(500, s.name+": "+err.Error()), false
		}
		t = next
		if t.StatusCode >= 400 {
			return t, false
		}
	}
	return t, true
}

// Chat runs the whole pipeline in-process, for the HTTP API.
func (a *Assistant) Chat(ctx context.Context, t Turn) Turn {
	t, ok := a.runSteps(ctx, t,
		pipelineStep{"capture", a.Capture},
		pipelineStep{"detect_intent", a.DetectIntent},
		pipelineStep{"generate", a.Generate},
		pipelineStep{"validate", a.Validate},
	)
	if !ok {
		return t
	}
	t.FeedbackType = FeedbackImplicit
	t, _ = a.runSteps(ctx, t, pipelineStep{"collect_feedback", a.CollectFeedback})
	return t
}
