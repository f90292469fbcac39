package support

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"genaiops/internal/metrics"
)

const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
	FeedbackRating     = "rating"
	FeedbackComment    = "comment"
	FeedbackImplicit   = "implicit"

	DefaultAnalysisHours = 24
)

var ErrFeedbackDisabled = errors.New("feedback table not configured")

func IsExplicitFeedback(t string) bool {
	switch t {
	case FeedbackThumbsUp, FeedbackThumbsDown, FeedbackRating, FeedbackComment:
		return true
	}
	return false
}

type FeedbackAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type Feedback struct {
	FeedbackID    string         `dynamodbav:"feedback_id" json:"feedback_id"`
	SessionID     string         `dynamodbav:"session_id" json:"session_id"`
	InteractionID string         `dynamodbav:"interaction_id" json:"interaction_id"`
	FeedbackType  string         `dynamodbav:"feedback_type" json:"feedback_type"`
	Rating        int            `dynamodbav:"rating,omitempty" json:"rating,omitempty"`
	Comments      string         `dynamodbav:"comments,omitempty" json:"comments,omitempty"`
	Metadata      map[string]any `dynamodbav:"metadata" json:"metadata"`
	Metrics       map[string]any `dynamodbav:"metrics,omitempty" json:"metrics,omitempty"`
	Timestamp     string         `dynamodbav:"timestamp" json:"timestamp"`
	Processed     bool           `dynamodbav:"processed" json:"processed"`
}

func (f Feedback) meta(key string) string {
	if v, ok := f.Metadata[key].(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// FeedbackStore is nil-safe: a nil store rejects writes with
// ErrFeedbackDisabled.
type FeedbackStore struct {
	ddb    FeedbackAPI
	table  string
	pub    *metrics.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewFeedbackStore(ddb FeedbackAPI, table string, pub *metrics.Publisher, logger *zap.Logger) *FeedbackStore {
	if table == "" {
		return nil
	}
	return &FeedbackStore{ddb: ddb, table: table, pub: pub, logger: logger, now: time.Now}
}

// Collect stores explicit feedback and publishes its CloudWatch metrics.
func (s *FeedbackStore) Collect(ctx context.Context, sessionID, interactionID, feedbackType string, rating int, comments string, metadata map[string]any) error {
	if s == nil {
		return ErrFeedbackDisabled
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	f := Feedback{
		FeedbackID:    sessionID + "#" + interactionID,
		SessionID:     sessionID,
		InteractionID: interactionID,
		FeedbackType:  feedbackType,
		Rating:        rating,
		Comments:      comments,
		Metadata:      metadata,
		Timestamp:     s.now().UTC().Format(timeLayout),
	}
	if err := s.put(ctx, f); err != nil {
		return err
	}
	s.publish(ctx, f)
	s.logger.Info("feedback collected", zap.String("interaction_id", interactionID), zap.String("type", feedbackType))
	return nil
}

// CollectImplicit records the pipeline's own view of a turn.
func (s *FeedbackStore) CollectImplicit(ctx context.Context, sessionID, interactionID string, m map[string]any, metadata map[string]any) error {
	if s == nil {
		return ErrFeedbackDisabled
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return s.put(ctx, Feedback{
		FeedbackID:    sessionID + "#" + interactionID + "#implicit",
		SessionID:     sessionID,
		InteractionID: interactionID,
		FeedbackType:  FeedbackImplicit,
		Metadata:      metadata,
		Metrics:       m,
		Timestamp:     s.now().UTC().Format(timeLayout),
	})
}

func (s *FeedbackStore) put(ctx context.Context, f Feedback) error {
	item, err := attributevalue.MarshalMap(f)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	if _, err := s.ddb.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: item}); err != nil {
		return fmt.Errorf("ddb put feedback %s: %w", f.FeedbackID, err)
	}
	return nil
}

func (s *FeedbackStore) publish(ctx context.Context, f Feedback) {
	data := []metrics.Datum{{
		Name: "FeedbackCount", Value: 1, Unit: cwtypes.StandardUnitCount,
		Dimensions: []metrics.Dimension{metrics.Dim("FeedbackType", f.FeedbackType)},
	}}
	if f.Rating != 0 {
		data = append(data, metrics.Datum{Name: "UserRating", Value: float64(f.Rating), Unit: cwtypes.StandardUnitNone})
	}
	if t, ok := f.Metadata["template_id"].(string); ok && t != "" {
		data = append(data, metrics.Datum{
			Name: "TemplateUsage", Value: 1, Unit: cwtypes.StandardUnitCount,
			Dimensions: []metrics.Dimension{metrics.Dim("TemplateId", t)},
		})
	}
	if err := s.pub.PutData(ctx, data...); err != nil {
		s.logger.Warn("feedback metrics failed", zap.Error(err))
	}
}

type AnalysisFilter struct {
	Hours      int    `json:"time_range_hours"`
	TemplateID string `json:"template_id,omitempty"`
	Intent     string `json:"intent,omitempty"`
}

// Analyze scans the window and summarizes it.
func (s *FeedbackStore) Analyze(ctx context.Context, f AnalysisFilter) (Analysis, error) {
	if s == nil {
		return Analysis{}, ErrFeedbackDisabled
	}
	if f.Hours <= 0 {
		f.Hours = DefaultAnalysisHours
	}
	now := s.now().UTC()
	items, err := s.scanSince(ctx, now.Add(-time.Duration(f.Hours)*time.Hour))
	if err != nil {
		return Analysis{}, err
	}
	var kept []Feedback
	for _, it := range items {
		if f.TemplateID != "" && it.meta("template_id") != f.TemplateID {
			continue
		}
		if f.Intent != "" && it.meta("intent") != f.Intent {
			continue
		}
		kept = append(kept, it)
	}
	a := AnalyzeFeedback(kept)
	a.TimeRangeHours = f.Hours
	a.AnalyzedAt = now.Format(timeLayout)
	return a, nil
}

func (s *FeedbackStore) scanSince(ctx context.Context, cutoff time.Time) ([]Feedback, error) {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("timestamp").GreaterThanEqual(expression.Value(cutoff.Format(timeLayout)))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build feedback filter: %w", err)
	}
	var (
		out   []Feedback
		start map[string]ddbtypes.AttributeValue
	)
	for {
		page, err := s.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.table),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("ddb scan %s: %w", s.table, err)
		}
		var items []Feedback
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

type Statistics struct {
	TotalCount       int            `json:"total_count"`
	ByType           map[string]int `json:"by_type"`
	ByRating         map[int]int    `json:"by_rating"`
	ByTemplate       map[string]int `json:"by_template"`
	ByIntent         map[string]int `json:"by_intent"`
	AverageRating    float64        `json:"average_rating"`
	SatisfactionRate float64        `json:"satisfaction_rate"`
}

type FeedbackIssue struct {
	Type           string   `json:"type"`
	Severity       string   `json:"severity"`
	TemplateID     string   `json:"template_id,omitempty"`
	Details        string   `json:"details,omitempty"`
	SampleComments []string `json:"sample_comments,omitempty"`
	Theme          string   `json:"theme,omitempty"`
	Count          int      `json:"count,omitempty"`
}

type Analysis struct {
	TimeRangeHours  int             `json:"time_range_hours"`
	TotalFeedback   int             `json:"total_feedback"`
	Statistics      Statistics      `json:"statistics"`
	Issues          []FeedbackIssue `json:"issues"`
	Recommendations []string        `json:"recommendations"`
	AnalyzedAt      string          `json:"analyzed_at"`
}

// AnalyzeFeedback is the pure part of Analyze.
func AnalyzeFeedback(items []Feedback) Analysis {
	stats := aggregate(items)
	issues := identifyIssues(items)
	return Analysis{
		TotalFeedback:   len(items),
		Statistics:      stats,
		Issues:          issues,
		Recommendations: recommend(stats, issues),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func aggregate(items []Feedback) Statistics {
	st := Statistics{
		TotalCount: len(items),
		ByType:     map[string]int{},
		ByRating:   map[int]int{},
		ByTemplate: map[string]int{},
		ByIntent:   map[string]int{},
	}
	total, rated, positive := 0, 0, 0
	for _, it := range items {
		t := it.FeedbackType
		if t == "" {
			t = "unknown"
		}
		st.ByType[t]++
		if it.Rating != 0 {
			st.ByRating[it.Rating]++
			total += it.Rating
			rated++
			if it.Rating >= 4 {
				positive++
			}
		}
		if t == FeedbackThumbsUp {
			positive++
		}
		st.ByTemplate[it.meta("template_id")]++
		st.ByIntent[it.meta("intent")]++
	}
	if rated > 0 {
		st.AverageRating = round2(float64(total) / float64(rated))
	}
	if len(items) > 0 {
		st.SatisfactionRate = round2(float64(positive) / float64(len(items)) * 100)
	}
	return st
}

// An unrated item counts as satisfied unless it is a thumbs down.
func isNegative(f Feedback) bool {
	rating := f.Rating
	if rating == 0 {
		rating = 5
	}
	return f.FeedbackType == FeedbackThumbsDown || rating < 3
}

var complaintThemes = []struct {
	theme    string
	keywords []string
}{
	{"too_technical", []string{"technical", "jargon", "complicated", "complex"}},
	{"not_helpful", []string{"not helpful", "useless", "didnt help", "doesn't help"}},
	{"too_vague", []string{"vague", "generic", "not specific", "unclear"}},
	{"wrong_service", []string{"wrong service", "not what i asked", "different service"}},
	{"missing_steps", []string{"missing steps", "incomplete", "need more detail"}},
}

func identifyIssues(items []Feedback) []FeedbackIssue {
	issues := []FeedbackIssue{}

	var order []string
	byTemplate := map[string][]Feedback{}
	for _, it := range items {
		id := it.meta("template_id")
		if _, ok := byTemplate[id]; !ok {
			order = append(order, id)
		}
		byTemplate[id] = append(byTemplate[id], it)
	}
	for _, id := range order {
		group := byTemplate[id]
		neg := 0
		var samples []string
		for _, it := range group {
			if isNegative(it) {
				neg++
			}
			if it.Comments != "" && len(samples) < 3 {
				samples = append(samples, it.Comments)
			}
		}
		if len(group) >= 5 && float64(neg)/float64(len(group)) > 0.4 {
			issues = append(issues, FeedbackIssue{
				Type:           "low_satisfaction",
				Severity:       "high",
				TemplateID:     id,
				Details:        fmt.Sprintf("%d/%d negative feedback", neg, len(group)),
				SampleComments: samples,
			})
		}
	}

	counts := map[string]int{}
	for _, it := range items {
		c := strings.ToLower(it.Comments)
		if c == "" {
			continue
		}
		for _, th := range complaintThemes {
			for _, kw := range th.keywords {
				if strings.Contains(c, kw) {
					counts[th.theme]++
					break
				}
			}
		}
	}
	for _, th := range complaintThemes {
		if n := counts[th.theme]; n >= 3 {
			issues = append(issues, FeedbackIssue{Type: "common_complaint", Severity: "medium", Theme: th.theme, Count: n})
		}
	}
	return issues
}

var themeAdvice = map[string]string{
	"too_technical": "Multiple users find responses too technical. Simplify language and add more explanations.",
	"not_helpful":   "Users report responses not being helpful. Focus on providing more actionable guidance.",
	"too_vague":     "Responses are too vague. Include more specific examples and step-by-step instructions.",
}

func recommend(st Statistics, issues []FeedbackIssue) []string {
	recs := []string{}
	rate := st.SatisfactionRate
	switch {
	case rate < 70:
		recs = append(recs, fmt.Sprintf("Overall satisfaction rate is %g%%. Consider reviewing and improving prompt templates.", rate))
	case rate >= 90:
		recs = append(recs, fmt.Sprintf("Excellent satisfaction rate (%g%%). Current approach is working well.", rate))
	}
	for _, is := range issues {
		if is.Type == "low_satisfaction" {
			recs = append(recs, fmt.Sprintf("Template '%s' has low satisfaction. Review and refine based on user feedback.", is.TemplateID))
		}
	}
	for _, is := range issues {
		if is.Type != "common_complaint" {
			continue
		}
		if advice, ok := themeAdvice[is.Theme]; ok {
			recs = append(recs, advice)
		}
	}

	intents := make([]string, 0, len(st.ByIntent))
	for in := range st.ByIntent {
		intents = append(intents, in)
	}
	sort.Strings(intents)
	for _, in := range intents {
		n := st.ByIntent[in]
		if n < 10 {
			continue
		}
		for _, is := range issues {
			if is.TemplateID != "" && strings.HasPrefix(is.TemplateID, in) {
				recs = append(recs, fmt.Sprintf("Review prompt template for '%s' intent based on %d interactions.", in, n))
				break
			}
		}
	}
	return recs
}
