package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"genaiops/internal/insights"
	"genaiops/internal/routing"
	"genaiops/internal/support"
)

// InsightAsker answers questions about the feedback lake.
type InsightAsker interface {
	Ask(ctx context.Context, question string) (insights.Answer, error)
}

// API serves the support assistant and the model router over HTTP.
type API struct {
	assistant *support.Assistant
	router    *routing.Router
	insights  InsightAsker
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewAPI(assistant *support.Assistant, router *routing.Router, logger *zap.Logger) *API {
	return &API{assistant: assistant, router: router, validate: validator.New(), logger: logger}
}

// WithInsights enables POST /v1/insights/ask.
func (a *API) WithInsights(asker InsightAsker) *API {
	a.insights = asker
	return a
}

type ChatRequest struct {
	SessionID string            `json:"session_id"`
	Query     string            `json:"query" validate:"required"`
	UserID    string            `json:"user_id"`
	Metadata  map[string]string `json:"metadata"`
}

type InsightRequest struct {
	Question string `json:"question" validate:"required"`
}

type FeedbackRequest struct {
	SessionID     string         `json:"session_id" validate:"required"`
	InteractionID string         `json:"interaction_id"`
	FeedbackType  string         `json:"feedback_type" validate:"required,oneof=thumbs_up thumbs_down rating comment"`
	Rating        int            `json:"rating" validate:"omitempty,min=1,max=5"`
	Comments      string         `json:"comments" validate:"required_if=FeedbackType comment"`
	Metadata      map[string]any `json:"metadata"`
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(a.logger))

	r.Get("/health", a.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", a.chat)
		r.Post("/feedback", a.feedback)
		r.Get("/feedback/analysis", a.analysis)
		r.Get("/sessions/{sessionID}/summary", a.sessionSummary)
		r.Post("/route", a.route)
		r.Post("/insights/ask", a.askInsight)
	})
	return r
}

// Lambda adapts the router to API Gateway HTTP API events.
func (a *API) Lambda() func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	adapter := chiadapter.NewV2(a.Routes().(*chi.Mux))
	return adapter.ProxyWithContextV2
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (a *API) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !a.decode(w, r, &req) {
		return
	}
	out := a.assistant.Chat(r.Context(), support.Turn{
		SessionID: strings.TrimSpace(req.SessionID),
		Query:     strings.TrimSpace(req.Query),
		UserID:    strings.TrimSpace(req.UserID),
		Metadata:  req.Metadata,
	})
	if out.StatusCode >= 400 {
		jsonErr(w, out.StatusCode, out.Error, nil)
		return
	}
	jsonOK(w, out)
}

func (a *API) feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.FeedbackType == support.FeedbackRating && req.Rating == 0 {
		jsonErr(w, http.StatusBadRequest, "rating_required", nil)
		return
	}
	interaction := req.InteractionID
	if interaction == "" {
		interaction = req.SessionID
	}
	err := a.assistant.Feedback().Collect(r.Context(), req.SessionID, interaction, req.FeedbackType, req.Rating, req.Comments, req.Metadata)
	switch {
	case errors.Is(err, support.ErrFeedbackDisabled):
		jsonErr(w, http.StatusServiceUnavailable, "feedback_disabled", err)
		return
	case err != nil:
		a.logger.Error("store feedback failed", zap.String("session_id", req.SessionID), zap.Error(err))
		jsonErr(w, http.StatusInternalServerError, "feedback_store_failed", err)
		return
	}
	jsonOK(w, map[string]any{"feedback_collected": true, "feedback_id": req.SessionID + "#" + interaction})
}

func (a *API) analysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := support.AnalysisFilter{
		TemplateID: strings.TrimSpace(q.Get("template_id")),
		Intent:     strings.TrimSpace(q.Get("intent")),
	}
	if h := strings.TrimSpace(q.Get("hours")); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "invalid_hours", err)
			return
		}
		f.Hours = n
	}
	res, _ := a.assistant.AnalyzeFeedback(r.Context(), f)
	if res.StatusCode != http.StatusOK {
		jsonErr(w, res.StatusCode, "feedback_analysis_failed", errors.New(res.Error))
		return
	}
	jsonOK(w, res.Analysis)
}

func (a *API) sessionSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sum, err := a.assistant.Conversations().Summary(r.Context(), id)
	switch {
	case errors.Is(err, support.ErrSessionNotFound):
		jsonErr(w, http.StatusNotFound, "session_not_found", nil)
		return
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, "session_lookup_failed", err)
		return
	}
	jsonOK(w, sum)
}

func (a *API) route(w http.ResponseWriter, r *http.Request) {
	var req routing.Request
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UseCase) == "" {
		req.UseCase = routing.DefaultUseCase
	}
	jsonOK(w, a.router.Route(r.Context(), req))
}

func (a *API) askInsight(w http.ResponseWriter, r *http.Request) {
	if a.insights == nil {
		jsonErr(w, http.StatusServiceUnavailable, "insights_disabled", nil)
		return
	}
	var req InsightRequest
	if !a.decode(w, r, &req) {
		return
	}
	ans, err := a.insights.Ask(r.Context(), req.Question)
	switch {
	case errors.Is(err, insights.ErrEmptyQuestion):
		jsonErr(w, http.StatusBadRequest, "invalid_request", err)
		return
	case errors.Is(err, insights.ErrQueryFailed):
		a.logger.Warn("insight query failed", zap.String("sql", ans.SQL), zap.Error(err))
		jsonErr(w, http.StatusUnprocessableEntity, "insight_query_failed", err)
		return
	case err != nil:
		a.logger.Error("insight failed", zap.Error(err))
		jsonErr(w, http.StatusInternalServerError, "insight_failed", err)
		return
	}
	jsonOK(w, ans)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid_json", err)
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid_request", err)
		return false
	}
	return true
}

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func jsonErr(w http.ResponseWriter, status int, msg string, err error) {
	resp := map[string]any{"error": msg}
	if err != nil {
		resp["detail"] = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
