package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"genaiops/internal/governance"
	"genaiops/internal/insights"
	"genaiops/internal/logging"
	"genaiops/internal/routing"
	"genaiops/internal/support"
)

type HealthResponse struct {
	OK         bool              `json:"ok"`
	Service    string            `json:"service"`
	Stage      string            `json:"stage,omitempty"`
	Components map[string]string `json:"components"`
}

// checks validate each component's environment.
var checks = map[string]func() error{
	"support":      func() error { _, err := support.LoadConfig(); return err },
	"routing":      func() error { _, err := routing.LoadConfig(); return err },
	"insights":     func() error { _, err := insights.LoadConfig(); return err },
	"audit-export": func() error { _, err := governance.LoadExportConfig(); return err },
}

var optional = map[string]bool{"insights": true, "audit-export": true}

func handler(logger *zap.Logger) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp := HealthResponse{OK: true, Service: "genaiops", Stage: os.Getenv("STAGE"), Components: map[string]string{}}
		for name, check := range checks {
			if err := check(); err != nil {
				resp.Components[name] = err.Error()
				if !optional[name] {
					resp.OK = false
				}
				continue
			}
			resp.Components[name] = "ok"
		}
		status := http.StatusOK
		if !resp.OK {
			status = http.StatusServiceUnavailable
			logger.Warn("health check failed", zap.Any("components", resp.Components))
		}

		body, _ := json.Marshal(resp)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: status,
			Headers:    map[string]string{"content-type": "application/json"},
			Body:       string(body),
		}, nil
	}
}

func main() {
	logger := logging.New("health")
	defer logger.Sync()

	lambda.Start(handler(logger))
}
