package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runHealth(t *testing.T, c map[string]func() error) (int, HealthResponse) {
	t.Helper()
	saved := checks
	checks = c
	t.Cleanup(func() { checks = saved })

	resp, err := handler(zap.NewNop())(context.Background(), events.APIGatewayV2HTTPRequest{})
	require.NoError(t, err)
	var body HealthResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	return resp.StatusCode, body
}

func TestHealthIgnoresOptionalComponents(t *testing.T) {
	status, body := runHealth(t, map[string]func() error{
		"support":      func() error { return nil },
		"audit-export": func() error { return errors.New("AUDIT_LOGS_BUCKET is required") },
	})
	assert.Equal(t, 200, status)
	assert.True(t, body.OK)
	assert.Equal(t, "ok", body.Components["support"])
	assert.Equal(t, "AUDIT_LOGS_BUCKET is required", body.Components["audit-export"])
}

func TestHealthFailsOnRequiredComponent(t *testing.T) {
	status, body := runHealth(t, map[string]func() error{
		"support": func() error { return errors.New("CONVERSATION_TABLE is required") },
	})
	assert.Equal(t, 503, status)
	assert.False(t, body.OK)
}
