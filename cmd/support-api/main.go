package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"genaiops/internal/handlers"
	"genaiops/internal/insights"
	"genaiops/internal/logging"
	"genaiops/internal/routing"
	"genaiops/internal/support"
)

func main() {
	ctx := context.Background()
	logger := logging.New("support-api")
	defer logger.Sync()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	sc, err := support.LoadConfig()
	if err != nil {
		log.Fatalf("load support config: %v", err)
	}
	rc, err := routing.LoadConfig()
	if err != nil {
		log.Fatalf("load routing config: %v", err)
	}

	api := handlers.NewAPI(support.NewFromConfig(cfg, sc, logger), routing.NewFromConfig(cfg, rc, logger), logger)
	if ic, err := insights.LoadConfig(); err != nil {
		logger.Warn("insights disabled", zap.Error(err))
	} else {
		api.WithInsights(insights.NewFromConfig(cfg, ic, logger))
	}
	lambda.Start(api.Lambda())
}
