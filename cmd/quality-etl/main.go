package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"

	"genaiops/internal/analytics"
	"genaiops/internal/logging"
)

func main() {
	ctx := context.Background()
	logger := logging.New("quality-etl")
	defer logger.Sync()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	c, err := analytics.LoadETLConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	h := analytics.NewQualityETL(cfg, c, logger)
	lambda.Start(h.Handle)
}
