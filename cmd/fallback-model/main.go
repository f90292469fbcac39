package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"

	"genaiops/internal/logging"
	"genaiops/internal/routing"
)

func main() {
	ctx := context.Background()
	logger := logging.New("fallback-model")
	defer logger.Sync()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	c, err := routing.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	r := routing.NewFromConfig(cfg, c, logger)
	lambda.Start(r.HandleFallback)
}
