package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"

	"genaiops/internal/logging"
	"genaiops/internal/support"
)

func main() {
	ctx := context.Background()
	logger := logging.New("support-intent")
	defer logger.Sync()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	c, err := support.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	a := support.NewFromConfig(cfg, c, logger)
	lambda.Start(a.DetectIntent)
}
