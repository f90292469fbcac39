package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"

	"genaiops/internal/ingest"
	"genaiops/internal/logging"
)

func main() {
	ctx := context.Background()
	logger := logging.New("enrich-review")
	defer logger.Sync()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	c, err := ingest.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	h := ingest.NewReviewEnricher(cfg, c, logger)
	lambda.Start(h.Handle)
}
