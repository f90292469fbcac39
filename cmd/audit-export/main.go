package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"

	"genaiops/internal/governance"
	"genaiops/internal/logging"
)

func main() {
	ctx := context.Background()
	logger := logging.New("audit-export")
	defer logger.Sync()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	c, err := governance.LoadExportConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	h := governance.NewExporter(cfg, c, logger)
	lambda.Start(h.Handle)
}
