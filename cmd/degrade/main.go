package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"genaiops/internal/routing"
)

func main() {
	lambda.Start(routing.HandleDegrade)
}
