// Command grove-audit is the AWS Lambda that audits node table stream inserts.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/grove/config"
	"github.com/jacentio/grove/internal/logging"
	"github.com/jacentio/grove/store"
	"github.com/jacentio/grove/stream"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	client, err := store.NewClient(ctx, cfg.Store.AWSRegion, cfg.Store.DynamoDBEndpoint)
	if err != nil {
		log.Fatalf("create dynamodb client: %v", err)
	}

	handler := stream.NewHandler(store.New(client, cfg.DynamoConfig()), logger)
	lambda.Start(handler.HandleNodeInserts)
}
