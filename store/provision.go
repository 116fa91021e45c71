package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableAPI is the subset of *dynamodb.Client used by CreateTables.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// CreateTables provisions the node and counter tables and waits until both
// are active. Tables that already exist are left untouched.
func CreateTables(ctx context.Context, client TableAPI, config Config, maxWait time.Duration) error {
	config.validate()

	tables := []struct {
		name    string
		key     string
		keyType types.ScalarAttributeType
	}{
		{config.NodesTable, "id", types.ScalarAttributeTypeN},
		{config.CounterTable, "name", types.ScalarAttributeTypeS},
	}

	for _, t := range tables {
		_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(t.name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(t.key), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(t.key), AttributeType: t.keyType},
			},
			BillingMode:         types.BillingModePayPerRequest,
			StreamSpecification: streamSpec(t.name == config.NodesTable),
		})
		var inUse *types.ResourceInUseException
		if err != nil && !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	for _, t := range tables {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(t.name),
		}, maxWait); err != nil {
			return fmt.Errorf("wait for table %s: %w", t.name, err)
		}
	}
	return nil
}

// streamSpec enables NEW_IMAGE streams on the node table for the integrity auditor.
func streamSpec(enabled bool) *types.StreamSpecification {
	if !enabled {
		return nil
	}
	return &types.StreamSpecification{
		StreamEnabled:  aws.Bool(true),
		StreamViewType: types.StreamViewTypeNewImage,
	}
}
