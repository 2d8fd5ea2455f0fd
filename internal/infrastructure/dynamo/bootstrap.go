package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ecotrack-api/internal/config"
)

// Bootstrap creates the engine's DynamoDB tables and GSIs if they don't
// already exist. Safe to call on every startup.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables) {
	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Users),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("active"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi("active-index", "active", ""),
		},
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Devices),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("device_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("token"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("device_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi("user_id-index", "user_id", ""),
			gsi("token-index", "token", ""),
		},
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Notifications),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("notification_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("created_at"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("status"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("notification_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi("user_id-created_at-index", "user_id", "created_at"),
			// The sweeps query this index for due pending/failed rows.
			gsi("status-index", "status", "created_at"),
		},
	})
}

// gsi builds a GSI descriptor. If sortKey is empty, only a hash key is added.
func gsi(indexName, hashKey, sortKey string) types.GlobalSecondaryIndex {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if sortKey != "" {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(indexName),
		KeySchema:  ks,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		// ResourceInUseException means the table already exists.
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			slog.Warn("could not create table", "table", *input.TableName, "err", err)
		}
	} else {
		slog.Info("created table", "table", *input.TableName)
	}
}
