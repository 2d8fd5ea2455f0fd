package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ecotrack-api/internal/domain"
)

// DeviceRepo provides typed DynamoDB operations for the devices table.
type DeviceRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewDeviceRepo(client *dynamodb.Client, tableName string) *DeviceRepo {
	return &DeviceRepo{client: client, tableName: tableName}
}

// Create inserts a new device together with a token guard row in one
// transaction. The guard row's key is derived from the token, so two
// concurrent registrations of the same new token cannot both commit; the
// loser gets domain.ErrConflict. The token GSI alone cannot enforce
// uniqueness, so a read-then-write check is not enough.
func (r *DeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}
	// The guard row carries no token or user_id attribute, which keeps it
	// out of both GSIs.
	guard := map[string]types.AttributeValue{
		"device_id": &types.AttributeValueMemberS{Value: "token#" + d.Token},
		"guards":    &types.AttributeValueMemberS{Value: d.DeviceID},
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(r.tableName), Item: item}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(device_id)"),
			}},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("device token already registered: %w", domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *DeviceRepo) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("device_id", deviceID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, domain.ErrNotFound)
	}
	var d domain.Device
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByToken resolves a device by its globally unique push token via the
// token GSI. At most one row exists per token.
func (r *DeviceRepo) GetByToken(ctx context.Context, token string) (*domain.Device, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("token-index"),
		KeyConditionExpression: aws.String("#tk = :t"),
		ExpressionAttributeNames: map[string]string{
			"#tk": "token",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: token},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("device token: %w", domain.ErrNotFound)
	}
	var d domain.Device
	if err := attributevalue.UnmarshalMap(out.Items[0], &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListActiveByUser returns the user's active push targets.
func (r *DeviceRepo) ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("active = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
			":t":   &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, err
	}
	var devices []domain.Device
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *DeviceRepo) Update(ctx context.Context, deviceID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("device_id", deviceID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

func (r *DeviceRepo) Deactivate(ctx context.Context, deviceID string) error {
	return r.Update(ctx, deviceID, map[string]interface{}{"active": false})
}
