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

// NotificationRepo provides typed DynamoDB operations for the notifications
// table, including the conditional-update claims the sweeps rely on.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByUser queries the user_id-created_at GSI newest-first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkRead flips one notification to read on behalf of its owner. The update
// is conditional on ownership and is_read=false, so a repeat call (or a call
// against someone else's notification) reports false without mutating
// anything. Read is a terminal status and overrides delivery bookkeeping.
func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID, userID string, now time.Time) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("notification_id", notificationID),
		UpdateExpression:    aws.String("SET is_read = :t, read_at = :now, #st = :read, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(notification_id) AND user_id = :uid AND is_read = :f"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":    &types.AttributeValueMemberBOOL{Value: true},
			":f":    &types.AttributeValueMemberBOOL{Value: false},
			":read": &types.AttributeValueMemberS{Value: string(domain.StatusRead)},
			":uid":  &types.AttributeValueMemberS{Value: userID},
			":now":  avTime(now),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkSent records a successful dispatch attempt.
func (r *NotificationRepo) MarkSent(ctx context.Context, notificationID string, now time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("notification_id", notificationID),
		UpdateExpression: aws.String("SET #st = :sent, sent_at = :now, updated_at = :now"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sent": &types.AttributeValueMemberS{Value: string(domain.StatusSent)},
			":now":  avTime(now),
		},
	})
	return err
}

// MarkFailed records a failed dispatch attempt. When nextRetryAt is nil the
// retry budget is exhausted and the attribute is removed, which makes the
// row invisible to the retry sweep permanently.
func (r *NotificationRepo) MarkFailed(ctx context.Context, notificationID string, retryCount int, nextRetryAt *time.Time, now time.Time) error {
	expr := "SET #st = :failed, retry_count = :rc, updated_at = :now"
	values := map[string]types.AttributeValue{
		":failed": &types.AttributeValueMemberS{Value: string(domain.StatusFailed)},
		":rc":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", retryCount)},
		":now":    avTime(now),
	}
	if nextRetryAt != nil {
		expr += ", next_retry_at = :nra"
		values[":nra"] = avTime(*nextRetryAt)
	} else {
		expr += " REMOVE next_retry_at"
	}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("notification_id", notificationID),
		UpdateExpression: aws.String(expr),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: values,
	})
	return err
}

// ListScheduledDue returns pending notifications whose scheduled_at has
// passed, via the status GSI.
func (r *NotificationRepo) ListScheduledDue(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	return r.queryByStatus(ctx, domain.StatusPending,
		"attribute_exists(scheduled_at) AND scheduled_at <= :now", now)
}

// ListRetryDue returns failed notifications that still have retry budget and
// whose next_retry_at has passed.
func (r *NotificationRepo) ListRetryDue(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	return r.queryByStatus(ctx, domain.StatusFailed,
		"attribute_exists(next_retry_at) AND next_retry_at <= :now AND retry_count < max_retries", now)
}

func (r *NotificationRepo) queryByStatus(ctx context.Context, status domain.NotificationStatus, filter string, now time.Time) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("status-index"),
		KeyConditionExpression: aws.String("#st = :st"),
		FilterExpression:       aws.String(filter),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st":  &types.AttributeValueMemberS{Value: string(status)},
			":now": avTime(now),
		},
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ClaimScheduled atomically takes ownership of a due scheduled row by
// removing scheduled_at, the attribute the schedule sweep selects on. The
// conditional update succeeds for exactly one caller; everyone else gets
// false and must skip the row.
func (r *NotificationRepo) ClaimScheduled(ctx context.Context, notificationID string, now time.Time) (bool, error) {
	return r.claim(ctx, notificationID,
		"REMOVE scheduled_at SET updated_at = :now",
		"#st = :st AND attribute_exists(scheduled_at) AND scheduled_at <= :now",
		domain.StatusPending, now)
}

// ClaimRetry atomically takes ownership of a due retry row by removing
// next_retry_at. Rows at their retry budget never match the condition.
func (r *NotificationRepo) ClaimRetry(ctx context.Context, notificationID string, now time.Time) (bool, error) {
	return r.claim(ctx, notificationID,
		"REMOVE next_retry_at SET updated_at = :now",
		"#st = :st AND attribute_exists(next_retry_at) AND next_retry_at <= :now AND retry_count < max_retries",
		domain.StatusFailed, now)
}

func (r *NotificationRepo) claim(ctx context.Context, notificationID, update, condition string, status domain.NotificationStatus, now time.Time) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("notification_id", notificationID),
		UpdateExpression:    aws.String(update),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st":  &types.AttributeValueMemberS{Value: string(status)},
			":now": avTime(now),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
