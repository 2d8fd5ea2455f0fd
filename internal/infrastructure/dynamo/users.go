package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ecotrack-api/internal/domain"
)

// UserRepo is the user directory projection: it resolves broadcast targets
// and nothing else. Account management writes to this table elsewhere.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListActive queries the active-index GSI, optionally filtered to a role
// set. An empty roles slice means every active user.
func (r *UserRepo) ListActive(ctx context.Context, roles []string) ([]domain.User, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("active-index"),
		KeyConditionExpression: aws.String("active = :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	}
	if len(roles) > 0 {
		placeholders := make([]string, len(roles))
		for i, role := range roles {
			p := fmt.Sprintf(":r%d", i)
			placeholders[i] = p
			input.ExpressionAttributeValues[p] = &types.AttributeValueMemberS{Value: role}
		}
		input.FilterExpression = aws.String(fmt.Sprintf("#rl IN (%s)", strings.Join(placeholders, ", ")))
		input.ExpressionAttributeNames = map[string]string{"#rl": "role"}
	}

	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}
	var users []domain.User
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &users); err != nil {
		return nil, err
	}
	return users, nil
}
