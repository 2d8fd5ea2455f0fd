package sns

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ecotrack-api/internal/config"
	"github.com/ecotrack-api/internal/domain"
)

// PushResult reports the outcome of one batched push request.
type PushResult struct {
	SuccessCount int
	FailureCount int
}

// PushGateway delivers a notification payload to a batch of device tokens.
// A transport failure that reaches no device at all is reported as a
// domain.ErrChannel-wrapped error.
type PushGateway interface {
	Send(ctx context.Context, tokens []string, title, message string, data map[string]string) (*PushResult, error)
}

type gateway struct {
	client *sns.Client
}

func NewGateway(cfg *config.Config) (PushGateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &gateway{client: sns.NewFromConfig(awsCfg)}, nil
}

// pushPayload is the JSON body published per endpoint.
type pushPayload struct {
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// Send publishes the payload to every token's platform endpoint and counts
// per-endpoint outcomes. Only when every publish fails does the whole call
// fail, as a channel error the dispatcher can retry.
func (g *gateway) Send(ctx context.Context, tokens []string, title, message string, data map[string]string) (*PushResult, error) {
	body, err := json.Marshal(pushPayload{Title: title, Message: message, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}
	msg := string(body)

	res := &PushResult{}
	var lastErr error
	for i := range tokens {
		_, err := g.client.Publish(ctx, &sns.PublishInput{
			TargetArn: &tokens[i],
			Message:   &msg,
		})
		if err != nil {
			res.FailureCount++
			lastErr = err
			continue
		}
		res.SuccessCount++
	}
	if res.SuccessCount == 0 && lastErr != nil {
		return nil, fmt.Errorf("push gateway: %v: %w", lastErr, domain.ErrChannel)
	}
	return res, nil
}
