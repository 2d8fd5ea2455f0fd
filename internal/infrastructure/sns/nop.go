package sns

import (
	"context"
	"log/slog"
)

type nopGateway struct {
	logger *slog.Logger
}

// NewNopGateway returns a gateway that logs instead of publishing. Used in
// dev environments without SNS credentials so dispatch still succeeds.
func NewNopGateway(logger *slog.Logger) PushGateway {
	return &nopGateway{logger: logger}
}

func (g *nopGateway) Send(_ context.Context, tokens []string, title, _ string, _ map[string]string) (*PushResult, error) {
	g.logger.Info("push skipped, no gateway configured", "tokens", len(tokens), "title", title)
	return &PushResult{SuccessCount: len(tokens)}, nil
}
