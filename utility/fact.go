package utility

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsflow/opsflow/core"
)

const defaultFactTopic = "something interesting"

// FactProvider generates short facts via an AI client.
type FactProvider struct {
	client core.AIClient
	logger core.Logger
}

// NewFactProvider creates a fact provider. The client may be nil, in
// which case Fact returns an error at call time.
func NewFactProvider(client core.AIClient, logger core.Logger) *FactProvider {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &FactProvider{client: client, logger: logger}
}

// Fact returns a short interesting fact about the given topic.
func (p *FactProvider) Fact(ctx context.Context, topic string) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("%w: no AI client configured for facts", core.ErrPlannerUnavailable)
	}

	if strings.TrimSpace(topic) == "" {
		topic = defaultFactTopic
	}

	p.logger.Info("Generating fact", map[string]interface{}{
		"operation": "fact",
		"topic":     topic,
	})

	prompt := fmt.Sprintf("Tell me one short, interesting, true fact about %s. Respond with just the fact in 1-2 sentences.", topic)
	resp, err := p.client.GenerateResponse(ctx, prompt, &core.AIOptions{
		Temperature: 0.7,
		MaxTokens:   150,
	})
	if err != nil {
		return "", fmt.Errorf("generating fact about %q: %w", topic, err)
	}

	fact := strings.TrimSpace(resp.Content)
	if fact == "" {
		return "", fmt.Errorf("%w: empty fact response", core.ErrPlannerUnavailable)
	}
	return fmt.Sprintf("Fun fact: %s", fact), nil
}
