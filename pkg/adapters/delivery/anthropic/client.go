// Package anthropic delivers batch messages to Claude-backed worker
// agents via the Anthropic Messages API. Replies are synchronous: the
// deliverer returns the agent's text directly and never uses the
// correlation side channel.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aescanero/bago/pkg/domain"
	"go.uber.org/zap"
)

// Deliverer sends message content to a Claude model and returns the reply
type Deliverer struct {
	client         anthropic.Client
	model          string
	maxTokens      int
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewDeliverer creates a new Anthropic deliverer
func NewDeliverer(apiKey, model string, maxTokens int, requestTimeout time.Duration, logger *zap.Logger) (*Deliverer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	return &Deliverer{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          model,
		maxTokens:      maxTokens,
		requestTimeout: requestTimeout,
		logger:         logger,
	}, nil
}

// Deliver sends the message content to the target agent's model and
// returns the reply text as a synchronous payload.
func (d *Deliverer) Deliver(ctx context.Context, msg domain.BatchMessage, correlationID string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	start := time.Now()

	resp, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: int64(d.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: fmt.Sprintf("You are worker agent %s.", msg.TargetAgentID)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	d.logger.Debug("message delivered",
		zap.String("message_id", msg.ID),
		zap.String("correlation_id", correlationID),
		zap.String("target_agent_id", msg.TargetAgentID),
		zap.Duration("duration", time.Since(start)))

	return sb.String(), nil
}
