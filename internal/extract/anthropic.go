package extract

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

// AnthropicExtractor extracts cell values with Claude.
type AnthropicExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       *zap.Logger
}

// NewAnthropicExtractor creates an extractor over an anthropic.Client.
func NewAnthropicExtractor(client anthropic.Client, model string, maxTokens int64) *AnthropicExtractor {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &AnthropicExtractor{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		log:       zap.L().With(zap.String("provider", "anthropic")),
	}
}

// Extract implements Extractor.
func (e *AnthropicExtractor) Extract(ctx context.Context, req Request) (*Extraction, error) {
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      anthropic.CachedSystem(systemPrompt, "5m"),
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(req)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(e.log, e.model, req.Field)

	out, err := ParseReply(resp.Text(), req.ExpectedType)
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic: field %s", req.Field)
	}
	return out, nil
}

// classify marks client errors that another attempt cannot fix as permanent.
func classify(err error, status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return resilience.Permanent(err)
	}
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
