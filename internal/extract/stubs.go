package extract

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

var _ anthropic.Client = (*StubAnthropicClient)(nil)

var fieldKeyPattern = regexp.MustCompile(`\(key: ([^)]+)\)`)

// StubAnthropicClient implements anthropic.Client with canned responses for
// offline runs. The answer is derived from the field key in the directive.
type StubAnthropicClient struct{}

// CreateMessage implements anthropic.Client.
func (s *StubAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	key := "value"
	for _, m := range req.Messages {
		if match := fieldKeyPattern.FindStringSubmatch(m.Content); match != nil {
			key = match[1]
			break
		}
	}

	text := fmt.Sprintf(`{"value": "stub %s", "confidence": 0.75, "sources": ["stub"]}`, key)
	return &anthropic.MessageResponse{
		ID:         "stub-msg-001",
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 150, OutputTokens: 20},
	}, nil
}

// NewStubExtractor returns an AnthropicExtractor backed by the stub client.
func NewStubExtractor() *AnthropicExtractor {
	return NewAnthropicExtractor(&StubAnthropicClient{}, "stub", 0)
}
