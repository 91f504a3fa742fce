package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/pkg/gemini"
)

// GeminiExtractor extracts cell values with Gemini in JSON response mode.
type GeminiExtractor struct {
	client    gemini.Client
	model     string
	maxTokens int32
	log       *zap.Logger
}

// NewGeminiExtractor creates an extractor over a gemini.Client.
func NewGeminiExtractor(client gemini.Client, model string, maxTokens int32) *GeminiExtractor {
	return &GeminiExtractor{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		log:       zap.L().With(zap.String("provider", "gemini")),
	}
}

// Extract implements Extractor.
func (e *GeminiExtractor) Extract(ctx context.Context, req Request) (*Extraction, error) {
	var temp float32
	resp, err := e.client.Generate(ctx, gemini.GenerateRequest{
		Model:           e.model,
		System:          systemPrompt,
		Prompt:          userPrompt(req),
		JSON:            true,
		MaxOutputTokens: e.maxTokens,
		Temperature:     &temp,
	})
	if err != nil {
		return nil, classify(err, gemini.StatusCode(err))
	}
	e.log.Debug("gemini usage",
		zap.String("field", req.Field),
		zap.Int32("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int32("output_tokens", resp.Usage.OutputTokens),
	)

	out, err := ParseReply(resp.Text, req.ExpectedType)
	if err != nil {
		return nil, eris.Wrapf(err, "gemini: field %s", req.Field)
	}
	return out, nil
}
