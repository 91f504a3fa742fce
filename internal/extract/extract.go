// Package extract turns a cell directive into a typed value with a confidence
// score by calling an LLM provider.
package extract

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Request is one extraction call for a single cell.
type Request struct {
	Field        string
	Directive    string
	ExpectedType model.FieldType
}

// Extraction is a provider answer. Confidence is nil when the provider gave
// no confidence signal.
type Extraction struct {
	Value      any
	Confidence *float64
	Sources    []string
}

// Extractor is the opaque extraction capability used by the orchestrator.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Extraction, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, req Request) (*Extraction, error)

// Extract implements Extractor.
func (f Func) Extract(ctx context.Context, req Request) (*Extraction, error) {
	return f(ctx, req)
}

const systemPrompt = `You enrich one cell of a spreadsheet row at a time.
Respond with a single JSON object and nothing else:
{"value": <answer or null>, "confidence": <number between 0 and 1>, "sources": [<urls or short citations>]}
Return null for value when the answer cannot be determined from the context or your knowledge.`

// userPrompt appends the expected value shape to the directive.
func userPrompt(req Request) string {
	t := req.ExpectedType
	if t == "" {
		t = model.FieldTypeString
	}
	return req.Directive + "\n\nExpected value type: " + string(t) + "."
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// ParseReply parses a provider reply of the form
// {"value": ..., "confidence": ..., "sources": [...]}. A reply that is not a
// JSON object or has no "value" key is an error so the caller can retry.
func ParseReply(text string, expected model.FieldType) (*Extraction, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: parse reply")
	}
	val, ok := raw["value"]
	if !ok {
		return nil, eris.New("extract: reply has no value")
	}

	out := &Extraction{Value: coerce(val, expected)}
	if c, ok := toFloat64(raw["confidence"]); ok {
		out.Confidence = model.Float(clamp01(c))
	}
	out.Sources = toStrings(raw["sources"])
	if src, ok := raw["source_url"].(string); ok && src != "" {
		out.Sources = append(out.Sources, src)
	}
	return out, nil
}

// coerce converts string answers into the expected shape when they parse
// cleanly. Anything else is returned unchanged.
func coerce(v any, expected model.FieldType) any {
	s, isStr := v.(string)
	switch expected {
	case model.FieldTypeNumber:
		if isStr {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f
			}
		}
	case model.FieldTypeBoolean:
		if isStr {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b
			}
		}
	case model.FieldTypeArray:
		if isStr && strings.TrimSpace(s) != "" {
			parts := strings.Split(s, ",")
			out := make([]any, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
	}
	return v
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
