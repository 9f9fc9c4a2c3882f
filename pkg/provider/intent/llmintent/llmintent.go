// Package llmintent implements intent.Extractor on top of
// github.com/mozilla-ai/any-llm-go, a unified multi-provider LLM interface
// supporting OpenAI, Anthropic, Gemini, Ollama, and others.
//
// The extractor prompts the model to return a single JSON object with the
// intent type, slot parameters, a confidence estimate, and a one-sentence
// human summary. Responses that are not valid JSON are mapped to an
// "unknown" intent with zero confidence rather than an error, so a chatty
// model cannot crash the pipeline.
package llmintent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/mliane/voxpipe/pkg/provider/intent"
)

const systemPrompt = `You classify a voice assistant transcription into an intent.
Respond with a single JSON object and nothing else:
{"type": "<intent_type>", "parameters": {"<slot>": "<value>"}, "confidence": <0..1>, "summary": "<one short sentence restating the request>"}
Use type "unknown" with confidence 0 when no supported intent fits.`

// Extractor implements [intent.Extractor] by wrapping any-llm-go.
type Extractor struct {
	backend anyllmlib.Provider
	model   string

	// intentTypes, when non-empty, is offered to the model as the closed set
	// of valid intent types.
	intentTypes []string
}

var _ intent.Extractor = (*Extractor)(nil)

// Option is a functional option for configuring an Extractor.
type Option func(*Extractor)

// WithIntentTypes constrains classification to a closed set of intent types.
func WithIntentTypes(types []string) Option {
	return func(e *Extractor) { e.intentTypes = types }
}

// New creates an Extractor backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "mistral". model selects the specific model (e.g., "gpt-4o-mini").
// llmOpts are any-llm-go options (anyllmlib.WithAPIKey, WithBaseURL, ...);
// without an API key option the relevant environment variable is used.
func New(providerName, model string, llmOpts []anyllmlib.Option, opts ...Option) (*Extractor, error) {
	if model == "" {
		return nil, fmt.Errorf("llmintent: model must not be empty")
	}
	backend, err := createBackend(providerName, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("llmintent: create %q backend: %w", providerName, err)
	}
	e := &Extractor{backend: backend, model: model}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Extract classifies text into an Intent via one LLM completion.
func (e *Extractor) Extract(ctx context.Context, text string) (intent.Intent, error) {
	prompt := systemPrompt
	if len(e.intentTypes) > 0 {
		prompt += "\nValid intent types: " + strings.Join(e.intentTypes, ", ") + "."
	}

	resp, err := e.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: e.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: prompt},
			{Role: anyllmlib.RoleUser, Content: text},
		},
	})
	if err != nil {
		return intent.Intent{}, fmt.Errorf("llmintent: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return intent.Intent{}, fmt.Errorf("llmintent: empty choices in response")
	}

	return parseIntent(text, resp.Choices[0].Message.ContentString()), nil
}

// parseIntent decodes the model's JSON answer. Malformed output degrades to
// an unknown intent instead of an error.
func parseIntent(rawText, content string) intent.Intent {
	var decoded struct {
		Type       string            `json:"type"`
		Parameters map[string]string `json:"parameters"`
		Confidence float64           `json:"confidence"`
		Summary    string            `json:"summary"`
	}

	if err := json.Unmarshal([]byte(extractJSON(content)), &decoded); err != nil || decoded.Type == "" {
		return intent.Intent{RawText: rawText, Type: "unknown", Confidence: 0}
	}

	if decoded.Confidence < 0 {
		decoded.Confidence = 0
	} else if decoded.Confidence > 1 {
		decoded.Confidence = 1
	}

	return intent.Intent{
		RawText:    rawText,
		Type:       decoded.Type,
		Parameters: decoded.Parameters,
		Confidence: decoded.Confidence,
		Summary:    decoded.Summary,
	}
}

// extractJSON strips any prose or code fences surrounding the first JSON
// object in s. Models occasionally wrap the answer despite instructions.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, mistral", providerName)
	}
}
