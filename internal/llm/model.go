// Package llm wraps langchaingo models behind the narrow adapter the
// memory core consumes. A nil *Model is a valid value everywhere and
// selects the deterministic (regex / rule-based) code paths.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/arialive/memcore/internal/config"
	"github.com/arialive/memcore/internal/metrics"
	"github.com/arialive/memcore/internal/tokens"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
	collector *metrics.Collector // nil disables usage recording
}

// NewModel creates an LLM model based on configuration. Returns
// (nil, nil) when no provider is configured; callers treat a nil model
// as "absent" rather than an error.
func NewModel(cfg config.Config) (*Model, error) {
	if !cfg.LLMEnabled() {
		return nil, nil
	}

	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// SetCollector attaches a metrics collector recording call timing and
// token usage for every generation.
func (m *Model) SetCollector(c *metrics.Collector) {
	m.collector = c
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		if m.collector != nil {
			m.collector.RecordTiming(metrics.OpLLMCall, time.Since(start))
		}
		return "", fmt.Errorf("generate with system: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	content := response.Choices[0].Content
	if m.collector != nil {
		in, out := usage(response.Choices[0].GenerationInfo, systemPrompt+userPrompt, content)
		m.collector.RecordLLMUsage(metrics.OpLLMCall, time.Since(start), in, out)
	}
	return content, nil
}

// usage reads token counts from the provider's generation info, falling
// back to the approximate counter when the provider reports none.
// Providers disagree on the key names.
func usage(info map[string]any, prompt, completion string) (int64, int64) {
	in, inOK := usageValue(info, "PromptTokens", "InputTokens")
	out, outOK := usageValue(info, "CompletionTokens", "OutputTokens")
	if !inOK {
		in = int64(tokens.Approximate(prompt))
	}
	if !outOK {
		out = int64(tokens.Approximate(completion))
	}
	return in, out
}

func usageValue(info map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			return int64(v), true
		}
	}
	return 0, false
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// ExtractMemories asks the model to pull durable facts and preferences
// out of a batch of conversation turns. The response is expected to be
// a JSON array of {content, type, importance, subject, predicate,
// object} objects; lenient parsing happens at the call site.
func (m *Model) ExtractMemories(ctx context.Context, transcript string) (string, error) {
	systemPrompt := `You extract durable facts and preferences about the user from conversation turns.

Output ONLY a JSON array. Each element:
{"content": "...", "type": "atomic_fact|preference", "importance": 0.0-1.0, "subject": "...", "predicate": "...", "object": "..."}

Guidelines:
- Extract only durable information (identity, preferences, circumstances), never transient chat
- Korean and English input both appear; keep content in the input language
- importance reflects how much the fact shapes future conversation
- Output [] when nothing durable was said`

	userPrompt := fmt.Sprintf(`Conversation turns:
%s

JSON array:`, transcript)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}

// SynthesizeReflection asks the model to compose one insight sentence
// over a group of related memories belonging to a single person.
func (m *Model) SynthesizeReflection(ctx context.Context, memories string) (string, error) {
	systemPrompt := `You synthesize a single higher-level insight from a list of memories about one person.
Respond with exactly one sentence capturing the pattern the memories show. No preamble, no list.`

	userPrompt := fmt.Sprintf(`Memories:
%s

Insight:`, memories)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}
