package llm

import (
	"context"
	"testing"

	"github.com/arialive/memcore/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// canned is an offline llms.Model returning a fixed response.
type canned struct {
	content string
	info    map[string]any
}

func (c *canned) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: c.content, GenerationInfo: c.info},
		},
	}, nil
}

func (c *canned) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return c.content, nil
}

func TestGenerateRecordsProviderTokenUsage(t *testing.T) {
	m := &Model{
		llm:       &canned{content: "hi", info: map[string]any{"PromptTokens": 500, "CompletionTokens": 120}},
		modelName: "canned",
	}
	collector := metrics.NewCollector()
	m.SetCollector(collector)

	got, err := m.GenerateWithSystem(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	snap := collector.Snapshot()
	require.Len(t, snap.Operations, 1)
	op := snap.Operations[0]
	assert.Equal(t, metrics.OpLLMCall, op.Name)
	assert.Equal(t, int64(1), op.Count)
	assert.Equal(t, int64(500), op.TotalInputTokens)
	assert.Equal(t, int64(120), op.TotalOutputTokens)
}

func TestGenerateApproximatesUsageWhenProviderReportsNone(t *testing.T) {
	m := &Model{llm: &canned{content: "three short words here"}, modelName: "canned"}
	collector := metrics.NewCollector()
	m.SetCollector(collector)

	_, err := m.GenerateWithSystem(context.Background(), "be brief", "hello there friend")
	require.NoError(t, err)

	snap := collector.Snapshot()
	require.Len(t, snap.Operations, 1)
	assert.Positive(t, snap.Operations[0].TotalInputTokens,
		"prompt usage falls back to approximate counting")
	assert.Positive(t, snap.Operations[0].TotalOutputTokens)
}

func TestGenerateWithoutCollector(t *testing.T) {
	m := &Model{llm: &canned{content: "ok"}, modelName: "canned"}

	got, err := m.GenerateWithSystem(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
