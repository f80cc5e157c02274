package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/arialive/memcore/internal/llm"
	"github.com/arialive/memcore/internal/models"
)

// ErrNoExtractionPath is returned at construction when both the regex
// and the model extraction paths are disabled.
var ErrNoExtractionPath = errors.New("no extraction path configured")

// Config controls extractor batching and filtering.
type Config struct {
	// BatchSize is the buffered-turn count that triggers a drain.
	BatchSize int
	// MinImportance and MinConfidence are independent thresholds a
	// candidate must both meet to survive filtering.
	MinImportance float64
	MinConfidence float64
	// RegexEnabled selects the pattern hot path.
	RegexEnabled bool
	// LLMEnabled selects the model path (requires a non-nil model).
	LLMEnabled bool
}

type turn struct {
	user      string
	assistant string
}

// MemoryExtractor buffers conversation turns per entity and drains them
// into deduplicated, threshold-filtered memory candidates. The regex
// path runs unconditionally when enabled; the model path is merged in
// when available and degrades silently to regex-only on failure.
type MemoryExtractor struct {
	cfg    Config
	regex  *RegexExtractor
	model  *llm.Model
	logger *slog.Logger

	mu      sync.Mutex
	buffers map[string][]turn
}

// NewMemoryExtractor creates the extractor. Fails with
// ErrNoExtractionPath when neither path is usable.
func NewMemoryExtractor(cfg Config, model *llm.Model, logger *slog.Logger) (*MemoryExtractor, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	llmUsable := cfg.LLMEnabled && model != nil
	if !cfg.RegexEnabled && !llmUsable {
		return nil, ErrNoExtractionPath
	}

	var regex *RegexExtractor
	if cfg.RegexEnabled {
		regex = NewRegexExtractor()
	}

	return &MemoryExtractor{
		cfg:     cfg,
		regex:   regex,
		model:   model,
		logger:  logger,
		buffers: make(map[string][]turn),
	}, nil
}

// AddTurn buffers one conversational turn for an entity.
func (m *MemoryExtractor) AddTurn(userText, assistantText, entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers[entityID] = append(m.buffers[entityID], turn{user: userText, assistant: assistantText})
}

// BufferedTurns reports the number of buffered turns for an entity.
func (m *MemoryExtractor) BufferedTurns(entityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers[entityID])
}

// Extract drains the entity's buffer when it holds at least the batch
// size (or when force is set) and returns the surviving candidates.
// The buffer is cleared regardless of whether any candidate survives.
// A nil result with nil error means the batch threshold was not met.
func (m *MemoryExtractor) Extract(ctx context.Context, entityID string, force bool) (*models.ExtractionResult, error) {
	m.mu.Lock()
	turns := m.buffers[entityID]
	if len(turns) == 0 || (!force && len(turns) < m.cfg.BatchSize) {
		m.mu.Unlock()
		return nil, nil
	}
	delete(m.buffers, entityID)
	m.mu.Unlock()

	var candidates []models.ExtractionCandidate
	if m.regex != nil {
		for _, t := range turns {
			candidates = append(candidates, m.regex.Extract(t.user)...)
		}
	}

	if m.cfg.LLMEnabled && m.model != nil {
		llmCandidates, err := m.extractWithModel(ctx, turns)
		if err != nil {
			// Model failures never surface; degrade to regex output.
			m.logger.Warn("model extraction failed, using regex output only",
				"entity_id", entityID, "error", err)
		} else {
			candidates = append(candidates, llmCandidates...)
		}
	}

	candidates = dedupe(candidates)
	candidates = m.filter(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Importance > candidates[j].Importance
	})

	return &models.ExtractionResult{
		EntityID:   entityID,
		Candidates: candidates,
	}, nil
}

// extractWithModel sends the drained turns to the model and parses its
// JSON response.
func (m *MemoryExtractor) extractWithModel(ctx context.Context, turns []turn) ([]models.ExtractionCandidate, error) {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "User: %s\n", t.user)
		if t.assistant != "" {
			fmt.Fprintf(&sb, "Assistant: %s\n", t.assistant)
		}
	}

	response, err := m.model.ExtractMemories(ctx, sb.String())
	if err != nil {
		return nil, err
	}
	return ParseModelResponse(response)
}

// ParseModelResponse leniently parses the model's JSON array of
// candidates. Code fences are stripped; entries with empty content or
// unknown types are skipped; importance is clamped to [0,1].
func ParseModelResponse(response string) ([]models.ExtractionCandidate, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Tolerate prose around the array.
	if start := strings.Index(cleaned, "["); start >= 0 {
		if end := strings.LastIndex(cleaned, "]"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var raw []models.ExtractionCandidate
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	out := raw[:0]
	for _, c := range raw {
		c.Content = strings.TrimSpace(c.Content)
		if c.Content == "" {
			continue
		}
		if c.Type != models.NodeAtomicFact && c.Type != models.NodePreference {
			continue
		}
		if c.Importance < 0 {
			c.Importance = 0
		}
		if c.Importance > 1 {
			c.Importance = 1
		}
		if c.Confidence == 0 {
			// Model-derived candidates default above the pattern floor.
			c.Confidence = 0.7
		}
		out = append(out, c)
	}
	return out, nil
}

// dedupe keeps the first occurrence per normalized content.
func dedupe(candidates []models.ExtractionCandidate) []models.ExtractionCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		key := NormalizeContent(c.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// filter applies the two independent thresholds.
func (m *MemoryExtractor) filter(candidates []models.ExtractionCandidate) []models.ExtractionCandidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.Importance >= m.cfg.MinImportance && c.Confidence >= m.cfg.MinConfidence {
			out = append(out, c)
		}
	}
	return out
}
