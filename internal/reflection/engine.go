// Package reflection synthesizes higher-level insights from batches of
// stored memories. The rule-based path is always available; a model is
// consulted first when configured and falls back silently.
package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/arialive/memcore/internal/llm"
	"github.com/arialive/memcore/internal/models"
	"github.com/google/uuid"
)

// Importance scaling: insights start at the base and grow with group
// size, capped so reflection output never outranks direct statements.
const (
	baseImportance    = 0.5
	perNodeImportance = 0.03
	maxImportance     = 0.8
)

// Config controls grouping.
type Config struct {
	// MinGroupSize is the smallest node group that yields an insight.
	MinGroupSize int
	// MaxNodeAge excludes nodes last mentioned longer ago than this
	// from grouping. Zero disables the cutoff.
	MaxNodeAge time.Duration
}

// Engine synthesizes insights from knowledge nodes.
type Engine struct {
	cfg    Config
	model  *llm.Model
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a reflection engine. model may be nil.
func NewEngine(cfg Config, model *llm.Model, logger *slog.Logger) *Engine {
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, model: model, logger: logger, now: time.Now}
}

// Reflect attempts model-backed synthesis per group and falls back to
// the rule-based summary on any failure. Never returns an error from
// the model path.
func (e *Engine) Reflect(ctx context.Context, nodes []models.KnowledgeNode) []models.Insight {
	groups := e.group(nodes)
	insights := make([]models.Insight, 0, len(groups))

	for _, g := range groups {
		insight := e.synthesize(g)
		if e.model != nil {
			content, err := e.model.SynthesizeReflection(ctx, memoryList(g))
			if err != nil {
				e.logger.Warn("model reflection failed, using rule-based summary",
					"entity_id", g[0].EntityID, "error", err)
			} else if content = strings.TrimSpace(content); content != "" {
				insight.Content = content
			}
		}
		insights = append(insights, insight)
	}
	return insights
}

// ReflectSync is the deterministic rule-based path. Never suspends.
func (e *Engine) ReflectSync(nodes []models.KnowledgeNode) []models.Insight {
	groups := e.group(nodes)
	insights := make([]models.Insight, 0, len(groups))
	for _, g := range groups {
		insights = append(insights, e.synthesize(g))
	}
	return insights
}

// group buckets nodes by entity id, applies the recency cutoff, and
// drops groups below the minimum size. Group order is deterministic
// (sorted by entity id).
func (e *Engine) group(nodes []models.KnowledgeNode) [][]models.KnowledgeNode {
	cutoff := time.Time{}
	if e.cfg.MaxNodeAge > 0 {
		cutoff = e.now().Add(-e.cfg.MaxNodeAge)
	}

	byEntity := make(map[string][]models.KnowledgeNode)
	for _, n := range nodes {
		if n.EntityID == "" {
			continue
		}
		if !cutoff.IsZero() && !n.LastMentioned.IsZero() && n.LastMentioned.Before(cutoff) {
			continue
		}
		byEntity[n.EntityID] = append(byEntity[n.EntityID], n)
	}

	entityIDs := make([]string, 0, len(byEntity))
	for id, g := range byEntity {
		if len(g) >= e.cfg.MinGroupSize {
			entityIDs = append(entityIDs, id)
		}
	}
	sort.Strings(entityIDs)

	groups := make([][]models.KnowledgeNode, 0, len(entityIDs))
	for _, id := range entityIDs {
		groups = append(groups, byEntity[id])
	}
	return groups
}

// synthesize composes the rule-based insight for one group.
func (e *Engine) synthesize(group []models.KnowledgeNode) models.Insight {
	entityID := group[0].EntityID
	dominant := dominantType(group)

	samples := make([]string, 0, 3)
	for _, n := range group {
		if len(samples) == 3 {
			break
		}
		samples = append(samples, n.Content)
	}

	importance := baseImportance + perNodeImportance*float64(len(group))
	if importance > maxImportance {
		importance = maxImportance
	}

	sourceIDs := make([]string, 0, len(group))
	for _, n := range group {
		sourceIDs = append(sourceIDs, models.MustRecordIDString(n.ID))
	}

	content := fmt.Sprintf("Across %d memories (mostly %s): %s",
		len(group), dominant, strings.Join(samples, "; "))

	return models.Insight{
		ID:            uuid.NewString(),
		EntityID:      entityID,
		Type:          models.NodeMetaSummary,
		Content:       content,
		Importance:    importance,
		SourceNodeIDs: sourceIDs,
	}
}

// dominantType returns the most frequent node type in the group, ties
// broken by first appearance.
func dominantType(group []models.KnowledgeNode) string {
	counts := make(map[string]int)
	best := group[0].Type
	for _, n := range group {
		counts[n.Type]++
		if counts[n.Type] > counts[best] {
			best = n.Type
		}
	}
	return best
}

func memoryList(group []models.KnowledgeNode) string {
	var sb strings.Builder
	for _, n := range group {
		fmt.Fprintf(&sb, "- %s\n", n.Content)
	}
	return sb.String()
}
