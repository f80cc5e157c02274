package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Knowledge node types.
const (
	NodeAtomicFact  = "atomic_fact"
	NodePreference  = "preference"
	NodeMetaSummary = "meta_summary"
	NodeEpisode     = "episode"
)

// Edge types.
const (
	EdgeSupersedes = "supersedes"
)

// KnowledgeNode is a single persisted memory: a fact, preference or
// synthesized summary owned by an entity. Nodes are never physically
// deleted; superseded nodes are invalidated to preserve history.
type KnowledgeNode struct {
	ID            surrealmodels.RecordID `json:"id"`
	EntityID      string                 `json:"entity_id"`
	Type          string                 `json:"type"`
	Content       string                 `json:"content"`
	Importance    float64                `json:"importance"`
	Confidence    float64                `json:"confidence"`
	Category      string                 `json:"category,omitempty"`
	MentionCount  int                    `json:"mention_count"`
	LastMentioned time.Time              `json:"last_mentioned,omitempty"`
	ValidAt       *time.Time             `json:"valid_at,omitempty"`
	InvalidAt     *time.Time             `json:"invalid_at,omitempty"`
	Created       time.Time              `json:"created,omitempty"`
}

// ConnectedNode is a neighbor of a node together with the edge type
// that links them.
type ConnectedNode struct {
	Node     KnowledgeNode `json:"node"`
	EdgeType string        `json:"edge_type"`
}

// ConflictResult records that a new memory supersedes an existing one.
// The caller persists the supersedes edge and the decayed importance.
type ConflictResult struct {
	SupersededID       string  `json:"superseded_id"`
	Similarity         float64 `json:"similarity"`
	NewImportanceDecay float64 `json:"new_importance_decay"`
}

// Insight is a synthesized meta-summary produced by reflection over a
// group of knowledge nodes belonging to one entity.
type Insight struct {
	ID            string   `json:"id"`
	EntityID      string   `json:"entity_id"`
	Type          string   `json:"type"` // always NodeMetaSummary
	Content       string   `json:"content"`
	Importance    float64  `json:"importance"`
	SourceNodeIDs []string `json:"source_node_ids"`
}

// RetrievalResult is a scored memory returned by the retrieval layer.
type RetrievalResult struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	MemoryType string  `json:"memory_type"`
	Score      float64 `json:"score"`
}
