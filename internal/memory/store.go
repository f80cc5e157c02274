package memory

import (
	"context"

	"github.com/arialive/memcore/internal/models"
)

// Store is the persistent knowledge layer the service depends on.
// *db.Client implements it; tests substitute an in-memory fake. All
// write operations are atomic per call; the service never retries
// internally.
type Store interface {
	UpsertEntity(ctx context.Context, identifier, platform string) (*models.Entity, bool, error)
	GetNodesByEntity(ctx context.Context, entityID string, limit int) ([]models.KnowledgeNode, error)
	InsertKnowledgeNode(ctx context.Context, nodeID, entityID, nodeType, content string,
		importance, confidence float64, category string, embedding []float32) (*models.KnowledgeNode, error)
	UpdateMention(ctx context.Context, nodeID string, importanceBoost float64) error
	SetNodeImportance(ctx context.Context, nodeID string, importance float64) error
	InvalidateNode(ctx context.Context, nodeID string) error
	InsertSupersedesEdge(ctx context.Context, newNodeID, oldNodeID string) error
	SearchNodes(ctx context.Context, query string, embedding []float32, entityID *string, limit int) ([]models.KnowledgeNode, error)

	InsertSession(ctx context.Context, sessionID string, entityID *string, platform string) error
	CloseSession(ctx context.Context, sessionID string, messageCount int) error

	InsertStreamEpisode(ctx context.Context, ep models.StreamEpisode) error
	GetStreamEpisodes(ctx context.Context, limit int) ([]models.StreamEpisode, error)

	InsertProceduralRule(ctx context.Context, rule models.ProceduralRule) error
	GetActiveProceduralRules(ctx context.Context) ([]models.ProceduralRule, error)

	ApplyImportanceDecay(ctx context.Context, decayDays int, factor float64) (int, error)

	Close(ctx context.Context) error
}

// Retriever returns scored memories for a query. The default
// implementation runs hybrid search on the store; collaborators may
// inject an external retrieval service instead.
type Retriever interface {
	Retrieve(ctx context.Context, query string, entityID *string, topK int) ([]models.RetrievalResult, error)
}
