package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

// SchemaVersion is the version written by this build. Stored data always
// carries the version it was written with; migration is monotonic
// (old -> current only, never downgraded).
const SchemaVersion = 2

// schemaSQL contains the base schema. The embedding HNSW index dimension
// is injected at init time to match the configured embedder.
const schemaSQL = `
    -- ==========================================================================
    -- ENTITY TABLE (conversational counterparts)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS identifier ON entity TYPE string;
    DEFINE FIELD IF NOT EXISTS platform ON entity TYPE string;
    DEFINE FIELD IF NOT EXISTS first_seen ON entity TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS last_seen ON entity TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS entity_identity ON entity FIELDS identifier, platform UNIQUE;

    -- ==========================================================================
    -- KNOWLEDGE NODE TABLE (memories)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS knowledge_node SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS entity_id ON knowledge_node TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON knowledge_node TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON knowledge_node TYPE string;
    DEFINE FIELD IF NOT EXISTS importance ON knowledge_node TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS confidence ON knowledge_node TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS category ON knowledge_node TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS mention_count ON knowledge_node TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS last_mentioned ON knowledge_node TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS valid_at ON knowledge_node TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS invalid_at ON knowledge_node TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS embedding ON knowledge_node TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS created ON knowledge_node TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS node_entity ON knowledge_node FIELDS entity_id;
    DEFINE INDEX IF NOT EXISTS node_type ON knowledge_node FIELDS type;
    DEFINE INDEX IF NOT EXISTS node_embedding ON knowledge_node FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS node_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS node_content_ft ON knowledge_node FIELDS content FULLTEXT ANALYZER node_analyzer BM25;

    -- ==========================================================================
    -- SUPERSEDES RELATION (new node invalidates an older one)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS supersedes TYPE RELATION IN knowledge_node OUT knowledge_node SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS edge_type ON supersedes TYPE string DEFAULT 'supersedes';
    DEFINE FIELD IF NOT EXISTS created ON supersedes TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS unique_key ON supersedes VALUE <string>string::concat(<string>in, '->', <string>out);
    DEFINE INDEX IF NOT EXISTS unique_supersedes ON supersedes FIELDS unique_key UNIQUE;

    -- ==========================================================================
    -- SESSION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS session SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS entity_id ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS platform ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS started_at ON session TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS ended_at ON session TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS message_count ON session TYPE int DEFAULT 0;

    DEFINE INDEX IF NOT EXISTS session_entity ON session FIELDS entity_id;

    -- ==========================================================================
    -- STREAM EPISODE TABLE (session close-time snapshots, immutable)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS stream_episode SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON stream_episode TYPE string;
    DEFINE FIELD IF NOT EXISTS summary ON stream_episode TYPE string;
    DEFINE FIELD IF NOT EXISTS topics ON stream_episode TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS key_events ON stream_episode TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS participant_count ON stream_episode TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS sentiment ON stream_episode TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON stream_episode TYPE datetime;
    DEFINE FIELD IF NOT EXISTS ended_at ON stream_episode TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS episode_session ON stream_episode FIELDS session_id;
    DEFINE INDEX IF NOT EXISTS episode_ended ON stream_episode FIELDS ended_at;

    -- ==========================================================================
    -- PROCEDURAL RULE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS procedural_rule SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS rule_type ON procedural_rule TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON procedural_rule TYPE string;
    DEFINE FIELD IF NOT EXISTS confidence ON procedural_rule TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS source ON procedural_rule TYPE string DEFAULT 'manual';
    DEFINE FIELD IF NOT EXISTS active ON procedural_rule TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created ON procedural_rule TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS rule_active ON procedural_rule FIELDS active;

    -- ==========================================================================
    -- META TABLE (schema version marker)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS meta SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS version ON meta TYPE int;
`

// migrations maps from-version to the SurrealQL applied to reach the
// next version. Applied in order on open; never downgraded.
var migrations = map[int]string{
	// v1 -> v2: knowledge nodes gained a category tag and an optional
	// validity window.
	1: `
		DEFINE FIELD IF NOT EXISTS category ON knowledge_node TYPE option<string>;
		DEFINE FIELD IF NOT EXISTS valid_at ON knowledge_node TYPE option<datetime>;
		DEFINE FIELD IF NOT EXISTS invalid_at ON knowledge_node TYPE option<datetime>;
		UPDATE knowledge_node SET valid_at = created WHERE valid_at = NONE;
	`,
}

type metaRecord struct {
	Version int `json:"version"`
}

// InitSchema creates the base schema and runs any pending migrations.
// embeddingDim is the HNSW index dimension and must match the embedder.
func (c *Client) InitSchema(ctx context.Context, embeddingDim int) error {
	c.logger.Info("initializing database schema", "target_version", SchemaVersion)

	if _, err := surrealdb.Query[any](ctx, c.db, fmt.Sprintf(schemaSQL, embeddingDim), nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	stored, err := c.storedVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: read version: %v", ErrMigration, err)
	}

	switch {
	case stored == 0:
		// Fresh database; stamp the current version.
		return c.writeVersion(ctx, SchemaVersion)
	case stored > SchemaVersion:
		return fmt.Errorf("%w: stored version %d is newer than supported %d", ErrMigration, stored, SchemaVersion)
	case stored == SchemaVersion:
		return nil
	}

	for v := stored; v < SchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return fmt.Errorf("%w: no migration from version %d", ErrMigration, v)
		}
		c.logger.Info("applying schema migration", "from", v, "to", v+1)
		if _, err := surrealdb.Query[any](ctx, c.db, step, nil); err != nil {
			return fmt.Errorf("%w: step %d->%d: %v", ErrMigration, v, v+1, err)
		}
		if err := c.writeVersion(ctx, v+1); err != nil {
			return err
		}
	}

	c.logger.Info("schema migration complete", "version", SchemaVersion)
	return nil
}

// storedVersion returns the persisted schema version, or 0 for a fresh
// database.
func (c *Client) storedVersion(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]metaRecord](ctx, c.db, `
		SELECT version FROM meta:schema
	`, nil)
	if err != nil {
		return 0, err
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Version, nil
}

func (c *Client) writeVersion(ctx context.Context, version int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT meta:schema SET version = $version
	`, map[string]any{"version": version})
	if err != nil {
		return fmt.Errorf("%w: write version: %v", ErrMigration, err)
	}
	return nil
}
