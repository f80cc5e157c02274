package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/arialive/memcore/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// EntityKey derives the stable record id for an (identifier, platform)
// pair. Non-alphanumeric runes are folded to underscores so the key is
// safe as a SurrealDB record id.
func EntityKey(identifier, platform string) string {
	fold := func(s string) string {
		var b strings.Builder
		for _, r := range strings.ToLower(s) {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		return b.String()
	}
	return fold(platform) + "_" + fold(identifier)
}

// UpsertEntity creates or touches an entity keyed by (identifier,
// platform). Idempotent; last_seen advances on every call while
// first_seen is preserved. Returns the entity and whether it was created.
func (c *Client) UpsertEntity(ctx context.Context, identifier, platform string) (*models.Entity, bool, error) {
	id := EntityKey(identifier, platform)

	existsResult, err := surrealdb.Query[[]struct{ C int }](ctx, c.db,
		`SELECT count() AS c FROM type::record("entity", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return nil, false, fmt.Errorf("check entity exists: %w", err)
	}
	wasCreated := true
	if existsResult != nil && len(*existsResult) > 0 && len((*existsResult)[0].Result) > 0 {
		wasCreated = (*existsResult)[0].Result[0].C == 0
	}

	sql := `
		UPSERT type::record("entity", $id) SET
			identifier = $identifier,
			platform = $platform,
			last_seen = time::now(),
			first_seen = IF first_seen THEN first_seen ELSE time::now() END
		RETURN AFTER
	`
	results, err := surrealdb.Query[[]models.Entity](ctx, c.db, sql, map[string]any{
		"id":         id,
		"identifier": identifier,
		"platform":   platform,
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert entity: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false, fmt.Errorf("upsert entity: no result returned")
	}
	return &(*results)[0].Result[0], wasCreated, nil
}

// GetEntity retrieves an entity by record id. Returns nil if not found.
func (c *Client) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	results, err := surrealdb.Query[[]models.Entity](ctx, c.db, `
		SELECT * FROM type::record("entity", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// InsertKnowledgeNode creates a knowledge node with mention_count 0 and
// an open validity window. Fails with ErrReferentialIntegrity when the
// owning entity does not exist; callers must UpsertEntity first.
// embedding may be nil when no embedder is configured.
func (c *Client) InsertKnowledgeNode(
	ctx context.Context,
	nodeID string,
	entityID string,
	nodeType string,
	content string,
	importance float64,
	confidence float64,
	category string,
	embedding []float32,
) (*models.KnowledgeNode, error) {
	sql := `
		LET $entity_exists = (SELECT count() AS c FROM type::record("entity", $entity_id)).c > 0;
		IF !$entity_exists {
			THROW "referenced record missing: entity"
		};

		CREATE type::record("knowledge_node", $id) SET
			entity_id = $entity_id,
			type = $type,
			content = $content,
			importance = $importance,
			confidence = $confidence,
			category = $category,
			mention_count = 0,
			last_mentioned = time::now(),
			valid_at = time::now(),
			invalid_at = NONE,
			embedding = $embedding
		RETURN AFTER;
	`
	vars := map[string]any{
		"id":         nodeID,
		"entity_id":  entityID,
		"type":       nodeType,
		"content":    content,
		"importance": importance,
		"confidence": confidence,
		"category":   category,
		"embedding":  embedding,
	}
	if category == "" {
		vars["category"] = nil
	}

	results, err := surrealdb.Query[[]models.KnowledgeNode](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge node: %w", classifyErr(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, fmt.Errorf("insert knowledge node: no result returned")
	}
	// The CREATE result is the last statement in the batch.
	last := (*results)[len(*results)-1].Result
	if len(last) == 0 {
		return nil, fmt.Errorf("insert knowledge node: no result returned")
	}
	return &last[0], nil
}

// GetNodesByEntity returns the most recently mentioned valid nodes for
// an entity. Invalidated nodes are excluded.
func (c *Client) GetNodesByEntity(ctx context.Context, entityID string, limit int) ([]models.KnowledgeNode, error) {
	results, err := surrealdb.Query[[]models.KnowledgeNode](ctx, c.db, `
		SELECT * OMIT embedding FROM knowledge_node
		WHERE entity_id = $entity_id AND invalid_at = NONE
		ORDER BY last_mentioned DESC
		LIMIT $limit
	`, map[string]any{"entity_id": entityID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("get nodes by entity: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.KnowledgeNode{}, nil
	}
	return (*results)[0].Result, nil
}

// UpdateMention increments a node's mention count and boosts its
// importance, clamped to 1.0. Monotonic across calls.
func (c *Client) UpdateMention(ctx context.Context, nodeID string, importanceBoost float64) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("knowledge_node", $id) SET
			mention_count += 1,
			importance = math::min(importance + $boost, 1.0),
			last_mentioned = time::now()
	`, map[string]any{"id": nodeID, "boost": importanceBoost})
	if err != nil {
		return fmt.Errorf("update mention: %w", err)
	}
	return nil
}

// SetNodeImportance overwrites a node's importance score. Used to apply
// supersede decay computed by the conflict detector.
func (c *Client) SetNodeImportance(ctx context.Context, nodeID string, importance float64) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("knowledge_node", $id) SET
			importance = math::max(math::min($importance, 1.0), 0.0)
	`, map[string]any{"id": nodeID, "importance": importance})
	if err != nil {
		return fmt.Errorf("set node importance: %w", err)
	}
	return nil
}

// InvalidateNode closes a node's validity window. The node remains
// persisted for history.
func (c *Client) InvalidateNode(ctx context.Context, nodeID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("knowledge_node", $id) SET
			invalid_at = time::now()
	`, map[string]any{"id": nodeID})
	if err != nil {
		return fmt.Errorf("invalidate node: %w", err)
	}
	return nil
}

// InsertSupersedesEdge relates a new node to the older node it
// supersedes. Both nodes must exist; deduplicated by the unique edge
// index. The caller separately decays/invalidates the old node.
func (c *Client) InsertSupersedesEdge(ctx context.Context, newNodeID, oldNodeID string) error {
	sql := `
		LET $new_exists = (SELECT count() AS c FROM type::record("knowledge_node", $new_id)).c > 0;
		LET $old_exists = (SELECT count() AS c FROM type::record("knowledge_node", $old_id)).c > 0;

		IF !$new_exists OR !$old_exists {
			THROW "referenced record missing: knowledge_node"
		};

		RELATE type::record("knowledge_node", $new_id)->supersedes->type::record("knowledge_node", $old_id) SET
			edge_type = 'supersedes';
	`
	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"new_id": newNodeID,
		"old_id": oldNodeID,
	})
	if err != nil {
		return fmt.Errorf("insert supersedes edge: %w", classifyErr(err))
	}
	return nil
}

// connectedRow is the wire shape of GetConnectedNodes results.
type connectedRow struct {
	Node     models.KnowledgeNode `json:"node"`
	EdgeType string               `json:"edge_type"`
}

// GetConnectedNodes returns neighbors of a node with the edge type that
// links them, covering both edge directions.
func (c *Client) GetConnectedNodes(ctx context.Context, nodeID string, limit int) ([]models.ConnectedNode, error) {
	sql := `
		SELECT out.* AS node, edge_type FROM supersedes
		WHERE in = type::record("knowledge_node", $id)
		LIMIT $limit;
		SELECT in.* AS node, edge_type FROM supersedes
		WHERE out = type::record("knowledge_node", $id)
		LIMIT $limit;
	`
	results, err := surrealdb.Query[[]connectedRow](ctx, c.db, sql, map[string]any{
		"id":    nodeID,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get connected nodes: %w", err)
	}

	connected := []models.ConnectedNode{}
	if results != nil {
		for _, qr := range *results {
			for _, row := range qr.Result {
				connected = append(connected, models.ConnectedNode{
					Node:     row.Node,
					EdgeType: row.EdgeType,
				})
				if len(connected) >= limit {
					return connected, nil
				}
			}
		}
	}
	return connected, nil
}

// SearchNodes performs hybrid BM25 + vector retrieval over valid
// knowledge nodes using RRF fusion. When embedding is nil the search
// degrades to BM25 only. entityID, when non-nil, scopes the search.
func (c *Client) SearchNodes(
	ctx context.Context,
	query string,
	embedding []float32,
	entityID *string,
	limit int,
) ([]models.KnowledgeNode, error) {
	entityClause := ""
	if entityID != nil {
		entityClause = "AND entity_id = $entity_id"
	}

	var sql string
	if embedding != nil {
		// RRF k=60 (standard constant for rank fusion); vector arm uses
		// 2x limit with HNSW ef=40 for recall.
		sql = fmt.Sprintf(`
			SELECT * FROM search::rrf([
				(SELECT id, entity_id, type, content, importance, confidence, category,
						mention_count, last_mentioned
				 FROM knowledge_node
				 WHERE embedding <|%d,40|> $emb AND invalid_at = NONE %s),
				(SELECT id, entity_id, type, content, importance, confidence, category,
						mention_count, last_mentioned
				 FROM knowledge_node
				 WHERE content @0@ $q AND invalid_at = NONE %s)
			], $limit, 60)
		`, limit*2, entityClause, entityClause)
	} else {
		sql = fmt.Sprintf(`
			SELECT id, entity_id, type, content, importance, confidence, category,
				mention_count, last_mentioned
			FROM knowledge_node
			WHERE content @0@ $q AND invalid_at = NONE %s
			LIMIT $limit
		`, entityClause)
	}

	vars := map[string]any{
		"q":     query,
		"limit": limit,
	}
	if embedding != nil {
		vars["emb"] = embedding
	}
	if entityID != nil {
		vars["entity_id"] = *entityID
	}

	results, err := surrealdb.Query[[]models.KnowledgeNode](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.KnowledgeNode{}, nil
	}
	return (*results)[0].Result, nil
}

// InsertSession persists a new session record. Sessions referencing an
// entity require that entity to exist (ErrReferentialIntegrity).
func (c *Client) InsertSession(ctx context.Context, sessionID string, entityID *string, platform string) error {
	sql := `
		IF $entity_id != NONE {
			LET $entity_exists = (SELECT count() AS c FROM type::record("entity", $entity_id)).c > 0;
			IF !$entity_exists {
				THROW "referenced record missing: entity"
			};
		};

		CREATE type::record("session", $id) SET
			entity_id = $entity_id,
			platform = $platform,
			started_at = time::now(),
			ended_at = NONE,
			message_count = 0;
	`
	vars := map[string]any{
		"id":       sessionID,
		"platform": platform,
	}
	if entityID != nil {
		vars["entity_id"] = *entityID
	} else {
		vars["entity_id"] = nil
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, vars)
	if err != nil {
		return fmt.Errorf("insert session: %w", classifyErr(err))
	}
	return nil
}

// CloseSession stamps the end time and final message count on a session.
func (c *Client) CloseSession(ctx context.Context, sessionID string, messageCount int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("session", $id) SET
			ended_at = time::now(),
			message_count = $message_count
	`, map[string]any{"id": sessionID, "message_count": messageCount})
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id. Returns nil if not found.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	results, err := surrealdb.Query[[]models.Session](ctx, c.db, `
		SELECT meta::id(id) AS id, entity_id, platform, started_at, ended_at, message_count
		FROM type::record("session", $id)
	`, map[string]any{"id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// InsertStreamEpisode persists a session close-time snapshot. Episodes
// are immutable after creation.
func (c *Client) InsertStreamEpisode(ctx context.Context, ep models.StreamEpisode) error {
	topics := ep.Topics
	if topics == nil {
		topics = []string{}
	}
	events := ep.KeyEvents
	if events == nil {
		events = []string{}
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("stream_episode", $id) SET
			session_id = $session_id,
			summary = $summary,
			topics = $topics,
			key_events = $key_events,
			participant_count = $participant_count,
			sentiment = $sentiment,
			started_at = <datetime>$started_at,
			ended_at = time::now()
	`, map[string]any{
		"id":                ep.ID,
		"session_id":        ep.SessionID,
		"summary":           ep.Summary,
		"topics":            topics,
		"key_events":        events,
		"participant_count": ep.ParticipantCount,
		"sentiment":         ep.Sentiment,
		"started_at":        ep.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("insert stream episode: %w", err)
	}
	return nil
}

// GetStreamEpisodes returns episodes in reverse-chronological order.
func (c *Client) GetStreamEpisodes(ctx context.Context, limit int) ([]models.StreamEpisode, error) {
	results, err := surrealdb.Query[[]models.StreamEpisode](ctx, c.db, `
		SELECT meta::id(id) AS id, session_id, summary, topics, key_events,
			participant_count, sentiment, started_at, ended_at
		FROM stream_episode
		ORDER BY ended_at DESC
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("get stream episodes: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.StreamEpisode{}, nil
	}
	return (*results)[0].Result, nil
}

// InsertProceduralRule persists a behavioral rule.
func (c *Client) InsertProceduralRule(ctx context.Context, rule models.ProceduralRule) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("procedural_rule", $id) SET
			rule_type = $rule_type,
			content = $content,
			confidence = $confidence,
			source = $source,
			active = $active
	`, map[string]any{
		"id":         rule.ID,
		"rule_type":  rule.RuleType,
		"content":    rule.Content,
		"confidence": rule.Confidence,
		"source":     rule.Source,
		"active":     rule.Active,
	})
	if err != nil {
		return fmt.Errorf("insert procedural rule: %w", err)
	}
	return nil
}

// GetActiveProceduralRules returns all rules with active = true.
func (c *Client) GetActiveProceduralRules(ctx context.Context) ([]models.ProceduralRule, error) {
	results, err := surrealdb.Query[[]models.ProceduralRule](ctx, c.db, `
		SELECT meta::id(id) AS id, rule_type, content, confidence, source, active, created
		FROM procedural_rule
		WHERE active = true
		ORDER BY created ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("get active procedural rules: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.ProceduralRule{}, nil
	}
	return (*results)[0].Result, nil
}

// DeactivateProceduralRule marks a rule inactive without deleting it.
func (c *Client) DeactivateProceduralRule(ctx context.Context, ruleID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("procedural_rule", $id) SET active = false
	`, map[string]any{"id": ruleID})
	if err != nil {
		return fmt.Errorf("deactivate procedural rule: %w", err)
	}
	return nil
}

// ApplyImportanceDecay reduces importance for valid nodes not mentioned
// within decayDays. Floored at 0.1 to prevent complete decay. Returns
// the number of nodes affected.
func (c *Client) ApplyImportanceDecay(ctx context.Context, decayDays int, factor float64) (int, error) {
	sql := fmt.Sprintf(`
		UPDATE knowledge_node SET
			importance = math::max(importance * %f, 0.1)
		WHERE last_mentioned < time::now() - duration::from::days($decay_days)
			AND invalid_at = NONE
			AND importance > 0.1
		RETURN AFTER
	`, factor)

	results, err := surrealdb.Query[[]models.KnowledgeNode](ctx, c.db, sql, map[string]any{
		"decay_days": decayDays,
	})
	if err != nil {
		return 0, fmt.Errorf("apply importance decay: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
