//go:build integration

// Package db integration tests run against a throwaway SurrealDB
// container: go test -tags integration ./internal/db/
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/arialive/memcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx, 384); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// dummyEmbedding returns a 384-dim vector matching the schema's HNSW
// index dimension.
func dummyEmbedding(seed float32) []float32 {
	embedding := make([]float32, 384)
	for i := range embedding {
		embedding[i] = (float32(i) + seed) / 384.0
	}
	return embedding
}

func mustEntity(t *testing.T, identifier string) string {
	t.Helper()
	entity, _, err := testDB.UpsertEntity(context.Background(), identifier, "test")
	require.NoError(t, err)
	return models.MustRecordIDString(entity.ID)
}

func TestEntityKey(t *testing.T) {
	assert.Equal(t, "twitch_alice", EntityKey("Alice", "Twitch"))
	assert.Equal(t, "youtube_user_42", EntityKey("user 42", "YouTube"))
}

func TestUpsertEntityIdempotent(t *testing.T) {
	ctx := context.Background()

	first, created, err := testDB.UpsertEntity(ctx, "upsert-me", "test")
	require.NoError(t, err)
	assert.True(t, created, "first upsert creates")

	second, created, err := testDB.UpsertEntity(ctx, "upsert-me", "test")
	require.NoError(t, err)
	assert.False(t, created, "second upsert touches")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.FirstSeen, second.FirstSeen, "first_seen is preserved")
	assert.False(t, second.LastSeen.Before(first.LastSeen), "last_seen advances")
}

func TestInsertKnowledgeNodeRequiresEntity(t *testing.T) {
	_, err := testDB.InsertKnowledgeNode(context.Background(),
		"orphan_node", "no_such_entity", models.NodeAtomicFact, "content", 0.5, 0.5, "", nil)
	assert.ErrorIs(t, err, ErrReferentialIntegrity)
}

func TestInsertAndListNodes(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "node-owner")

	node, err := testDB.InsertKnowledgeNode(ctx, "node_list_1", entityID,
		models.NodePreference, "Likes coffee", 0.6, 0.5, "preference", dummyEmbedding(1))
	require.NoError(t, err)
	assert.Equal(t, entityID, node.EntityID)
	assert.Equal(t, 0, node.MentionCount)
	require.NotNil(t, node.ValidAt)
	assert.Nil(t, node.InvalidAt)

	nodes, err := testDB.GetNodesByEntity(ctx, entityID, 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Likes coffee", nodes[0].Content)
}

func TestUpdateMentionClampsImportance(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "mention-owner")

	_, err := testDB.InsertKnowledgeNode(ctx, "node_mention_1", entityID,
		models.NodeAtomicFact, "Lives in Seoul", 0.95, 0.5, "location", nil)
	require.NoError(t, err)

	require.NoError(t, testDB.UpdateMention(ctx, "node_mention_1", 0.1))
	require.NoError(t, testDB.UpdateMention(ctx, "node_mention_1", 0.1))

	nodes, err := testDB.GetNodesByEntity(ctx, entityID, 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, 2, nodes[0].MentionCount)
	assert.InDelta(t, 1.0, nodes[0].Importance, 1e-9, "importance is clamped at 1.0")
}

func TestInvalidateNodeHidesIt(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "invalidate-owner")

	_, err := testDB.InsertKnowledgeNode(ctx, "node_invalid_1", entityID,
		models.NodeAtomicFact, "Old fact", 0.5, 0.5, "", nil)
	require.NoError(t, err)

	require.NoError(t, testDB.InvalidateNode(ctx, "node_invalid_1"))

	nodes, err := testDB.GetNodesByEntity(ctx, entityID, 10)
	require.NoError(t, err)
	assert.Empty(t, nodes, "invalidated nodes are excluded from listings")
}

func TestSupersedesEdge(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "edge-owner")

	_, err := testDB.InsertKnowledgeNode(ctx, "edge_old", entityID,
		models.NodeAtomicFact, "Lives in Seoul", 0.8, 0.5, "location", nil)
	require.NoError(t, err)
	_, err = testDB.InsertKnowledgeNode(ctx, "edge_new", entityID,
		models.NodeAtomicFact, "Lives in Busan", 0.8, 0.5, "location", nil)
	require.NoError(t, err)

	require.NoError(t, testDB.InsertSupersedesEdge(ctx, "edge_new", "edge_old"))

	connected, err := testDB.GetConnectedNodes(ctx, "edge_new", 10)
	require.NoError(t, err)
	require.Len(t, connected, 1)
	assert.Equal(t, models.EdgeSupersedes, connected[0].EdgeType)
	assert.Equal(t, "Lives in Seoul", connected[0].Node.Content)
}

func TestSupersedesEdgeRequiresBothNodes(t *testing.T) {
	err := testDB.InsertSupersedesEdge(context.Background(), "never_existed_a", "never_existed_b")
	assert.ErrorIs(t, err, ErrReferentialIntegrity)
}

func TestSearchNodesTextOnly(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "search-owner")

	_, err := testDB.InsertKnowledgeNode(ctx, "search_1", entityID,
		models.NodePreference, "Enjoys playing badminton on weekends", 0.6, 0.5, "hobby", nil)
	require.NoError(t, err)

	// nil embedding exercises the BM25-only fallback.
	nodes, err := testDB.SearchNodes(ctx, "badminton", nil, &entityID, 5)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	assert.Contains(t, nodes[0].Content, "badminton")
}

func TestSearchNodesHybrid(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "hybrid-owner")

	_, err := testDB.InsertKnowledgeNode(ctx, "hybrid_1", entityID,
		models.NodePreference, "Loves spicy tteokbokki", 0.6, 0.5, "food", dummyEmbedding(3))
	require.NoError(t, err)

	nodes, err := testDB.SearchNodes(ctx, "tteokbokki", dummyEmbedding(3), &entityID, 5)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	assert.Contains(t, nodes[0].Content, "tteokbokki")
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "session-owner")

	require.NoError(t, testDB.InsertSession(ctx, "sess_1", &entityID, "test"))
	require.NoError(t, testDB.CloseSession(ctx, "sess_1", 42))

	sess, err := testDB.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 42, sess.MessageCount)
	assert.NotNil(t, sess.EndedAt)
}

func TestInsertSessionRequiresEntity(t *testing.T) {
	missing := "no_such_entity"
	err := testDB.InsertSession(context.Background(), "sess_orphan", &missing, "test")
	assert.ErrorIs(t, err, ErrReferentialIntegrity)
}

func TestAnonymousSession(t *testing.T) {
	require.NoError(t, testDB.InsertSession(context.Background(), "sess_anon", nil, "test"))
}

func TestStreamEpisodes(t *testing.T) {
	ctx := context.Background()

	ep := models.StreamEpisode{
		ID:               "ep_1",
		SessionID:        "sess_ep",
		Summary:          "Talked about cooking. 120 messages, 8 viewers",
		Topics:           []string{"cooking", "travel"},
		KeyEvents:        []string{"superchat from alice: hi ($5)"},
		ParticipantCount: 8,
		Sentiment:        "cozy",
		StartedAt:        time.Now().Add(-time.Hour),
		EndedAt:          time.Now(),
	}
	require.NoError(t, testDB.InsertStreamEpisode(ctx, ep))

	episodes, err := testDB.GetStreamEpisodes(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, episodes)
	assert.Equal(t, "Talked about cooking. 120 messages, 8 viewers", episodes[0].Summary)
	assert.Equal(t, []string{"cooking", "travel"}, episodes[0].Topics)
}

func TestProceduralRules(t *testing.T) {
	ctx := context.Background()

	rule := models.ProceduralRule{
		ID:         "rule_1",
		RuleType:   "persona",
		Content:    "Thank superchats immediately",
		Confidence: 0.9,
		Source:     models.RuleSourceManual,
		Active:     true,
	}
	require.NoError(t, testDB.InsertProceduralRule(ctx, rule))

	rules, err := testDB.GetActiveProceduralRules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	require.NoError(t, testDB.DeactivateProceduralRule(ctx, "rule_1"))

	rules, err = testDB.GetActiveProceduralRules(ctx)
	require.NoError(t, err)
	for _, r := range rules {
		assert.NotEqual(t, "rule_1", r.ID, "deactivated rules are excluded")
	}
}

func TestApplyImportanceDecay(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "decay-owner")

	_, err := testDB.InsertKnowledgeNode(ctx, "decay_1", entityID,
		models.NodeAtomicFact, "Fresh memory", 0.8, 0.5, "", nil)
	require.NoError(t, err)

	// Nothing is older than 30 days in a fresh database.
	affected, err := testDB.ApplyImportanceDecay(ctx, 30, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 0, affected)

	// A zero-day cutoff decays everything.
	affected, err = testDB.ApplyImportanceDecay(ctx, 0, 0.9)
	require.NoError(t, err)
	assert.Greater(t, affected, 0)
}

func TestSchemaVersionStamped(t *testing.T) {
	version, err := testDB.storedVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestInitSchemaRejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	defer func() {
		require.NoError(t, testDB.writeVersion(ctx, SchemaVersion))
	}()

	require.NoError(t, testDB.writeVersion(ctx, SchemaVersion+1))

	err := testDB.InitSchema(ctx, 384)
	assert.ErrorIs(t, err, ErrMigration, "data written by a newer build must not be migrated down")
}

func TestInitSchemaMigratesFromV1(t *testing.T) {
	ctx := context.Background()
	entityID := mustEntity(t, "migrate-owner")

	_, err := testDB.InsertKnowledgeNode(ctx, "migrate_1", entityID,
		models.NodeAtomicFact, "Pre-migration memory", 0.5, 0.5, "", nil)
	require.NoError(t, err)

	// Shape the node like v1 data: no validity window.
	_, err = testDB.Query(ctx, `
		UPDATE type::record("knowledge_node", $id) SET valid_at = NONE
	`, map[string]any{"id": "migrate_1"})
	require.NoError(t, err)

	require.NoError(t, testDB.writeVersion(ctx, 1))
	require.NoError(t, testDB.InitSchema(ctx, 384))

	version, err := testDB.storedVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version, "migration lands on the current version")

	nodes, err := testDB.GetNodesByEntity(ctx, entityID, 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.NotNil(t, nodes[0].ValidAt, "the v1 step backfills the validity window")
}
