package server_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arialive/memcore/internal/assemble"
	"github.com/arialive/memcore/internal/conflict"
	"github.com/arialive/memcore/internal/extract"
	"github.com/arialive/memcore/internal/memory"
	"github.com/arialive/memcore/internal/models"
	"github.com/arialive/memcore/internal/procedural"
	"github.com/arialive/memcore/internal/reflection"
	"github.com/arialive/memcore/internal/server"
	"github.com/arialive/memcore/internal/stream"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// stubStore is a minimal in-memory Store for gateway tests.
type stubStore struct {
	nodes    []models.KnowledgeNode
	sessions map[string]bool
	episodes int
}

func newStubStore() *stubStore {
	return &stubStore{sessions: make(map[string]bool)}
}

func (s *stubStore) UpsertEntity(_ context.Context, identifier, platform string) (*models.Entity, bool, error) {
	return &models.Entity{
		ID:         surrealmodels.RecordID{Table: "entity", ID: platform + "_" + identifier},
		Identifier: identifier,
		Platform:   platform,
	}, true, nil
}

func (s *stubStore) GetNodesByEntity(_ context.Context, entityID string, _ int) ([]models.KnowledgeNode, error) {
	var out []models.KnowledgeNode
	for _, n := range s.nodes {
		if n.EntityID == entityID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubStore) InsertKnowledgeNode(_ context.Context, nodeID, entityID, nodeType, content string,
	importance, confidence float64, category string, _ []float32) (*models.KnowledgeNode, error) {
	n := models.KnowledgeNode{
		ID:         surrealmodels.RecordID{Table: "knowledge_node", ID: nodeID},
		EntityID:   entityID,
		Type:       nodeType,
		Content:    content,
		Importance: importance,
		Confidence: confidence,
		Category:   category,
	}
	s.nodes = append(s.nodes, n)
	return &n, nil
}

func (s *stubStore) UpdateMention(context.Context, string, float64) error { return nil }

func (s *stubStore) SetNodeImportance(context.Context, string, float64) error { return nil }

func (s *stubStore) InvalidateNode(context.Context, string) error { return nil }
func (s *stubStore) InsertSupersedesEdge(context.Context, string, string) error {
	return nil
}

func (s *stubStore) SearchNodes(_ context.Context, query string, _ []float32, _ *string, _ int) ([]models.KnowledgeNode, error) {
	var out []models.KnowledgeNode
	for _, n := range s.nodes {
		if strings.Contains(strings.ToLower(n.Content), strings.ToLower(query)) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubStore) InsertSession(_ context.Context, sessionID string, _ *string, _ string) error {
	s.sessions[sessionID] = true
	return nil
}

func (s *stubStore) CloseSession(context.Context, string, int) error { return nil }

func (s *stubStore) InsertStreamEpisode(context.Context, models.StreamEpisode) error {
	s.episodes++
	return nil
}

func (s *stubStore) GetStreamEpisodes(context.Context, int) ([]models.StreamEpisode, error) {
	return nil, nil
}

func (s *stubStore) InsertProceduralRule(context.Context, models.ProceduralRule) error {
	return nil
}

func (s *stubStore) GetActiveProceduralRules(context.Context) ([]models.ProceduralRule, error) {
	return nil, nil
}

func (s *stubStore) ApplyImportanceDecay(context.Context, int, float64) (int, error) {
	return 0, nil
}

func (s *stubStore) Close(context.Context) error { return nil }

var _ memory.Store = (*stubStore)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, store *stubStore) *httptest.Server {
	t.Helper()

	extractor, err := extract.NewMemoryExtractor(extract.Config{
		BatchSize:    1,
		RegexEnabled: true,
	}, nil, testLogger())
	require.NoError(t, err)

	svc, err := memory.NewService(memory.Config{Platform: "test"}, memory.Deps{
		Store:      store,
		Extractor:  extractor,
		Detector:   conflict.NewDetector(nil),
		Reflector:  reflection.NewEngine(reflection.Config{}, nil, testLogger()),
		Procedural: procedural.NewMemory(),
		Stream:     stream.NewContext(stream.Config{}),
		Assembler:  assemble.New(assemble.Config{}, nil),
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	srv := server.New(server.Config{SystemPrompt: "Be helpful"}, svc, nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestGateway(t, newStubStore())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestGateway(t, newStubStore())

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestWebsocketChatRoundTrip(t *testing.T) {
	store := newStubStore()
	ts := newTestGateway(t, store)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var session struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, conn.ReadJSON(&session))
	assert.Equal(t, "session", session.Type)
	require.NotEmpty(t, session.SessionID)
	assert.True(t, store.sessions[session.SessionID], "connecting starts a session")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "message",
		"text": "I like Python",
	}))

	var reply struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Context string `json:"context"`
	}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "reply", reply.Type)
	assert.NotEmpty(t, reply.Text, "without a model, an echo reply is sent")
	assert.Contains(t, reply.Context, "Be helpful", "assembled context is returned")

	require.Len(t, store.nodes, 1, "the turn's extracted memory is persisted")
	assert.Contains(t, store.nodes[0].Content, "Python")
}

func TestWebsocketUnknownFrame(t *testing.T) {
	ts := newTestGateway(t, newStubStore())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var session map[string]any
	require.NoError(t, conn.ReadJSON(&session))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))

	var errFrame struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "error", errFrame.Type)
	assert.Contains(t, errFrame.Text, "bogus")
}
