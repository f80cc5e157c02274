// Package memory composes the memory subsystem: session lifecycle,
// turn processing, context building and episode/insight persistence.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arialive/memcore/internal/assemble"
	"github.com/arialive/memcore/internal/conflict"
	"github.com/arialive/memcore/internal/embedding"
	"github.com/arialive/memcore/internal/extract"
	"github.com/arialive/memcore/internal/metrics"
	"github.com/arialive/memcore/internal/models"
	"github.com/arialive/memcore/internal/procedural"
	"github.com/arialive/memcore/internal/reflection"
	"github.com/arialive/memcore/internal/stream"
	"github.com/google/uuid"
)

// MentionBoost is the importance boost applied when an extracted
// candidate duplicates an already stored memory.
const MentionBoost = 0.1

// Config tunes the service's defaults.
type Config struct {
	// Platform tags sessions and entities (e.g. "youtube", "twitch").
	Platform string
	// RetrievalTopK is the retrieved-memories count for BuildContext.
	RetrievalTopK int
	// EpisodeSummaryCount bounds the episodes folded into the
	// episodic summary section.
	EpisodeSummaryCount int
	// NodeScanLimit bounds the existing-memory window consulted for
	// conflict detection and reflection.
	NodeScanLimit int
}

// sessionState tracks one active session.
type sessionState struct {
	id       string
	entityID *string
	platform string
	messages int
}

// Service is the top-level memory facade. It owns the store connection
// and the in-process StreamContext/ProceduralMemory, which must not be
// shared unsynchronized across processes.
type Service struct {
	cfg        Config
	store      Store
	extractor  *extract.MemoryExtractor // nil when extraction disabled
	detector   *conflict.Detector
	reflector  *reflection.Engine
	procedural *procedural.Memory
	stream     *stream.Context
	assembler  *assemble.Assembler
	retriever  Retriever          // nil falls back to store search
	embedder   embedding.Embedder // nil skips node embeddings
	collector  *metrics.Collector
	logger     *slog.Logger

	mu          sync.Mutex
	active      map[string]*sessionState
	entityLocks *keyedMutex
}

// Deps carries the service's collaborators. Store, Detector, Reflector,
// Procedural, Stream and Assembler are required; the rest are optional.
type Deps struct {
	Store      Store
	Extractor  *extract.MemoryExtractor
	Detector   *conflict.Detector
	Reflector  *reflection.Engine
	Procedural *procedural.Memory
	Stream     *stream.Context
	Assembler  *assemble.Assembler
	Retriever  Retriever
	Embedder   embedding.Embedder
	Collector  *metrics.Collector
	Logger     *slog.Logger
}

// NewService creates the memory service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("memory service requires a store")
	}
	if deps.Detector == nil || deps.Reflector == nil || deps.Procedural == nil ||
		deps.Stream == nil || deps.Assembler == nil {
		return nil, fmt.Errorf("memory service requires detector, reflector, procedural memory, stream context and assembler")
	}
	if cfg.Platform == "" {
		cfg.Platform = "local"
	}
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = 5
	}
	if cfg.EpisodeSummaryCount <= 0 {
		cfg.EpisodeSummaryCount = 3
	}
	if cfg.NodeScanLimit <= 0 {
		cfg.NodeScanLimit = 100
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Collector == nil {
		deps.Collector = metrics.NewCollector()
	}

	return &Service{
		cfg:         cfg,
		store:       deps.Store,
		extractor:   deps.Extractor,
		detector:    deps.Detector,
		reflector:   deps.Reflector,
		procedural:  deps.Procedural,
		stream:      deps.Stream,
		assembler:   deps.Assembler,
		retriever:   deps.Retriever,
		embedder:    deps.Embedder,
		collector:   deps.Collector,
		logger:      deps.Logger,
		active:      make(map[string]*sessionState),
		entityLocks: newKeyedMutex(),
	}, nil
}

// Metrics returns the service's metrics collector.
func (s *Service) Metrics() *metrics.Collector {
	return s.collector
}

// StartSession opens a new session. identifier may be empty for an
// anonymous session. The entity is upserted first so the session's
// entity reference always resolves. Procedural-rule loading is
// best-effort: a failure is logged and the session still starts.
func (s *Service) StartSession(ctx context.Context, identifier string) (string, error) {
	var entityID *string
	if identifier != "" {
		entity, created, err := s.store.UpsertEntity(ctx, identifier, s.cfg.Platform)
		if err != nil {
			return "", fmt.Errorf("start session: %w", err)
		}
		id := models.MustRecordIDString(entity.ID)
		entityID = &id
		if created {
			s.logger.Info("new entity", "entity_id", id, "platform", s.cfg.Platform)
		}
	}

	s.stream.Clear()

	if rules, err := s.store.GetActiveProceduralRules(ctx); err != nil {
		s.logger.Warn("loading procedural rules failed, session starts without them", "error", err)
	} else {
		s.procedural.LoadRules(rules)
	}

	sessionID := uuid.NewString()
	if err := s.store.InsertSession(ctx, sessionID, entityID, s.cfg.Platform); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	s.active[sessionID] = &sessionState{
		id:       sessionID,
		entityID: entityID,
		platform: s.cfg.Platform,
	}
	s.mu.Unlock()

	s.logger.Info("session started", "session_id", sessionID, "entity", identifier)
	return sessionID, nil
}

// ProcessTurn records one conversational turn. StreamContext is always
// updated; extraction and conflict detection run only when the session
// has an entity and an extractor is configured. Mutation is serialized
// per entity id so turns for the same entity apply in order.
func (s *Service) ProcessTurn(ctx context.Context, sessionID, userMsg, assistantMsg string) error {
	s.mu.Lock()
	state, ok := s.active[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("process turn: unknown session %q", sessionID)
	}
	state.messages++
	entityID := state.entityID
	s.mu.Unlock()

	author := "viewer"
	if entityID != nil {
		author = *entityID
	}
	s.stream.Update(author, userMsg, stream.TypeChat, nil)

	if entityID == nil || s.extractor == nil {
		return nil
	}

	unlock := s.entityLocks.Lock(*entityID)
	defer unlock()

	s.extractor.AddTurn(userMsg, assistantMsg, *entityID)

	start := time.Now()
	result, err := s.extractor.Extract(ctx, *entityID, false)
	if err != nil {
		return fmt.Errorf("process turn: %w", err)
	}
	if result == nil {
		return nil
	}
	s.collector.RecordTiming(metrics.OpExtraction, time.Since(start))

	return s.persistCandidates(ctx, *entityID, result.Candidates)
}

// persistCandidates stores extraction results, applying duplicate
// boosts and supersede decay. Caller holds the entity lock.
func (s *Service) persistCandidates(ctx context.Context, entityID string, candidates []models.ExtractionCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	existing, err := s.store.GetNodesByEntity(ctx, entityID, s.cfg.NodeScanLimit)
	if err != nil {
		return fmt.Errorf("load existing memories: %w", err)
	}

	for _, c := range candidates {
		if dupID := s.detector.FindDuplicate(c.Content, existing); dupID != nil {
			if err := s.store.UpdateMention(ctx, *dupID, MentionBoost); err != nil {
				return fmt.Errorf("boost duplicate: %w", err)
			}
			continue
		}

		start := time.Now()
		conflicts := s.detector.Check(c.Content, existing)
		s.collector.RecordTiming(metrics.OpConflict, time.Since(start))

		var emb []float32
		if s.embedder != nil {
			if v, err := s.embed(ctx, c.Content); err != nil {
				s.logger.Warn("embedding failed, storing node without vector", "error", err)
			} else {
				emb = v
			}
		}

		nodeID := uuid.NewString()
		node, err := s.store.InsertKnowledgeNode(ctx, nodeID, entityID, c.Type, c.Content,
			c.Importance, c.Confidence, c.Category, emb)
		if err != nil {
			return fmt.Errorf("persist memory: %w", err)
		}
		existing = append(existing, *node)

		superseded := make(map[string]bool, len(conflicts))
		for _, cf := range conflicts {
			if err := s.store.InsertSupersedesEdge(ctx, nodeID, cf.SupersededID); err != nil {
				return fmt.Errorf("persist supersedes edge: %w", err)
			}
			if err := s.store.SetNodeImportance(ctx, cf.SupersededID, cf.NewImportanceDecay); err != nil {
				return fmt.Errorf("decay superseded memory: %w", err)
			}
			if err := s.store.InvalidateNode(ctx, cf.SupersededID); err != nil {
				return fmt.Errorf("invalidate superseded memory: %w", err)
			}
			superseded[cf.SupersededID] = true
			s.logger.Info("memory superseded",
				"entity_id", entityID, "old", cf.SupersededID, "new", nodeID,
				"similarity", cf.Similarity)
		}

		// Later candidates in the batch must not match nodes this one
		// just invalidated.
		if len(superseded) > 0 {
			kept := existing[:0]
			for _, n := range existing {
				if !superseded[models.MustRecordIDString(n.ID)] {
					kept = append(kept, n)
				}
			}
			existing = kept
		}
	}
	return nil
}

// BuildContext assembles the token-budgeted prompt context for the
// session. Episodic summary and retrieval are best-effort: failures
// yield empty sections, never errors.
func (s *Service) BuildContext(ctx context.Context, sessionID, systemPrompt, query string, recent []assemble.Message) (assemble.Split, error) {
	s.mu.Lock()
	state, ok := s.active[sessionID]
	var entityID *string
	if ok {
		entityID = state.entityID
	}
	s.mu.Unlock()
	if !ok {
		return assemble.Split{}, fmt.Errorf("build context: unknown session %q", sessionID)
	}

	start := time.Now()
	defer func() {
		s.collector.RecordTiming(metrics.OpAssembly, time.Since(start))
	}()

	in := assemble.Input{
		SystemPrompt:    systemPrompt,
		RecentMessages:  recent,
		StreamContext:   s.stream.FormatForContext(),
		ProceduralRules: s.procedural.FormatForContext(),
	}

	if entityID != nil {
		if profile, err := s.entityProfile(ctx, *entityID); err != nil {
			s.logger.Warn("entity profile lookup failed", "error", err)
		} else {
			in.EntityProfile = profile
		}
	}

	if query != "" {
		if memories, err := s.retrieve(ctx, query, entityID); err != nil {
			s.logger.Warn("memory retrieval failed", "error", err)
		} else {
			in.RetrievedMemories = memories
		}
	}

	if summary, err := s.episodicSummary(ctx); err != nil {
		s.logger.Warn("episodic summary lookup failed", "error", err)
	} else {
		in.EpisodicSummary = summary
	}

	return s.assembler.AssembleSplit(in), nil
}

// EndSession closes a session: persists the StreamContext snapshot as
// an episode, reflects over the entity's recent memories, closes the
// session record and clears the live context. Unknown session ids are
// a no-op. Episode and insight persistence are best-effort so context
// clearing and closure always proceed.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	state, ok := s.active[sessionID]
	if ok {
		delete(s.active, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	episode := s.stream.ToEpisode(sessionID)
	if err := s.store.InsertStreamEpisode(ctx, episode); err != nil {
		s.logger.Error("persisting stream episode failed", "session_id", sessionID, "error", err)
	}

	if state.entityID != nil {
		s.flushAndReflect(ctx, *state.entityID)
	}

	if err := s.store.CloseSession(ctx, sessionID, state.messages); err != nil {
		s.logger.Error("closing session record failed", "session_id", sessionID, "error", err)
	}

	s.stream.Clear()
	s.logger.Info("session ended", "session_id", sessionID, "messages", state.messages)
	return nil
}

// flushAndReflect drains any buffered turns, then persists reflection
// insights as meta_summary nodes. All failures are logged and
// swallowed.
func (s *Service) flushAndReflect(ctx context.Context, entityID string) {
	unlock := s.entityLocks.Lock(entityID)
	defer unlock()

	if s.extractor != nil {
		if result, err := s.extractor.Extract(ctx, entityID, true); err != nil {
			s.logger.Warn("final extraction failed", "entity_id", entityID, "error", err)
		} else if result != nil {
			if err := s.persistCandidates(ctx, entityID, result.Candidates); err != nil {
				s.logger.Warn("persisting final extraction failed", "entity_id", entityID, "error", err)
			}
		}
	}

	nodes, err := s.store.GetNodesByEntity(ctx, entityID, s.cfg.NodeScanLimit)
	if err != nil {
		s.logger.Warn("loading nodes for reflection failed", "entity_id", entityID, "error", err)
		return
	}

	start := time.Now()
	insights := s.reflector.Reflect(ctx, nodes)
	s.collector.RecordTiming(metrics.OpReflection, time.Since(start))

	for _, insight := range insights {
		_, err := s.store.InsertKnowledgeNode(ctx, insight.ID, insight.EntityID,
			models.NodeMetaSummary, insight.Content, insight.Importance, 0.6, "reflection", nil)
		if err != nil {
			s.logger.Warn("persisting insight failed", "entity_id", entityID, "error", err)
			continue
		}
		s.logger.Info("insight persisted", "entity_id", entityID,
			"sources", len(insight.SourceNodeIDs))
	}
}

// SetTopic updates the live stream topic.
func (s *Service) SetTopic(topic string) {
	s.stream.SetTopic(topic)
}

// SetMood updates the live stream mood.
func (s *Service) SetMood(mood string) {
	s.stream.SetMood(mood)
}

// GetAllMemories returns the entity's valid memories, most recently
// mentioned first.
func (s *Service) GetAllMemories(ctx context.Context, entityID string) ([]models.KnowledgeNode, error) {
	return s.store.GetNodesByEntity(ctx, entityID, s.cfg.NodeScanLimit)
}

// SearchMemories runs retrieval over all entities.
func (s *Service) SearchMemories(ctx context.Context, query string) ([]models.RetrievalResult, error) {
	return s.retrieve(ctx, query, nil)
}

// DecayMemories reduces importance of memories not mentioned within
// decayDays. Maintenance operation, typically run between streams.
func (s *Service) DecayMemories(ctx context.Context, decayDays int) (int, error) {
	return s.store.ApplyImportanceDecay(ctx, decayDays, 0.9)
}

// Close shuts down the service and its store connection.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

// retrieve runs the injected retriever, falling back to store search.
// Retrieved nodes get a mention touch so frequently recalled memories
// gain importance.
func (s *Service) retrieve(ctx context.Context, query string, entityID *string) ([]models.RetrievalResult, error) {
	start := time.Now()
	defer func() {
		s.collector.RecordTiming(metrics.OpDBSearch, time.Since(start))
	}()

	if s.retriever != nil {
		return s.retriever.Retrieve(ctx, query, entityID, s.cfg.RetrievalTopK)
	}

	var emb []float32
	if s.embedder != nil {
		if v, err := s.embed(ctx, query); err != nil {
			s.logger.Warn("query embedding failed, using text search only", "error", err)
		} else {
			emb = v
		}
	}

	nodes, err := s.store.SearchNodes(ctx, query, emb, entityID, s.cfg.RetrievalTopK)
	if err != nil {
		return nil, err
	}

	results := make([]models.RetrievalResult, 0, len(nodes))
	for i, n := range nodes {
		id := models.MustRecordIDString(n.ID)
		if err := s.store.UpdateMention(ctx, id, 0); err != nil {
			s.logger.Warn("mention touch failed", "node_id", id, "error", err)
		}
		results = append(results, models.RetrievalResult{
			ID:         id,
			Content:    n.Content,
			MemoryType: n.Type,
			// Rank-derived score; hybrid search returns fused order.
			Score: 1.0 / float64(i+1),
		})
	}
	return results, nil
}

// embed generates an embedding via the configured embedder, recording
// timing. Caller ensures s.embedder is non-nil.
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	defer func() {
		s.collector.RecordTiming(metrics.OpEmbedding, time.Since(start))
	}()
	return s.embedder.Embed(ctx, text)
}

// entityProfile renders the entity's strongest memories as a short
// profile block.
func (s *Service) entityProfile(ctx context.Context, entityID string) (string, error) {
	nodes, err := s.store.GetNodesByEntity(ctx, entityID, s.cfg.NodeScanLimit)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", nil
	}

	// Highest importance first, capped at five lines.
	top := make([]models.KnowledgeNode, len(nodes))
	copy(top, nodes)
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			if top[j].Importance > top[i].Importance {
				top[i], top[j] = top[j], top[i]
			}
		}
	}
	if len(top) > 5 {
		top = top[:5]
	}

	var sb strings.Builder
	for _, n := range top {
		fmt.Fprintf(&sb, "- %s\n", n.Content)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// episodicSummary folds the most recent episodes into a short block.
func (s *Service) episodicSummary(ctx context.Context) (string, error) {
	episodes, err := s.store.GetStreamEpisodes(ctx, s.cfg.EpisodeSummaryCount)
	if err != nil {
		return "", err
	}
	if len(episodes) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, ep := range episodes {
		fmt.Fprintf(&sb, "- %s: %s\n", ep.EndedAt.Format("Jan 2"), ep.Summary)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
