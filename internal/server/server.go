// Package server exposes the memory service over a websocket chat
// gateway plus a couple of plain HTTP endpoints for health and stats.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arialive/memcore/internal/assemble"
	"github.com/arialive/memcore/internal/llm"
	"github.com/arialive/memcore/internal/memory"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	// maxRecent bounds the rolling conversation window sent to the
	// assembler per turn.
	maxRecent = 20
)

// Config tunes the gateway.
type Config struct {
	Addr         string
	SystemPrompt string
}

// Server is the websocket chat gateway. One websocket connection maps
// to one memory session.
type Server struct {
	cfg      Config
	svc      *memory.Service
	model    *llm.Model // nil runs in echo mode
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// inbound is a client -> server frame.
type inbound struct {
	Type string `json:"type"` // "message" | "topic" | "mood"
	Text string `json:"text"`
}

// outbound is a server -> client frame.
type outbound struct {
	Type      string `json:"type"` // "session" | "reply" | "context" | "error"
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Context   string `json:"context,omitempty"`
}

// New creates the gateway. model may be nil, in which case the server
// echoes the assembled context instead of generating replies.
func New(cfg Config, svc *memory.Service, model *llm.Model, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8710"
	}
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		model:  model,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway sits behind the operator's own ingress.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
	}
	return s
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.svc.Metrics().Snapshot()); err != nil {
		s.logger.Warn("encoding stats failed", "error", err)
	}
}

// handleWS runs one chat session over a websocket connection. The
// session starts with the ?user= identifier (empty means anonymous)
// and ends when the connection closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	identifier := r.URL.Query().Get("user")

	sessionID, err := s.svc.StartSession(ctx, identifier)
	if err != nil {
		s.logger.Error("starting session failed", "error", err)
		s.write(conn, outbound{Type: "error", Text: "could not start session"})
		return
	}
	defer func() {
		// The request context is canceled by now; give cleanup its
		// own deadline so the episode and reflection still persist.
		endCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.svc.EndSession(endCtx, sessionID); err != nil {
			s.logger.Error("ending session failed", "session_id", sessionID, "error", err)
		}
	}()

	s.write(conn, outbound{Type: "session", SessionID: sessionID})

	var recent []assemble.Message
	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}

		switch in.Type {
		case "message":
			recent = s.handleMessage(ctx, conn, sessionID, in.Text, recent)
		case "topic":
			s.svc.SetTopic(in.Text)
		case "mood":
			s.svc.SetMood(in.Text)
		default:
			s.write(conn, outbound{Type: "error", Text: fmt.Sprintf("unknown frame type %q", in.Type)})
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID, text string, recent []assemble.Message) []assemble.Message {
	recent = append(recent, assemble.Message{Role: "user", Content: text})
	if len(recent) > maxRecent {
		recent = recent[len(recent)-maxRecent:]
	}

	split, err := s.svc.BuildContext(ctx, sessionID, s.cfg.SystemPrompt, text, recent)
	if err != nil {
		s.logger.Error("building context failed", "session_id", sessionID, "error", err)
		s.write(conn, outbound{Type: "error", Text: "could not build context"})
		return recent
	}

	reply := s.reply(ctx, split, text)
	recent = append(recent, assemble.Message{Role: "assistant", Content: reply})

	if err := s.svc.ProcessTurn(ctx, sessionID, text, reply); err != nil {
		s.logger.Error("processing turn failed", "session_id", sessionID, "error", err)
	}

	s.write(conn, outbound{Type: "reply", Text: reply, Context: split.SystemContent})
	return recent
}

// reply generates the assistant reply, or describes the assembled
// context when no model is configured.
func (s *Server) reply(ctx context.Context, split assemble.Split, text string) string {
	if s.model == nil {
		return fmt.Sprintf("(no model configured; context is %d chars)", len(split.SystemContent))
	}
	out, err := s.model.GenerateWithSystem(ctx, split.SystemContent, text)
	if err != nil {
		s.logger.Warn("generation failed", "error", err)
		return "(generation failed)"
	}
	return out
}

func (s *Server) write(conn *websocket.Conn, msg outbound) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("websocket write failed", "error", err)
	}
}
