package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"kiosk/internal/events"
	"kiosk/internal/history"
	"kiosk/internal/logging"
)

const (
	eventBuffer       = 32
	wsWriteTimeout    = 5 * time.Second
	wsHeartbeatEvery  = 30 * time.Second
	wsHeartbeatWithin = 10 * time.Second
	defaultHistoryMax = 50
)

// Backend supplies the data the HTTP server renders.
type Backend interface {
	Status(ctx context.Context) DaemonStatus
	Presence(ctx context.Context) PresenceView
	History(ctx context.Context, limit int, memberID string) ([]history.Entry, error)
}

// Options configures a Server.
type Options struct {
	Bind    string
	Backend Backend
	Hub     *events.Hub
	Metrics http.Handler
	// OriginPatterns lists extra origins allowed to open the events websocket.
	OriginPatterns []string
	Logger         *slog.Logger
}

// Server is the kiosk HTTP API.
type Server struct {
	bind           string
	backend        Backend
	hub            *events.Hub
	originPatterns []string
	logger         *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer returns nil when no bind address is configured.
func NewServer(opts Options) *Server {
	bind := strings.TrimSpace(opts.Bind)
	if bind == "" || opts.Backend == nil {
		return nil
	}
	s := &Server{
		bind:           bind,
		backend:        opts.Backend,
		hub:            opts.Hub,
		originPatterns: opts.OriginPatterns,
		logger:         logging.NewComponentLogger(opts.Logger, "api-server"),
	}
	s.server = &http.Server{
		Handler:           s.Handler(opts.Metrics),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/presence", s.handlePresence)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

// Start listens on the bind address and serves until ctx ends or Stop.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.api_bind"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_server_started"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Status(r.Context()))
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Presence(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultHistoryMax
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := s.backend.History(r.Context(), limit, strings.TrimSpace(query.Get("member")))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Entries: FromHistory(entries)})
}

// handleEvents streams committed toggles to a websocket client until either
// side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event feed unavailable")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", logging.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	sub := s.hub.Subscribe(eventBuffer)
	defer s.hub.Unsubscribe(sub)

	// The feed is send-only; CloseRead discards client frames and cancels
	// ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())

	heartbeat := time.NewTicker(wsHeartbeatEvery)
	defer heartbeat.Stop()

	s.logger.Debug("event subscriber connected", logging.String("remote", r.RemoteAddr))
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.C:
			if err := writeEvent(ctx, conn, ev); err != nil {
				s.logger.Debug("event write failed",
					logging.Error(err),
					logging.Int("close_status", int(websocket.CloseStatus(err))),
				)
				return
			}
		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsHeartbeatWithin)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
