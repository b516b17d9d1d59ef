// Package admin exposes the operator HTTP surface: live status, chat
// transcripts, the violation log, ban toggling and broadcast control.
// It is meant to sit behind the deployment's own access control; the
// handlers perform no authentication themselves.
package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anonychat/orchestrator/internal/broadcast"
	"github.com/anonychat/orchestrator/internal/matching"
	"github.com/anonychat/orchestrator/internal/metrics"
	"github.com/anonychat/orchestrator/internal/profile"
	"github.com/anonychat/orchestrator/internal/relay"
	"github.com/anonychat/orchestrator/internal/session"
	"github.com/anonychat/orchestrator/internal/transcript"
	"github.com/anonychat/orchestrator/internal/violation"
)

// Server bundles the admin endpoints over the orchestrator's components.
type Server struct {
	registry    *session.Registry
	queue       *matching.Queue
	relay       *relay.Relay
	broadcaster *broadcast.Dispatcher
	profiles    profile.Store
	violations  violation.Store
	transcripts transcript.Store
	startedAt   time.Time
}

// New creates the admin server.
func New(registry *session.Registry, queue *matching.Queue, rel *relay.Relay,
	broadcaster *broadcast.Dispatcher, profiles profile.Store,
	violations violation.Store, transcripts transcript.Store) *Server {
	return &Server{
		registry:    registry,
		queue:       queue,
		relay:       rel,
		broadcaster: broadcaster,
		profiles:    profiles,
		violations:  violations,
		transcripts: transcripts,
		startedAt:   time.Now(),
	}
}

// Routes builds the admin router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/participants", s.handleParticipants)
		r.Get("/violations", s.handleViolations)
		r.Get("/chatlog/{roomID}", s.handleChatlog)
		r.Post("/toggle-ban", s.handleToggleBan)
		r.Post("/broadcast", s.handleBroadcast)
		r.Get("/broadcast-status", s.handleBroadcastStatus)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the live orchestrator snapshot.
type statusResponse struct {
	UptimeSeconds int64             `json:"uptime_seconds"`
	Queue         []string          `json:"queue"`
	ActivePairs   []relay.Pair      `json:"active_pairs"`
	Sessions      map[string]string `json:"sessions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sessions := make(map[string]string)
	for id, st := range s.registry.Snapshot() {
		sessions[id] = st.Mode.String()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Queue:         s.queue.List(),
		ActivePairs:   s.relay.ActivePairs(),
		Sessions:      sessions,
	})
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	all, err := s.profiles.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list participants failed")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	all, err := s.violations.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list violations failed")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleChatlog(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	entries, err := s.transcripts.Read(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read transcript failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"entries": entries,
	})
}

type toggleBanRequest struct {
	ID string `json:"id"`
}

// handleToggleBan flips the ban flag on a participant record. The new
// value takes effect on the participant's next inbound message.
func (s *Server) handleToggleBan(w http.ResponseWriter, r *http.Request) {
	var req toggleBanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"id\": \"<participant>\"}")
		return
	}

	p, err := s.profiles.GetOrCreate(r.Context(), req.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load participant failed")
		return
	}
	p.Banned = !p.Banned
	if err := s.profiles.Save(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "save participant failed")
		return
	}

	log.Printf("[admin] toggled ban for %s: banned=%v", p.ID, p.Banned)
	writeJSON(w, http.StatusOK, p)
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"message\": \"<text>\"}")
		return
	}

	n, err := s.broadcaster.Start(r.Context(), req.Message)
	switch err {
	case nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"recipients": n})
	case broadcast.ErrEmptyMessage:
		writeError(w, http.StatusBadRequest, "broadcast message is empty")
	case broadcast.ErrBusy:
		writeError(w, http.StatusConflict, "a broadcast is already running")
	default:
		writeError(w, http.StatusInternalServerError, "broadcast start failed")
	}
}

func (s *Server) handleBroadcastStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.broadcaster.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[admin] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
