// Package httpapi is the local control surface for the desktop shell: it
// exposes the mirrored task state, review actions, and health over loopback
// HTTP. All reads are store snapshots; nothing here touches task state
// except through the store and the review engine.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sentinelhq/sentinel-sync/internal/command"
	"github.com/sentinelhq/sentinel-sync/internal/observability"
	"github.com/sentinelhq/sentinel-sync/internal/review"
	"github.com/sentinelhq/sentinel-sync/internal/stream"
	"github.com/sentinelhq/sentinel-sync/internal/task"
)

// StreamStatus is the slice of the stream client the API reports on.
type StreamStatus interface {
	State() stream.ConnState
	Exhausted() bool
}

type Server struct {
	store    *task.Store
	engine   *review.Engine
	commands *command.Client
	status   StreamStatus
	log      zerolog.Logger
}

func New(store *task.Store, engine *review.Engine, commands *command.Client, status StreamStatus, log zerolog.Logger) *Server {
	return &Server{
		store:    store,
		engine:   engine,
		commands: commands,
		status:   status,
		log:      log.With().Str("component", "httpapi").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/tasks", s.handleCreateTask)
	r.Get("/v1/tasks", s.handleListTasks)
	r.Get("/v1/tasks/{id}", s.handleGetTask)
	r.Post("/v1/tasks/{id}/ops/{opID}/approve", s.handleApproveOp)
	r.Post("/v1/tasks/{id}/ops/{opID}/reject", s.handleRejectOp)
	r.Post("/v1/tasks/{id}/approve-all", s.handleApproveAll)
	r.Post("/v1/tasks/{id}/reject-all", s.handleRejectAll)
	r.Post("/v1/tasks/{id}/execute", s.handleExecute)
	r.Post("/v1/tasks/{id}/undo", s.handleUndo)
	r.Get("/v1/review/pending", s.handlePendingConfirmation)
	r.Post("/v1/review/confirm", s.handleConfirm)
	r.Post("/v1/review/cancel", s.handleCancelConfirm)
	r.Get("/v1/commands", s.handleListCommands)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	streamState := string(stream.StateDisconnected)
	exhausted := false
	if s.status != nil {
		streamState = string(s.status.State())
		exhausted = s.status.Exhausted()
	}

	backend := "unreachable"
	if s.commands != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if h, err := s.commands.Health(ctx); err == nil {
			backend = h.Status
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"stream":           streamState,
		"stream_exhausted": exhausted,
		"backend":          backend,
	})
}

func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"commands": s.store.Commands(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
