package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelhq/sentinel-sync/internal/command"
	"github.com/sentinelhq/sentinel-sync/internal/review"
	"github.com/sentinelhq/sentinel-sync/internal/task"
)

type createTaskRequest struct {
	Description string `json:"description"`
	Mode        string `json:"mode"`
	Path        string `json:"path"`
}

type createTaskResponse struct {
	Task task.Task `json:"task"`
}

// handleCreateTask submits a new task: the backend plan request runs first
// so the mirrored task carries the backend's task id and stream events can
// find it. The task starts in planning regardless of what the backend
// reports later.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "description is required")
		return
	}
	mode := task.Mode(strings.TrimSpace(req.Mode))
	switch mode {
	case task.ModeOrganize, task.ModeCleanup, task.ModeMediaSort, task.ModeSafeDelete, task.ModeCustom:
	case "":
		mode = task.ModeOrganize
	default:
		respondError(w, http.StatusBadRequest, "invalid_mode", "unknown mode "+req.Mode)
		return
	}

	resp, err := s.commands.CreatePlan(r.Context(), "", string(mode), req.Description, req.Path)
	if err != nil {
		s.store.RecordCommand("create_plan", "", commandStatusFor(err), err.Error())
		respondError(w, http.StatusBadGateway, "plan_request_failed", err.Error())
		return
	}
	s.store.RecordCommand("create_plan", resp.TaskID, task.CommandSent, "")

	t := s.store.CreateTask(resp.TaskID, req.Description, mode)
	s.log.Info().Str("task_id", t.ID).Str("mode", string(mode)).Msg("task submitted")
	respondJSON(w, http.StatusCreated, createTaskResponse{Task: t})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"tasks": s.store.List(),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleApproveOp(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	opID := strings.TrimSpace(chi.URLParam(r, "opID"))
	if err := s.engine.Approve(taskID, opID); err != nil {
		respondReviewError(w, err)
		return
	}
	s.respondReviewState(w, taskID)
}

func (s *Server) handleRejectOp(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	opID := strings.TrimSpace(chi.URLParam(r, "opID"))
	if err := s.engine.Reject(taskID, opID); err != nil {
		respondReviewError(w, err)
		return
	}
	s.respondReviewState(w, taskID)
}

func (s *Server) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := s.engine.BulkApprove(taskID); err != nil {
		respondReviewError(w, err)
		return
	}
	s.respondReviewState(w, taskID)
}

func (s *Server) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := s.engine.BulkReject(taskID); err != nil {
		respondReviewError(w, err)
		return
	}
	s.respondReviewState(w, taskID)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := s.engine.Execute(taskID); err != nil {
		respondReviewError(w, err)
		return
	}
	s.respondReviewState(w, taskID)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := s.store.Get(taskID); err != nil {
		respondReviewError(w, err)
		return
	}
	if err := s.commands.UndoTask(r.Context(), taskID); err != nil {
		s.store.RecordCommand("undo_task", taskID, commandStatusFor(err), err.Error())
		respondError(w, http.StatusBadGateway, "undo_failed", err.Error())
		return
	}
	s.store.RecordCommand("undo_task", taskID, task.CommandSent, "")
	s.respondReviewState(w, taskID)
}

func (s *Server) handlePendingConfirmation(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"confirmation": s.engine.Pending(),
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, _ *http.Request) {
	pending := s.engine.Pending()
	if pending == nil {
		respondReviewError(w, review.ErrNoConfirmation)
		return
	}
	if err := s.engine.Confirm(); err != nil {
		respondReviewError(w, err)
		return
	}
	s.respondReviewState(w, pending.TaskID)
}

func (s *Server) handleCancelConfirm(w http.ResponseWriter, _ *http.Request) {
	s.engine.Cancel()
	respondJSON(w, http.StatusOK, map[string]any{"confirmation": nil})
}

func (s *Server) taskFromPath(w http.ResponseWriter, r *http.Request) (task.Task, bool) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return task.Task{}, false
	}
	t, err := s.store.Get(taskID)
	if err != nil {
		respondError(w, http.StatusNotFound, "task_not_found", err.Error())
		return task.Task{}, false
	}
	return t, true
}

// respondReviewState returns the task snapshot plus whatever confirmation is
// now pending, so the shell can render the modal in one round trip.
func (s *Server) respondReviewState(w http.ResponseWriter, taskID string) {
	t, err := s.store.Get(taskID)
	if err != nil {
		respondReviewError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"task":         t,
		"confirmation": s.engine.Pending(),
	})
}

func respondReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "task_not_found", err.Error())
	case errors.Is(err, task.ErrOperationNotFound):
		respondError(w, http.StatusNotFound, "operation_not_found", err.Error())
	case errors.Is(err, task.ErrNoPlan):
		respondError(w, http.StatusConflict, "no_plan", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "review_failed", err.Error())
	}
}

func commandStatusFor(err error) task.CommandStatus {
	var apiErr *command.APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable {
		return task.CommandAbandoned
	}
	return task.CommandFailed
}
