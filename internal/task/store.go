package task

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sentinelhq/sentinel-sync/internal/protocol"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrOperationNotFound = errors.New("operation not found")
	ErrNoPlan            = errors.New("task has no plan")
	ErrInvalidOpStatus   = errors.New("invalid operation status")
)

type ChangeKind string

const (
	ChangeTaskCreated     ChangeKind = "task-created"
	ChangeTaskUpdated     ChangeKind = "task-updated"
	ChangeCommandRecorded ChangeKind = "command-recorded"
)

// Change is what subscribers observe. Task is always a snapshot; mutable
// references never leave the store.
type Change struct {
	Kind    ChangeKind
	TaskID  string
	Task    *Task
	Command *CommandRecord
}

// Store owns every mirrored task for the session. It is the only place
// mutations are committed: the event dispatcher, the review engine, and
// command completions all funnel through its methods, serialized by one
// lock. Tasks accumulate for the session and are never deleted.
type Store struct {
	mu sync.RWMutex

	tasks    map[string]*Task
	order    []string
	activeID string
	commands []CommandRecord

	subscribers map[int]chan Change
	nextSubID   int

	log zerolog.Logger
}

func NewStore(log zerolog.Logger) *Store {
	return &Store{
		tasks:       make(map[string]*Task),
		subscribers: make(map[int]chan Change),
		log:         log.With().Str("component", "store").Logger(),
	}
}

func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 64)
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

// CreateTask registers a new client-initiated task. It starts in planning:
// the backend's first event arrives only after the plan request has been
// issued, so there is no observable idle or scanning phase on creation.
//
// id is the backend-assigned task id when the plan request already returned
// one; empty means generate a local id (stream events can then never match
// this task, which is fine for purely local entries).
func (s *Store) CreateTask(id, description string, mode Mode) Task {
	now := time.Now().UTC()
	if id = strings.TrimSpace(id); id == "" {
		id = uuid.NewString()
	}
	t := &Task{
		ID:          id,
		Description: strings.TrimSpace(description),
		Mode:        mode,
		State:       StatePlanning,
		CreatedAt:   now,
		UpdatedAt:   now,
		Logs: []LogEntry{{
			ID:        uuid.NewString(),
			Message:   "Task created: " + strings.TrimSpace(description),
			Level:     LogLevelInfo,
			Timestamp: now,
		}},
	}

	s.mu.Lock()
	if existing, ok := s.tasks[id]; ok {
		out := existing.Clone()
		s.mu.Unlock()
		return out
	}
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	s.activeID = t.ID
	s.publishLocked(Change{Kind: ChangeTaskCreated, TaskID: t.ID, Task: snapshot(t)})
	s.mu.Unlock()

	return t.Clone()
}

// ApplyEvent commits one canonical stream event. Terminal tasks absorb
// everything silently; the backend can keep emitting progress frames after a
// failure without corrupting the mirror.
func (s *Store) ApplyEvent(evt protocol.Event) (Task, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[evt.TaskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if t.Terminal() {
		return t.Clone(), nil
	}

	next, drives := Next(t.State, evt.Kind)
	if !drives {
		return t.Clone(), nil
	}
	t.State = next
	t.UpdatedAt = now

	switch evt.Kind {
	case protocol.KindPlanReady:
		if evt.Plan != nil {
			t.Plan = planFromPayload(t.ID, evt.Plan.Plan, now)
		}
	case protocol.KindExecutionProgress:
		if evt.Exec != nil {
			t.Progress = clampProgress(evt.Exec.Progress)
		}
	case protocol.KindTaskCompleted:
		t.Progress = 100
		if evt.Result != nil {
			t.Result = &Result{
				Success:        evt.Result.Result.Success,
				FilesProcessed: evt.Result.Result.FilesProcessed,
				Errors:         evt.Result.Result.Errors,
				Duration:       evt.Result.Result.Duration,
			}
		} else {
			t.Result = &Result{Success: true}
		}
	case protocol.KindTaskFailed:
		if t.Result == nil {
			t.Result = &Result{Success: false}
		}
		if evt.Failure != nil && evt.Failure.Error != "" {
			t.Result.Errors = append(t.Result.Errors, evt.Failure.Error)
		}
	}

	t.Logs = append(t.Logs, LogEntry{
		ID:        uuid.NewString(),
		Message:   logMessage(evt),
		Level:     LevelFor(evt.Kind),
		Timestamp: evt.Timestamp,
	})

	s.publishLocked(Change{Kind: ChangeTaskUpdated, TaskID: t.ID, Task: snapshot(t)})
	return t.Clone(), nil
}

func (s *Store) Get(taskID string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// List returns session tasks in creation order.
func (s *Store) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *Store) Active() (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return Task{}, ErrTaskNotFound
	}
	t, ok := s.tasks[s.activeID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (s *Store) SetActive(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return ErrTaskNotFound
	}
	s.activeID = taskID
	return nil
}

func (s *Store) AppendLog(taskID string, level LogLevel, message string) error {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.Logs = append(t.Logs, LogEntry{
		ID:        uuid.NewString(),
		Message:   message,
		Level:     level,
		Timestamp: now,
	})
	t.UpdatedAt = now
	s.publishLocked(Change{Kind: ChangeTaskUpdated, TaskID: t.ID, Task: snapshot(t)})
	return nil
}

// SetOperationStatus moves one reviewed operation to approved or rejected.
// Both are re-revisable toward the other; resetting to pending is refused so
// a decision is never silently undone.
func (s *Store) SetOperationStatus(taskID, opID string, status OperationStatus) error {
	if status != OpStatusApproved && status != OpStatusRejected {
		return ErrInvalidOpStatus
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Plan == nil {
		return ErrNoPlan
	}
	for i := range t.Plan.Operations {
		if t.Plan.Operations[i].ID != opID {
			continue
		}
		t.Plan.Operations[i].Status = status
		t.UpdatedAt = now
		s.publishLocked(Change{Kind: ChangeTaskUpdated, TaskID: t.ID, Task: snapshot(t)})
		return nil
	}
	return ErrOperationNotFound
}

// SetAllPending rewrites every pending operation to the given status in one
// commit and reports how many changed.
func (s *Store) SetAllPending(taskID string, status OperationStatus) (int, error) {
	if status != OpStatusApproved && status != OpStatusRejected {
		return 0, ErrInvalidOpStatus
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return 0, ErrTaskNotFound
	}
	if t.Plan == nil {
		return 0, ErrNoPlan
	}
	changed := 0
	for i := range t.Plan.Operations {
		if t.Plan.Operations[i].Status == OpStatusPending {
			t.Plan.Operations[i].Status = status
			changed++
		}
	}
	if changed > 0 {
		t.UpdatedAt = now
		s.publishLocked(Change{Kind: ChangeTaskUpdated, TaskID: t.ID, Task: snapshot(t)})
	}
	return changed, nil
}

// RecordCommand appends one outbound-command trace. Failures recorded here
// are the observable residue of the fire-and-forget command path.
func (s *Store) RecordCommand(name, taskID string, status CommandStatus, detail string) CommandRecord {
	rec := CommandRecord{
		ID:     uuid.NewString(),
		Name:   name,
		TaskID: taskID,
		Status: status,
		Detail: detail,
		At:     time.Now().UTC(),
	}
	s.mu.Lock()
	s.commands = append(s.commands, rec)
	s.publishLocked(Change{Kind: ChangeCommandRecorded, TaskID: taskID, Command: &rec})
	s.mu.Unlock()

	if status != CommandSent {
		s.log.Warn().Str("command", name).Str("task_id", taskID).Str("status", string(status)).Str("detail", detail).Msg("command did not succeed")
	}
	return rec
}

func (s *Store) Commands() []CommandRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CommandRecord, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *Store) publishLocked(change Change) {
	for _, ch := range s.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}

func snapshot(t *Task) *Task {
	c := t.Clone()
	return &c
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// logMessage picks the log-panel line for an event: the wire message when
// present, the failure detail for errors, a fixed label otherwise.
func logMessage(evt protocol.Event) string {
	if evt.Message != "" {
		return evt.Message
	}
	if evt.Kind == protocol.KindTaskFailed && evt.Failure != nil && evt.Failure.Error != "" {
		return "Task failed: " + evt.Failure.Error
	}
	switch evt.Kind {
	case protocol.KindTaskStarted:
		return "Task started"
	case protocol.KindScanProgress:
		return "Scanning..."
	case protocol.KindPlanReady:
		return "Plan ready for review"
	case protocol.KindWaitingForApproval:
		return "Waiting for approval"
	case protocol.KindExecutionProgress:
		return "Executing plan..."
	case protocol.KindTaskCompleted:
		return "Task completed"
	case protocol.KindTaskFailed:
		return "Task failed"
	default:
		return string(evt.Kind)
	}
}
