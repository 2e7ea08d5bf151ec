// Package review applies user decisions to a task's proposed file
// operations. Destructive operations never reach approved without an
// explicit confirmation; that gate lives here, not in callers.
package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelhq/sentinel-sync/internal/command"
	"github.com/sentinelhq/sentinel-sync/internal/observability"
	"github.com/sentinelhq/sentinel-sync/internal/task"
)

var ErrNoConfirmation = errors.New("no confirmation pending")

// Confirmation identifies the delete operation awaiting a yes/no decision,
// with a human-readable label so the caller can render the prompt.
type Confirmation struct {
	TaskID string `json:"task_id"`
	OpID   string `json:"op_id"`
	Label  string `json:"label"`
}

type Engine struct {
	store    *task.Store
	commands *command.Client
	metrics  *observability.Metrics
	log      zerolog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	pending *Confirmation
}

func New(store *task.Store, commands *command.Client, metrics *observability.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		commands: commands,
		metrics:  metrics,
		log:      log.With().Str("component", "review").Logger(),
		timeout:  30 * time.Second,
	}
}

// Approve approves one operation. A delete that is not already approved
// raises a confirmation instead of mutating; any other type is approved
// immediately.
func (e *Engine) Approve(taskID, opID string) error {
	op, err := e.findOp(taskID, opID)
	if err != nil {
		return err
	}
	if op.Type == task.OpDelete && op.Status != task.OpStatusApproved {
		e.setPending(&Confirmation{TaskID: taskID, OpID: opID, Label: op.Source})
		return nil
	}
	e.observe("approve")
	return e.store.SetOperationStatus(taskID, opID, task.OpStatusApproved)
}

// Reject rejects one operation immediately; rejection never needs
// confirmation.
func (e *Engine) Reject(taskID, opID string) error {
	if _, err := e.findOp(taskID, opID); err != nil {
		return err
	}
	e.observe("reject")
	return e.store.SetOperationStatus(taskID, opID, task.OpStatusRejected)
}

// BulkApprove approves every pending operation in one step, unless the plan
// still holds a pending delete. In that case nothing is approved yet: a
// confirmation is raised for the first pending delete in plan order, and
// confirming approves exactly that one operation, leaving the rest pending.
// The asymmetry is long-observed behavior the desktop shell depends on.
func (e *Engine) BulkApprove(taskID string) error {
	t, err := e.store.Get(taskID)
	if err != nil {
		return err
	}
	if t.Plan == nil {
		return task.ErrNoPlan
	}

	for _, op := range t.Plan.Operations {
		if op.Type == task.OpDelete && op.Status == task.OpStatusPending {
			e.setPending(&Confirmation{TaskID: taskID, OpID: op.ID, Label: op.Source})
			e.observe("bulk-approve")
			return nil
		}
	}

	changed, err := e.store.SetAllPending(taskID, task.OpStatusApproved)
	if err != nil {
		return err
	}
	e.observe("bulk-approve")
	if changed > 0 {
		e.runCommand("approve_plan", taskID, func(ctx context.Context) error {
			return e.commands.ApprovePlan(ctx, taskID)
		})
	}
	return nil
}

// BulkReject rejects every pending operation unconditionally.
func (e *Engine) BulkReject(taskID string) error {
	_, err := e.store.SetAllPending(taskID, task.OpStatusRejected)
	if err != nil {
		return err
	}
	e.observe("bulk-reject")
	return nil
}

// Execute asks the backend to run the plan. It is inert unless at least one
// operation is approved.
func (e *Engine) Execute(taskID string) error {
	t, err := e.store.Get(taskID)
	if err != nil {
		return err
	}
	if t.Plan == nil {
		return task.ErrNoPlan
	}
	approved := false
	for _, op := range t.Plan.Operations {
		if op.Status == task.OpStatusApproved {
			approved = true
			break
		}
	}
	if !approved {
		e.log.Debug().Str("task_id", taskID).Msg("execute ignored: no approved operations")
		return nil
	}
	e.runCommand("execute_task", taskID, func(ctx context.Context) error {
		return e.commands.ExecuteTask(ctx, taskID)
	})
	return nil
}

// Pending returns a copy of the confirmation currently awaiting a decision,
// or nil.
func (e *Engine) Pending() *Confirmation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	c := *e.pending
	return &c
}

// Confirm resolves the pending confirmation by approving exactly the flagged
// operation.
func (e *Engine) Confirm() error {
	e.mu.Lock()
	c := e.pending
	e.pending = nil
	e.mu.Unlock()

	if c == nil {
		return ErrNoConfirmation
	}
	e.observe("confirm")
	return e.store.SetOperationStatus(c.TaskID, c.OpID, task.OpStatusApproved)
}

// Cancel discards the pending confirmation with no state change.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
	e.observe("cancel")
}

func (e *Engine) findOp(taskID, opID string) (task.FileOperation, error) {
	t, err := e.store.Get(taskID)
	if err != nil {
		return task.FileOperation{}, err
	}
	if t.Plan == nil {
		return task.FileOperation{}, task.ErrNoPlan
	}
	for _, op := range t.Plan.Operations {
		if op.ID == opID {
			return op, nil
		}
	}
	return task.FileOperation{}, task.ErrOperationNotFound
}

func (e *Engine) setPending(c *Confirmation) {
	e.mu.Lock()
	e.pending = c
	e.mu.Unlock()
}

// runCommand issues an outbound command asynchronously. Failures become
// command records in the store; the optimistic mutation that preceded the
// command is kept as-is either way.
func (e *Engine) runCommand(name, taskID string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		err := fn(ctx)
		if err == nil {
			e.store.RecordCommand(name, taskID, task.CommandSent, "")
			return
		}

		if e.metrics != nil {
			e.metrics.CommandFailures.WithLabelValues(name).Inc()
		}
		status := task.CommandFailed
		var apiErr *command.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable {
			status = task.CommandAbandoned
		}
		e.store.RecordCommand(name, taskID, status, err.Error())
	}()
}

func (e *Engine) observe(action string) {
	if e.metrics != nil {
		e.metrics.ReviewDecisions.WithLabelValues(action).Inc()
	}
}
