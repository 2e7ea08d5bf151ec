package task

import "time"

type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StatePlanning  State = "planning"
	StateReview    State = "review"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type Mode string

const (
	ModeOrganize   Mode = "organize"
	ModeCleanup    Mode = "cleanup"
	ModeMediaSort  Mode = "media-sort"
	ModeSafeDelete Mode = "safe-delete"
	ModeCustom     Mode = "custom"
)

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
)

type OperationType string

const (
	OpMove   OperationType = "move"
	OpDelete OperationType = "delete"
	OpRename OperationType = "rename"
	OpCreate OperationType = "create"
)

type OperationStatus string

const (
	OpStatusPending  OperationStatus = "pending"
	OpStatusApproved OperationStatus = "approved"
	OpStatusRejected OperationStatus = "rejected"
)

// Task is one user-initiated unit of scan/plan/review/execute work mirrored
// from the backend.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Mode        Mode       `json:"mode"`
	State       State      `json:"state"`
	Progress    int        `json:"progress"`
	Logs        []LogEntry `json:"logs"`
	Plan        *Plan      `json:"plan,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type LogEntry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

type Plan struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	Operations []FileOperation `json:"operations"`
	TotalFiles int             `json:"total_files"`
	CreatedAt  time.Time       `json:"created_at"`
}

type FileOperation struct {
	ID          string          `json:"id"`
	Type        OperationType   `json:"type"`
	Source      string          `json:"source"`
	Destination string          `json:"destination,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Status      OperationStatus `json:"status"`
	Size        int64           `json:"size,omitempty"`
}

type Result struct {
	Success        bool     `json:"success"`
	FilesProcessed int      `json:"files_processed"`
	Errors         []string `json:"errors,omitempty"`
	Duration       string   `json:"duration,omitempty"`
}

type CommandStatus string

const (
	CommandSent      CommandStatus = "sent"
	CommandFailed    CommandStatus = "failed"
	CommandAbandoned CommandStatus = "abandoned"
)

// CommandRecord is the observable trace of an outbound command. Failed
// commands land here instead of disappearing into a log line; the optimistic
// mutation that preceded them is kept as-is.
type CommandRecord struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	TaskID string        `json:"task_id,omitempty"`
	Status CommandStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
	At     time.Time     `json:"at"`
}

func (t Task) Clone() Task {
	out := t
	if t.Logs != nil {
		out.Logs = make([]LogEntry, len(t.Logs))
		copy(out.Logs, t.Logs)
	}
	if t.Plan != nil {
		out.Plan = t.Plan.Clone()
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.Errors != nil {
			r.Errors = make([]string, len(t.Result.Errors))
			copy(r.Errors, t.Result.Errors)
		}
		out.Result = &r
	}
	return out
}

func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Operations != nil {
		cp.Operations = make([]FileOperation, len(p.Operations))
		copy(cp.Operations, p.Operations)
	}
	return &cp
}

func (t Task) Terminal() bool {
	return t.State.Terminal()
}

func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}
