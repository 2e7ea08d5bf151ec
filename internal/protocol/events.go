// Package protocol decodes the backend's websocket event stream into one
// canonical event shape. The backend has shipped several generations of
// event-type tags; all of them normalize here so the rest of the client
// only ever sees the canonical kinds.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a canonical event after tag normalization.
type Kind string

const (
	KindConnectionAck      Kind = "connection-ack"
	KindHeartbeat          Kind = "heartbeat"
	KindTaskStarted        Kind = "task-started"
	KindScanProgress       Kind = "scan-progress"
	KindPlanReady          Kind = "plan-ready"
	KindWaitingForApproval Kind = "waiting-for-approval"
	KindExecutionProgress  Kind = "execution-progress"
	KindTaskCompleted      Kind = "task-completed"
	KindTaskFailed         Kind = "task-failed"
	KindUnknown            Kind = "unknown"
)

// Envelope is the raw wire shape: {event_type, task_id?, timestamp, message?, data}.
type Envelope struct {
	EventType string          `json:"event_type"`
	TaskID    string          `json:"task_id,omitempty"`
	Timestamp string          `json:"timestamp"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Event is the canonical internal event. Exactly one of the typed payload
// pointers is set, matching Kind; everything else is nil.
type Event struct {
	Kind      Kind
	Tag       string // original wire tag, kept for logging
	TaskID    string
	Timestamp time.Time
	Message   string

	Scan    *ScanProgressData
	Plan    *PlanData
	Exec    *ExecProgressData
	Result  *ResultData
	Failure *FailureData
}

type ScanProgressData struct {
	Progress     int    `json:"progress"`
	FilesScanned int    `json:"files_scanned"`
	CurrentFile  string `json:"current_file"`
}

type PlanData struct {
	Plan PlanPayload `json:"plan"`
}

type PlanPayload struct {
	ID         string             `json:"id"`
	Operations []OperationPayload `json:"operations"`
	TotalFiles int                `json:"total_files"`
}

// OperationPayload tolerates both field-name spellings the backend has used
// for paths. Normalize resolves them.
type OperationPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	Src         string `json:"src"`
	Destination string `json:"destination"`
	Dest        string `json:"dest"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
	Size        int64  `json:"size"`
}

type ExecProgressData struct {
	Progress         int    `json:"progress"`
	CurrentOperation string `json:"current_operation"`
	FilesProcessed   int    `json:"files_processed"`
	TotalFiles       int    `json:"total_files"`
	CurrentFile      string `json:"current_file"`
}

type ResultData struct {
	Result struct {
		Success        bool     `json:"success"`
		FilesProcessed int      `json:"files_processed"`
		Errors         []string `json:"errors"`
		Duration       string   `json:"duration"`
	} `json:"result"`
}

type FailureData struct {
	Error string `json:"error"`
}

// kindByTag maps every recognized tag, current and legacy, to its canonical
// kind. Tags are compared after normalizeTag. SCAN_COMPLETE and PLANNING are
// both informational "scan is done, planning underway" updates and fold into
// scan-progress without a state change.
var kindByTag = map[string]Kind{
	"connection-ack":       KindConnectionAck,
	"heartbeat":            KindHeartbeat,
	"task-started":         KindTaskStarted,
	"scanning":             KindTaskStarted,
	"scan-progress":        KindScanProgress,
	"scan-complete":        KindScanProgress,
	"planning":             KindScanProgress,
	"plan-ready":           KindPlanReady,
	"waiting-for-approval": KindWaitingForApproval,
	"safety-check":         KindWaitingForApproval,
	"execution-progress":   KindExecutionProgress,
	"executing":            KindExecutionProgress,
	"progress":             KindExecutionProgress,
	"task-completed":       KindTaskCompleted,
	"complete":             KindTaskCompleted,
	"task-failed":          KindTaskFailed,
	"safety-failed":        KindTaskFailed,
	"failed":               KindTaskFailed,
	"error":                KindTaskFailed,
}

// normalizeTag folds case and separator differences: the current backend
// emits UPPER_SNAKE tags, older builds emitted kebab-case.
func normalizeTag(tag string) string {
	tag = strings.TrimSpace(strings.ToLower(tag))
	return strings.ReplaceAll(tag, "_", "-")
}

// Parse decodes one wire frame into a canonical Event. A decode failure of
// the envelope is an error the caller drops; an unrecognized tag is not an
// error, it yields KindUnknown so the caller can warn and move on.
func Parse(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("invalid event envelope: %w", err)
	}

	tag := normalizeTag(env.EventType)
	kind, ok := kindByTag[tag]
	if !ok {
		kind = KindUnknown
	}

	evt := Event{
		Kind:      kind,
		Tag:       env.EventType,
		TaskID:    strings.TrimSpace(env.TaskID),
		Timestamp: parseTimestamp(env.Timestamp),
		Message:   env.Message,
	}

	if len(env.Data) == 0 {
		return evt, nil
	}

	// Payloads are best-effort: a malformed data block degrades to a
	// message-only event rather than dropping the whole frame.
	switch kind {
	case KindScanProgress:
		var d ScanProgressData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			evt.Scan = &d
		}
	case KindPlanReady:
		var d PlanData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			evt.Plan = &d
		}
	case KindExecutionProgress:
		var d ExecProgressData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			evt.Exec = &d
		}
	case KindTaskCompleted:
		var d ResultData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			evt.Result = &d
		}
	case KindTaskFailed:
		var d FailureData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			evt.Failure = &d
		}
	default:
		// connection-ack, heartbeat, task-started, waiting-for-approval and
		// unknown kinds carry no payload the client acts on.
	}

	return evt, nil
}

// parseTimestamp accepts RFC3339 and the naive isoformat the backend emits
// when it serializes UTC datetimes without an offset.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
