package task

import "github.com/sentinelhq/sentinel-sync/internal/protocol"

// Next returns the state a task moves to when the given event kind is
// applied. ok is false when the kind does not drive the lifecycle at all
// (heartbeats, acks, unknown kinds). A log-only kind reports the current
// state unchanged with ok true.
//
// Terminal states absorb everything: no event moves a task out of completed
// or failed.
func Next(cur State, kind protocol.Kind) (State, bool) {
	if cur.Terminal() {
		return cur, false
	}
	switch kind {
	case protocol.KindTaskStarted:
		return StateScanning, true
	case protocol.KindScanProgress:
		return cur, true
	case protocol.KindPlanReady:
		return StateReview, true
	case protocol.KindWaitingForApproval:
		return StateReview, true
	case protocol.KindExecutionProgress:
		return StateExecuting, true
	case protocol.KindTaskCompleted:
		return StateCompleted, true
	case protocol.KindTaskFailed:
		return StateFailed, true
	default:
		return cur, false
	}
}

// LevelFor picks the log-panel level for an event by its semantic category:
// completions log success, failures log error, everything else is info.
func LevelFor(kind protocol.Kind) LogLevel {
	switch kind {
	case protocol.KindTaskCompleted:
		return LogLevelSuccess
	case protocol.KindTaskFailed:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}
