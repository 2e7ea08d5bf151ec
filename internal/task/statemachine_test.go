package task

import (
	"testing"

	"github.com/sentinelhq/sentinel-sync/internal/protocol"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		name   string
		cur    State
		kind   protocol.Kind
		want   State
		drives bool
	}{
		{"planning task-started", StatePlanning, protocol.KindTaskStarted, StateScanning, true},
		{"scanning scan-progress stays", StateScanning, protocol.KindScanProgress, StateScanning, true},
		{"scanning plan-ready", StateScanning, protocol.KindPlanReady, StateReview, true},
		{"review waiting-for-approval stays review", StateReview, protocol.KindWaitingForApproval, StateReview, true},
		{"review execution-progress", StateReview, protocol.KindExecutionProgress, StateExecuting, true},
		{"executing task-completed", StateExecuting, protocol.KindTaskCompleted, StateCompleted, true},
		{"executing task-failed", StateExecuting, protocol.KindTaskFailed, StateFailed, true},
		{"heartbeat does not drive", StateScanning, protocol.KindHeartbeat, StateScanning, false},
		{"connection-ack does not drive", StatePlanning, protocol.KindConnectionAck, StatePlanning, false},
		{"unknown does not drive", StateExecuting, protocol.KindUnknown, StateExecuting, false},
	}
	for _, tc := range cases {
		got, drives := Next(tc.cur, tc.kind)
		if got != tc.want || drives != tc.drives {
			t.Errorf("%s: Next(%q, %q) = (%q, %v), want (%q, %v)", tc.name, tc.cur, tc.kind, got, drives, tc.want, tc.drives)
		}
	}
}

func TestNextTerminalAbsorbs(t *testing.T) {
	kinds := []protocol.Kind{
		protocol.KindTaskStarted,
		protocol.KindScanProgress,
		protocol.KindPlanReady,
		protocol.KindExecutionProgress,
		protocol.KindTaskCompleted,
		protocol.KindTaskFailed,
	}
	for _, cur := range []State{StateCompleted, StateFailed} {
		for _, kind := range kinds {
			got, drives := Next(cur, kind)
			if got != cur || drives {
				t.Errorf("Next(%q, %q) = (%q, %v), want terminal state unchanged", cur, kind, got, drives)
			}
		}
	}
}

func TestLevelFor(t *testing.T) {
	if got := LevelFor(protocol.KindTaskCompleted); got != LogLevelSuccess {
		t.Fatalf("LevelFor(task-completed) = %q, want %q", got, LogLevelSuccess)
	}
	if got := LevelFor(protocol.KindTaskFailed); got != LogLevelError {
		t.Fatalf("LevelFor(task-failed) = %q, want %q", got, LogLevelError)
	}
	if got := LevelFor(protocol.KindScanProgress); got != LogLevelInfo {
		t.Fatalf("LevelFor(scan-progress) = %q, want %q", got, LogLevelInfo)
	}
}
