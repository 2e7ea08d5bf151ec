package protocol

import (
	"testing"
	"time"
)

func TestParseCanonicalTags(t *testing.T) {
	cases := []struct {
		tag  string
		want Kind
	}{
		{"connection-ack", KindConnectionAck},
		{"heartbeat", KindHeartbeat},
		{"task-started", KindTaskStarted},
		{"scan-progress", KindScanProgress},
		{"plan-ready", KindPlanReady},
		{"waiting-for-approval", KindWaitingForApproval},
		{"execution-progress", KindExecutionProgress},
		{"task-completed", KindTaskCompleted},
		{"task-failed", KindTaskFailed},
	}
	for _, tc := range cases {
		evt, err := Parse([]byte(`{"event_type":"` + tc.tag + `","task_id":"t1","timestamp":"2026-02-09T11:30:00Z"}`))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.tag, err)
		}
		if evt.Kind != tc.want {
			t.Fatalf("Parse(%q).Kind = %q, want %q", tc.tag, evt.Kind, tc.want)
		}
	}
}

func TestParseLegacyAndUpperSnakeTags(t *testing.T) {
	cases := []struct {
		tag  string
		want Kind
	}{
		{"TASK_STARTED", KindTaskStarted},
		{"SCANNING", KindTaskStarted},
		{"SCAN_COMPLETE", KindScanProgress},
		{"PLANNING", KindScanProgress},
		{"PLAN_READY", KindPlanReady},
		{"SAFETY_CHECK", KindWaitingForApproval},
		{"EXECUTING", KindExecutionProgress},
		{"PROGRESS", KindExecutionProgress},
		{"COMPLETE", KindTaskCompleted},
		{"FAILED", KindTaskFailed},
		{"ERROR", KindTaskFailed},
		{"SAFETY_FAILED", KindTaskFailed},
		{"CONNECTION_ACK", KindConnectionAck},
		{"HEARTBEAT", KindHeartbeat},
	}
	for _, tc := range cases {
		evt, err := Parse([]byte(`{"event_type":"` + tc.tag + `","timestamp":"2026-02-09T11:30:00Z"}`))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.tag, err)
		}
		if evt.Kind != tc.want {
			t.Fatalf("Parse(%q).Kind = %q, want %q", tc.tag, evt.Kind, tc.want)
		}
		if evt.Tag != tc.tag {
			t.Fatalf("Parse(%q).Tag = %q, want original tag", tc.tag, evt.Tag)
		}
	}
}

func TestParseUnknownTagIsNotAnError(t *testing.T) {
	evt, err := Parse([]byte(`{"event_type":"SHINY_NEW_THING","task_id":"t1","timestamp":"2026-02-09T11:30:00Z"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil for unknown tag", err)
	}
	if evt.Kind != KindUnknown {
		t.Fatalf("Kind = %q, want %q", evt.Kind, KindUnknown)
	}
}

func TestParseMalformedEnvelope(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Fatalf("Parse() error = nil, want envelope error")
	}
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2026, 2, 9, 11, 30, 0, 0, time.UTC)
	for _, ts := range []string{"2026-02-09T11:30:00Z", "2026-02-09T11:30:00"} {
		evt, err := Parse([]byte(`{"event_type":"heartbeat","timestamp":"` + ts + `"}`))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if !evt.Timestamp.Equal(want) {
			t.Fatalf("Timestamp = %v, want %v", evt.Timestamp, want)
		}
	}
}

func TestParseFailurePayload(t *testing.T) {
	evt, err := Parse([]byte(`{"event_type":"task-failed","task_id":"t1","timestamp":"2026-02-09T11:30:00Z","data":{"error":"disk full"}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if evt.Failure == nil || evt.Failure.Error != "disk full" {
		t.Fatalf("Failure = %+v, want error detail", evt.Failure)
	}
}

func TestParsePlanPayload(t *testing.T) {
	raw := `{"event_type":"PLAN_READY","task_id":"t1","timestamp":"2026-02-09T11:30:00Z","data":{"plan":{"id":"plan-1","total_files":2,"operations":[{"type":"move","src":"/a","dest":"/b"},{"type":"delete","source":"/c"}]}}}`
	evt, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if evt.Plan == nil {
		t.Fatalf("Plan payload missing")
	}
	if len(evt.Plan.Plan.Operations) != 2 {
		t.Fatalf("operations = %d, want 2", len(evt.Plan.Plan.Operations))
	}
	if evt.Plan.Plan.Operations[0].Src != "/a" || evt.Plan.Plan.Operations[0].Dest != "/b" {
		t.Fatalf("alternate path spellings not decoded: %+v", evt.Plan.Plan.Operations[0])
	}
}

func TestParseExecProgressPayload(t *testing.T) {
	raw := `{"event_type":"execution-progress","task_id":"t1","timestamp":"2026-02-09T11:30:00Z","data":{"progress":40,"files_processed":2,"total_files":5}}`
	evt, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if evt.Exec == nil || evt.Exec.Progress != 40 {
		t.Fatalf("Exec = %+v, want progress 40", evt.Exec)
	}
}
