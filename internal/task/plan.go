package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentinelhq/sentinel-sync/internal/protocol"
)

// planFromPayload normalizes a backend plan payload into the reviewable
// form. Operations missing an id get a positional one, operations missing a
// status start pending, and both historical spellings of the path fields are
// accepted. Without this the review controls would have nothing to act on.
func planFromPayload(taskID string, p protocol.PlanPayload, now time.Time) *Plan {
	plan := &Plan{
		ID:         strings.TrimSpace(p.ID),
		TaskID:     taskID,
		TotalFiles: p.TotalFiles,
		CreatedAt:  now,
		Operations: make([]FileOperation, 0, len(p.Operations)),
	}
	if plan.ID == "" {
		plan.ID = "plan-" + taskID
	}

	for i, op := range p.Operations {
		id := strings.TrimSpace(op.ID)
		if id == "" {
			// Positional ids can collide if the backend re-sends a reordered
			// plan; a replacement plan overwrites the prior one wholesale, so
			// collisions never cross plan versions inside the store.
			id = fmt.Sprintf("op-%d", i)
		}
		status := OperationStatus(strings.TrimSpace(op.Status))
		switch status {
		case OpStatusPending, OpStatusApproved, OpStatusRejected:
		default:
			status = OpStatusPending
		}
		source := op.Source
		if source == "" {
			source = op.Src
		}
		destination := op.Destination
		if destination == "" {
			destination = op.Dest
		}
		plan.Operations = append(plan.Operations, FileOperation{
			ID:          id,
			Type:        OperationType(strings.TrimSpace(op.Type)),
			Source:      source,
			Destination: destination,
			Reason:      op.Reason,
			Status:      status,
			Size:        op.Size,
		})
	}
	return plan
}
