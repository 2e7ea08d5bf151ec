// Package dispatch turns raw stream frames into store commits. Messages are
// handled strictly one at a time in arrival order; the stream read loop is
// the only caller.
package dispatch

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/sentinelhq/sentinel-sync/internal/observability"
	"github.com/sentinelhq/sentinel-sync/internal/protocol"
	"github.com/sentinelhq/sentinel-sync/internal/task"
)

type Dispatcher struct {
	store   *task.Store
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(store *task.Store, metrics *observability.Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		metrics: metrics,
		log:     log.With().Str("component", "dispatch").Logger(),
	}
}

// HandleMessage processes one raw frame. Every failure mode here is
// non-fatal: malformed frames and unknown kinds are logged and dropped so
// the stream keeps flowing.
func (d *Dispatcher) HandleMessage(raw []byte) {
	evt, err := protocol.Parse(raw)
	if err != nil {
		d.log.Warn().Err(err).Msg("dropping malformed event")
		if d.metrics != nil {
			d.metrics.EventsDropped.WithLabelValues("malformed").Inc()
		}
		return
	}

	if evt.Kind == protocol.KindUnknown {
		// Forward compatibility: new backend event types are ignored, not fatal.
		d.log.Warn().Str("event_type", evt.Tag).Msg("ignoring unrecognized event type")
		if d.metrics != nil {
			d.metrics.EventsDropped.WithLabelValues("unknown").Inc()
		}
		return
	}

	if d.metrics != nil {
		d.metrics.Events.WithLabelValues(string(evt.Kind)).Inc()
	}

	if evt.TaskID == "" {
		// connection-ack, heartbeat, and any event that names no task are
		// accepted without a task mutation.
		d.log.Debug().Str("kind", string(evt.Kind)).Msg("event without task id")
		return
	}

	if _, err := d.store.ApplyEvent(evt); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			// Tasks are created client-side; an event for an id we never
			// created is another client's task and is skipped.
			d.log.Debug().Str("task_id", evt.TaskID).Str("kind", string(evt.Kind)).Msg("event for unknown task")
			return
		}
		d.log.Warn().Err(err).Str("task_id", evt.TaskID).Msg("event not applied")
	}
}
