package http

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/logging"
	"github.com/fyrsmithlabs/ideabank/internal/run"
)

// EventPublisher mirrors run events to NATS so external consumers can
// multiplex progress across runs without going through the SSE
// endpoint. Subjects follow runs.<run_id>.<event_type>.
type EventPublisher struct {
	nc     *nats.Conn
	logger *logging.Logger
}

// NewEventPublisher creates an EventPublisher. A nil connection
// disables publishing.
func NewEventPublisher(nc *nats.Conn, logger *logging.Logger) *EventPublisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EventPublisher{nc: nc, logger: logger.Named("events")}
}

// Publish mirrors one event. Publish failures are logged, never
// propagated: the SSE stream stays authoritative.
func (p *EventPublisher) Publish(runID string, e run.Event) {
	if p == nil || p.nc == nil {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn(context.Background(), "marshaling run event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("runs.%s.%s", runID, e.Type)
	if err := p.nc.Publish(subject, payload); err != nil {
		p.logger.Warn(context.Background(), "publishing run event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
