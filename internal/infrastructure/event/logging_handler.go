package event

import (
	"context"

	"github.com/bakery/backoffice/internal/domain/shared"
	"go.uber.org/zap"
)

// LoggingHandler writes one log line per delivered event
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a handler that logs every event
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.Named("events")}
}

func (h *LoggingHandler) EventTypes() []string { return nil }

func (h *LoggingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.logger.Info("Purchasing event",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	)
	return nil
}
