package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskTypePrefix prefixes the task type of every forwarded event
const TaskTypePrefix = "purchasing:"

// TaskType returns the task type a consumer registers for eventType
func TaskType(eventType string) string {
	return TaskTypePrefix + eventType
}

// Enqueuer is the part of *asynq.Client the forwarder needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Serializer encodes an event as the task payload
type Serializer interface {
	Serialize(event shared.DomainEvent) ([]byte, error)
}

// ForwarderConfig holds the enqueue options of forwarded events
type ForwarderConfig struct {
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// EventForwarder hands purchase order events to the task queue so other
// back office services can consume them. The task ID is the event ID, so
// delivering the same event twice enqueues it once.
type EventForwarder struct {
	client     Enqueuer
	serializer Serializer
	config     ForwarderConfig
	eventTypes []string
	logger     *zap.Logger
}

// NewEventForwarder creates a forwarder for eventTypes; none means every event
func NewEventForwarder(client Enqueuer, serializer Serializer, config ForwarderConfig, logger *zap.Logger, eventTypes ...string) *EventForwarder {
	return &EventForwarder{
		client:     client,
		serializer: serializer,
		config:     config,
		eventTypes: eventTypes,
		logger:     logger.Named("queue_forwarder"),
	}
}

// EventTypes returns the forwarded event types
func (f *EventForwarder) EventTypes() []string {
	return f.eventTypes
}

// Handle enqueues event. A task already enqueued for the event counts as success.
func (f *EventForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := f.serializer.Serialize(event)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.TaskID(event.EventID().String())}
	if f.config.Queue != "" {
		opts = append(opts, asynq.Queue(f.config.Queue))
	}
	if f.config.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(f.config.MaxRetry))
	}
	if f.config.Retention > 0 {
		opts = append(opts, asynq.Retention(f.config.Retention))
	}

	info, err := f.client.EnqueueContext(ctx, asynq.NewTask(TaskType(event.EventType()), payload), opts...)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict):
		f.logger.Debug("Event already enqueued", zap.String("event_id", event.EventID().String()))
		return nil
	case err != nil:
		return fmt.Errorf("failed to enqueue %s event: %w", event.EventType(), err)
	}

	f.logger.Debug("Event enqueued",
		zap.String("event_id", event.EventID().String()),
		zap.String("task_type", info.Type),
		zap.String("queue", info.Queue),
	)
	return nil
}

var _ shared.EventHandler = (*EventForwarder)(nil)
