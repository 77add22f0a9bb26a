package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PurchasingMetrics tracks the purchase order lifecycle: creations,
// transitions, receptions, returns, conflicts and idempotent replays.
type PurchasingMetrics struct {
	logger *zap.Logger

	createdTotal    *Counter
	transitionTotal *Counter
	receptionTotal  *Counter
	returnTotal     *Counter
	conflictTotal   *Counter
	replayTotal     *Counter
	commandDuration *Histogram
	ordersByStatus  *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// StatusCountFunc returns the number of orders per status
type StatusCountFunc func(ctx context.Context) (map[string]int64, error)

// NewPurchasingMetrics creates the purchasing instruments on meter.
func NewPurchasingMetrics(meter metric.Meter, logger *zap.Logger) (*PurchasingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PurchasingMetrics{logger: logger, stopChan: make(chan struct{})}

	var err error
	counters := []struct {
		target **Counter
		name   string
		desc   string
		unit   string
	}{
		{&pm.createdTotal, "bakery_po_created_total", "Purchase orders created", "{orders}"},
		{&pm.transitionTotal, "bakery_po_transition_total", "Purchase order status transitions", "{transitions}"},
		{&pm.receptionTotal, "bakery_po_reception_total", "Item receptions recorded", "{receptions}"},
		{&pm.returnTotal, "bakery_po_return_total", "Item returns recorded", "{returns}"},
		{&pm.conflictTotal, "bakery_po_conflict_total", "Stale writes detected on purchase orders", "{conflicts}"},
		{&pm.replayTotal, "bakery_po_idempotent_replay_total", "Commands answered from an already applied idempotency key", "{commands}"},
	}
	for _, c := range counters {
		if *c.target, err = NewCounter(meter, c.name, c.desc, c.unit); err != nil {
			return nil, err
		}
	}

	pm.commandDuration, err = NewHistogram(meter, "bakery_po_command_duration_seconds",
		"Duration of purchase order commands", "s", CommandDurationBuckets...)
	if err != nil {
		return nil, err
	}

	pm.ordersByStatus, err = NewGauge(meter, "bakery_po_orders", "Purchase orders per status", "{orders}")
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// RecordCreated counts a new order
func (pm *PurchasingMetrics) RecordCreated(ctx context.Context) {
	pm.createdTotal.Inc(ctx)
}

// RecordTransition counts a status change
func (pm *PurchasingMetrics) RecordTransition(ctx context.Context, from, to string) {
	pm.transitionTotal.Inc(ctx, AttrFromStatus.String(from), AttrStatus.String(to))
}

// RecordReception counts a delivery by the reception status it produced
func (pm *PurchasingMetrics) RecordReception(ctx context.Context, reception string) {
	pm.receptionTotal.Inc(ctx, AttrOutcome.String(reception))
}

// RecordReturn counts a return by reason
func (pm *PurchasingMetrics) RecordReturn(ctx context.Context, reason string) {
	pm.returnTotal.Inc(ctx, AttrReturnReason.String(reason))
}

// RecordConflict counts a stale write. exhausted is true when retries ran out.
func (pm *PurchasingMetrics) RecordConflict(ctx context.Context, action string, exhausted bool) {
	outcome := "retried"
	if exhausted {
		outcome = "exhausted"
	}
	pm.conflictTotal.Inc(ctx, AttrAction.String(action), AttrOutcome.String(outcome))
}

// RecordReplay counts a command short-circuited by its idempotency key
func (pm *PurchasingMetrics) RecordReplay(ctx context.Context, action string) {
	pm.replayTotal.Inc(ctx, AttrAction.String(action))
}

// RecordCommand records how long a command took
func (pm *PurchasingMetrics) RecordCommand(ctx context.Context, action string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pm.commandDuration.RecordDuration(ctx, d, AttrAction.String(action), AttrOutcome.String(outcome))
}

// StartPeriodicCollection samples order counts per status every interval
// until Stop is called or ctx ends. Non-blocking.
func (pm *PurchasingMetrics) StartPeriodicCollection(ctx context.Context, counts StatusCountFunc, interval time.Duration) {
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go pm.runPeriodicCollection(ctx, counts, interval)
	})
}

func (pm *PurchasingMetrics) runPeriodicCollection(ctx context.Context, counts StatusCountFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.collectStatusCounts(ctx, counts)

	for {
		select {
		case <-pm.stopChan:
			pm.logger.Info("Stopping periodic purchasing metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.collectStatusCounts(ctx, counts)
		}
	}
}

func (pm *PurchasingMetrics) collectStatusCounts(ctx context.Context, counts StatusCountFunc) {
	byStatus, err := counts(ctx)
	if err != nil {
		pm.logger.Warn("Failed to count purchase orders by status", zap.Error(err))
		return
	}
	for status, n := range byStatus {
		pm.ordersByStatus.Record(ctx, n, AttrStatus.String(status))
	}
}

// Stop stops the periodic collection.
func (pm *PurchasingMetrics) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPurchasingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
