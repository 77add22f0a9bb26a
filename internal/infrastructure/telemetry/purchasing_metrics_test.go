package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bakery/backoffice/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newRecordingMetrics(t *testing.T) (*telemetry.PurchasingMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	pm, err := telemetry.NewPurchasingMetrics(provider.Meter("test"), zap.NewNop())
	require.NoError(t, err)
	return pm, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return nil
}

func sumOf(data metricdata.Aggregation) int64 {
	var total int64
	if sum, ok := data.(metricdata.Sum[int64]); ok {
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
	}
	return total
}

func TestNewPurchasingMetrics_NilMeter(t *testing.T) {
	pm, err := telemetry.NewPurchasingMetrics(nil, zap.NewNop())

	require.Error(t, err)
	assert.Nil(t, pm)
	assert.Equal(t, "NewPurchasingMetrics: meter cannot be nil", err.Error())
}

func TestPurchasingMetrics_Noop(t *testing.T) {
	pm, err := telemetry.NewPurchasingMetrics(noop.NewMeterProvider().Meter("test"), nil)
	require.NoError(t, err)

	ctx := context.Background()
	pm.RecordCreated(ctx)
	pm.RecordTransition(ctx, "draft", "sent")
	pm.RecordReception(ctx, "partial")
	pm.RecordReturn(ctx, "damaged")
	pm.RecordConflict(ctx, "receive_item", false)
	pm.RecordReplay(ctx, "receive_item")
	pm.RecordCommand(ctx, "send", time.Millisecond, nil)
}

func TestPurchasingMetrics_Counters(t *testing.T) {
	pm, reader := newRecordingMetrics(t)
	ctx := context.Background()

	pm.RecordCreated(ctx)
	pm.RecordCreated(ctx)
	pm.RecordTransition(ctx, "draft", "sent")
	pm.RecordConflict(ctx, "receive_item", false)
	pm.RecordConflict(ctx, "receive_item", true)

	assert.Equal(t, int64(2), sumOf(collect(t, reader, "bakery_po_created_total")))
	assert.Equal(t, int64(1), sumOf(collect(t, reader, "bakery_po_transition_total")))

	conflicts, ok := collect(t, reader, "bakery_po_conflict_total").(metricdata.Sum[int64])
	require.True(t, ok)
	outcomes := map[string]int64{}
	for _, dp := range conflicts.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		outcomes[v.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"retried": 1, "exhausted": 1}, outcomes)
}

func TestPurchasingMetrics_CommandDuration(t *testing.T) {
	pm, reader := newRecordingMetrics(t)

	pm.RecordCommand(context.Background(), "confirm", 30*time.Millisecond, errors.New("boom"))

	hist, ok := collect(t, reader, "bakery_po_command_duration_seconds").(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	outcome, _ := hist.DataPoints[0].Attributes.Value(attribute.Key("outcome"))
	assert.Equal(t, "error", outcome.AsString())
}

func TestPurchasingMetrics_PeriodicCollection(t *testing.T) {
	pm, reader := newRecordingMetrics(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	pm.StartPeriodicCollection(ctx, func(context.Context) (map[string]int64, error) {
		select {
		case called <- struct{}{}:
		default:
		}
		return map[string]int64{"draft": 3, "sent": 1}, nil
	}, time.Hour)
	defer pm.Stop()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("status counts were not collected")
	}

	require.Eventually(t, func() bool {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			return false
		}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if g, ok := m.Data.(metricdata.Gauge[int64]); ok && m.Name == "bakery_po_orders" {
					return len(g.DataPoints) == 2
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
