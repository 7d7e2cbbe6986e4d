package metric_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"pipelined.dev/incremental/metric"
)

func newTestMetrics(t *testing.T) (*metric.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := metric.New(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func find(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := find(rm, name)
	require.NotNil(t, m, name)
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, name)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestBudget(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	mt := m.Meter("asr", "id1", 10*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, mt.Budget())

	assert.False(t, mt.Processed(ctx, time.Millisecond))
	assert.True(t, mt.Processed(ctx, 20*time.Millisecond))

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sum(t, rm, metric.BudgetCounter))

	h := find(rm, metric.ProcessDuration)
	require.NotNil(t, h)
	hist, ok := h.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestNoBudget(t *testing.T) {
	m, _ := newTestMetrics(t)
	mt := m.Meter("sink", "id2", 0)
	assert.False(t, mt.Processed(context.Background(), time.Hour))
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	mt := m.Meter("echo", "id3", 0)

	mt.Received(ctx)
	mt.Received(ctx)
	mt.Emitted(ctx, map[string]int{"add": 2, "commit": 1})
	mt.Failed(ctx)
	mt.Dropped(ctx, "mic")
	mt.Inconsistent(ctx, "unknown iu")

	rm := collect(t, reader)
	assert.Equal(t, int64(3), sum(t, rm, metric.MessageCounter))
	assert.Equal(t, int64(3), sum(t, rm, metric.UpdateCounter))
	assert.Equal(t, int64(1), sum(t, rm, metric.FailureCounter))
	assert.Equal(t, int64(1), sum(t, rm, metric.DropCounter))
	assert.Equal(t, int64(1), sum(t, rm, metric.ReceiveCounter))
}

func TestGlobalProvider(t *testing.T) {
	m, err := metric.New(nil)
	require.NoError(t, err)
	// global provider is a no-op, meter must still work.
	m.Meter("noop", "id4", time.Second).Failed(context.Background())
}
