// Package metric records per-module processing metrics with OpenTelemetry.
// Processing-time budget is a monitoring signal only: rounds that exceed it
// are counted, never interrupted.
package metric

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	api "go.opentelemetry.io/otel/metric"
)

const meterName = "pipelined.dev/incremental"

// Instrument names.
const (
	ProcessDuration = "incremental.module.process.duration"
	MessageCounter  = "incremental.module.messages"
	UpdateCounter   = "incremental.module.updates"
	FailureCounter  = "incremental.module.failures"
	BudgetCounter   = "incremental.module.budget_exceeded"
	DropCounter     = "incremental.queue.dropped"
	ReceiveCounter  = "incremental.module.inconsistencies"
)

// latencyBuckets are histogram bounds in seconds, tuned for live speech
// pipelines.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// Metrics holds instruments shared by all modules of the network.
type Metrics struct {
	duration        api.Float64Histogram
	messages        api.Int64Counter
	updates         api.Int64Counter
	failures        api.Int64Counter
	budget          api.Int64Counter
	dropped         api.Int64Counter
	inconsistencies api.Int64Counter
}

// New creates instruments using provided meter provider. If provider is
// nil, global one is used.
func New(mp api.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)
	var (
		met Metrics
		err error
	)
	if met.duration, err = m.Float64Histogram(ProcessDuration,
		api.WithDescription("Duration of a single processing round of the module."),
		api.WithUnit("s"),
		api.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.messages, err = m.Int64Counter(MessageCounter,
		api.WithDescription("Update messages by module and direction."),
	); err != nil {
		return nil, err
	}
	if met.updates, err = m.Int64Counter(UpdateCounter,
		api.WithDescription("Emitted updates by module and update type."),
	); err != nil {
		return nil, err
	}
	if met.failures, err = m.Int64Counter(FailureCounter,
		api.WithDescription("Failed processing rounds by module."),
	); err != nil {
		return nil, err
	}
	if met.budget, err = m.Int64Counter(BudgetCounter,
		api.WithDescription("Processing rounds that exceeded the module budget."),
	); err != nil {
		return nil, err
	}
	if met.dropped, err = m.Int64Counter(DropCounter,
		api.WithDescription("Messages discarded by inbound queues."),
	); err != nil {
		return nil, err
	}
	if met.inconsistencies, err = m.Int64Counter(ReceiveCounter,
		api.WithDescription("Recoverable inconsistencies of incoming updates, like unknown IUs."),
	); err != nil {
		return nil, err
	}
	return &met, nil
}

// Meter captures metrics of a single module.
type Meter struct {
	m      *Metrics
	attrs  attribute.Set
	budget time.Duration
}

// Meter returns meter for the module. Zero budget disables budget check.
func (m *Metrics) Meter(module, moduleID string, budget time.Duration) *Meter {
	return &Meter{
		m: m,
		attrs: attribute.NewSet(
			attribute.String("module", module),
			attribute.String("module_id", moduleID),
		),
		budget: budget,
	}
}

// Budget returns processing-time budget of the module.
func (mt *Meter) Budget() time.Duration {
	return mt.budget
}

// Processed records duration of the round. True is returned if it
// exceeded the budget.
func (mt *Meter) Processed(ctx context.Context, d time.Duration) bool {
	mt.m.duration.Record(ctx, d.Seconds(), api.WithAttributeSet(mt.attrs))
	if mt.budget > 0 && d > mt.budget {
		mt.m.budget.Add(ctx, 1, api.WithAttributeSet(mt.attrs))
		return true
	}
	return false
}

// Received counts incoming message.
func (mt *Meter) Received(ctx context.Context) {
	mt.message(ctx, "in")
}

// Emitted counts outgoing message and its updates by type.
func (mt *Meter) Emitted(ctx context.Context, updates map[string]int) {
	mt.message(ctx, "out")
	for kind, n := range updates {
		mt.m.updates.Add(ctx, int64(n), api.WithAttributeSet(mt.attrs),
			api.WithAttributes(attribute.String("type", kind)))
	}
}

// Failed counts failed round.
func (mt *Meter) Failed(ctx context.Context) {
	mt.m.failures.Add(ctx, 1, api.WithAttributeSet(mt.attrs))
}

// Dropped counts message discarded from module's inbound queue.
func (mt *Meter) Dropped(ctx context.Context, producer string) {
	mt.m.dropped.Add(ctx, 1, api.WithAttributeSet(mt.attrs),
		api.WithAttributes(attribute.String("producer", producer)))
}

// Inconsistent counts recoverable inconsistency of incoming updates.
func (mt *Meter) Inconsistent(ctx context.Context, kind string) {
	mt.m.inconsistencies.Add(ctx, 1, api.WithAttributeSet(mt.attrs),
		api.WithAttributes(attribute.String("kind", kind)))
}

func (mt *Meter) message(ctx context.Context, direction string) {
	mt.m.messages.Add(ctx, 1, api.WithAttributeSet(mt.attrs),
		api.WithAttributes(attribute.String("direction", direction)))
}
