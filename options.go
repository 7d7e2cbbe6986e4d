package incremental

import (
	"time"

	"github.com/sirupsen/logrus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pipelined.dev/incremental/internal/queue"
)

// Policy defines how network reacts when module fails to process a
// message.
type Policy int

const (
	// Isolate logs the failure, drops module's output for the round and
	// keeps the worker alive.
	Isolate Policy = iota
	// FailFast stops the whole network on the first failure.
	FailFast
)

func (p Policy) String() string {
	switch p {
	case Isolate:
		return "isolate"
	case FailFast:
		return "fail-fast"
	}
	return "unknown"
}

// Overflow defines what happens when inbound edge capacity is reached.
type Overflow = queue.Overflow

// Overflow policies.
const (
	// Block makes producer wait until consumer drains the edge. It's
	// appropriate for discrete hypothesis streams where no update may be
	// dropped.
	Block = queue.Block
	// DropOldest discards the oldest unread message of the edge. It's
	// appropriate for continuous signal streams where latency matters
	// more than completeness.
	DropOldest = queue.DropOldest
)

// Option provides a way to set functional parameters to network.
type Option func(n *Network)

// WithLogger sets logger to network. If this option is not provided,
// logger from log package is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(n *Network) {
		n.log = l
	}
}

// WithPolicy sets failure policy. Isolate is the default.
func WithPolicy(p Policy) Option {
	return func(n *Network) {
		n.policy = p
	}
}

// WithGracePeriod sets the time Stop waits for workers to drain. Zero
// means wait forever.
func WithGracePeriod(d time.Duration) Option {
	return func(n *Network) {
		n.grace = d
	}
}

// WithQueue sets default capacity and overflow policy of inbound edges.
// Zero capacity means unbounded edges.
func WithQueue(capacity int, overflow Overflow) Option {
	return func(n *Network) {
		n.inbox = queue.Policy{Capacity: capacity, Overflow: overflow}
	}
}

// WithInbox overrides default edge policy for all inbound edges of the
// module, including events of the source.
func WithInbox(m Module, capacity int, overflow Overflow) Option {
	return func(n *Network) {
		n.inboxes[m.ID()] = queue.Policy{Capacity: capacity, Overflow: overflow}
	}
}

// WithBudget sets default processing-time budget of modules. Zero
// disables the budget.
func WithBudget(d time.Duration) Option {
	return func(n *Network) {
		n.budget = d
	}
}

// WithModuleBudget sets processing-time budget of the module.
func WithModuleBudget(m Module, d time.Duration) Option {
	return func(n *Network) {
		n.budgets[m.ID()] = d
	}
}

// WithMeterProvider sets the provider for network metrics. Global
// provider is used by default.
func WithMeterProvider(mp api.MeterProvider) Option {
	return func(n *Network) {
		n.meterProvider = mp
	}
}

// WithTracerProvider sets the provider for processing spans. Global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(n *Network) {
		n.tracerProvider = tp
	}
}

// WithClock sets the clock used to stamp IUs.
func WithClock(now func() time.Time) Option {
	return func(n *Network) {
		n.now = now
	}
}

// EdgeOption configures a single subscription edge.
type EdgeOption func(p *queue.Policy)

// WithCapacity sets capacity of the edge. Zero means unbounded.
func WithCapacity(capacity int) EdgeOption {
	return func(p *queue.Policy) {
		p.Capacity = capacity
	}
}

// WithOverflow sets overflow policy of the edge.
func WithOverflow(o Overflow) EdgeOption {
	return func(p *queue.Policy) {
		p.Overflow = o
	}
}
