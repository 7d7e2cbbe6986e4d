package incremental

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/incremental/internal/queue"
	"pipelined.dev/incremental/internal/state"
	"pipelined.dev/incremental/log"
	"pipelined.dev/incremental/metric"
)

const tracerName = "pipelined.dev/incremental"

// Network wires modules into a subscription graph and runs every
// discovered module in its own worker. Network can be run only once.
type Network struct {
	state *state.Machine
	log   logrus.FieldLogger
	now   func() time.Time

	policy  Policy
	grace   time.Duration
	inbox   queue.Policy
	inboxes map[string]queue.Policy
	budget  time.Duration
	budgets map[string]time.Duration

	meterProvider  api.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer

	// graph
	mu      sync.Mutex
	modules map[string]Module
	edges   map[string][]edge

	lineage  *Lineage
	workers  []*worker
	running  sync.WaitGroup // workers
	pending  sync.WaitGroup // queued and in-flight messages
	stopOnce sync.Once

	errMu sync.Mutex
	err   error      // first failure under fail-fast policy
	hooks hookErrors // setup and teardown failures
}

// New creates a new network and applies provided options. Returned network
// is in created state.
func New(options ...Option) *Network {
	n := &Network{
		state:   state.New(),
		now:     time.Now,
		inboxes: make(map[string]queue.Policy),
		budgets: make(map[string]time.Duration),
		modules: make(map[string]Module),
		edges:   make(map[string][]edge),
		lineage: NewLineage(),
	}
	for _, option := range options {
		option(n)
	}
	if n.log == nil {
		n.log = log.GetLogger()
	}
	if n.tracerProvider == nil {
		n.tracerProvider = otel.GetTracerProvider()
	}
	n.tracer = n.tracerProvider.Tracer(tracerName)
	return n
}

// Lineage returns the lookup table of IUs created in this network.
func (n *Network) Lineage() *Lineage {
	return n.lineage
}

// State returns the current lifecycle state.
func (n *Network) State() string {
	return n.state.Current().String()
}

// Done is closed when all workers exited.
func (n *Network) Done() <-chan struct{} {
	return n.state.Done()
}

// Run discovers all modules reachable from roots, starts one worker per
// module and waits until setup hooks of all modules are done. Every root
// must be a Source. If any setup hook fails, the network is stopped and the
// error is returned. Context is passed to setup and teardown hooks, use
// Stop to stop the network.
func (n *Network) Run(ctx context.Context, roots ...Module) error {
	if len(roots) == 0 {
		return newError(ErrCycleAtRoot, nil, PhaseSetup, Ref{}, errors.New("no roots"))
	}
	for _, r := range roots {
		if _, ok := r.(Source); !ok {
			return newError(ErrCycleAtRoot, r, PhaseSetup, Ref{}, nil)
		}
	}
	meters, err := metric.New(n.meterProvider)
	if err != nil {
		return fmt.Errorf("error creating metrics: %w", err)
	}
	// workers are built and started while state is locked, so stop can't
	// observe a partially started network.
	hookCtx := context.WithoutCancel(ctx)
	if err := n.state.TransitionFunc(state.Running, func() {
		n.setup(roots, meters)
		for _, w := range n.workers {
			n.running.Add(1)
			go w.run(hookCtx)
		}
	}, state.Created); err != nil {
		return newError(ErrInvalidState, nil, PhaseSetup, Ref{}, err)
	}
	n.log.WithField("modules", len(n.workers)).Info("network is running")

	var started errgroup.Group
	for _, w := range n.workers {
		started.Go(w.awaitStart)
	}
	if err := started.Wait(); err != nil {
		n.beginStop()
		<-n.state.Done()
		return err
	}
	return nil
}

// setup creates a worker for every module reachable from roots, binds
// edges and source triggers.
func (n *Network) setup(roots []Module, meters *metric.Metrics) {
	modules := n.discover(roots)
	workers := make(map[string]*worker, len(modules))
	for _, m := range modules {
		w := n.newWorker(m, meters)
		workers[m.ID()] = w
		n.workers = append(n.workers, w)
	}
	for _, w := range n.workers {
		for _, e := range n.edges[w.module.ID()] {
			c := workers[e.consumer.ID()]
			if len(e.options) > 0 {
				p := c.inbox.Policy(w.module.ID())
				for _, option := range e.options {
					option(&p)
				}
				c.inbox.SetPolicy(w.module.ID(), p)
			}
			w.consumers = append(w.consumers, c)
		}
	}
	for _, w := range n.workers {
		if s, ok := w.module.(Source); ok {
			s.Bind(n.trigger(w))
		}
	}
}

// Stop signals all workers to finish queued messages and exit. Sources
// can't trigger new events after this call. Teardown hooks are called
// after workers exit. ErrTimeout is returned if network didn't stop
// within grace period, use Terminate to discard queued messages in that
// case. Stopping an already stopping network waits for it again.
func (n *Network) Stop() error {
	if n.state.Current() == state.Created {
		return newError(ErrInvalidState, nil, PhaseStop, Ref{}, errors.New("network is not running"))
	}
	n.beginStop()

	var timeout <-chan time.Time
	if n.grace > 0 {
		t := time.NewTimer(n.grace)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-n.state.Done():
		return n.result()
	case <-timeout:
		return newError(ErrTimeout, nil, PhaseStop, Ref{}, fmt.Errorf("workers didn't exit within %v", n.grace))
	}
}

// Terminate discards all queued messages and makes workers exit after
// their current round. It doesn't wait, use Await or Done for that.
func (n *Network) Terminate() {
	if n.state.Current() == state.Created {
		return
	}
	n.beginStop()
	for _, w := range n.workers {
		w.inbox.Discard()
	}
}

// Await blocks until the network is stopped. It returns the failure that
// stopped the network under fail-fast policy and hook errors.
func (n *Network) Await() error {
	if n.state.Current() == state.Created {
		return newError(ErrInvalidState, nil, PhaseStop, Ref{}, errors.New("network is not running"))
	}
	<-n.state.Done()
	return n.result()
}

// beginStop moves network to stopping state and starts the drain. It's
// safe to call multiple times.
func (n *Network) beginStop() {
	_ = n.state.Transition(state.Stopping, state.Running)
	n.stopOnce.Do(func() {
		go n.drain()
	})
}

// drain waits until every queued message is processed and forwarded,
// then closes inboxes and waits for workers.
func (n *Network) drain() {
	n.pending.Wait()
	for _, w := range n.workers {
		w.inbox.Close()
	}
	n.running.Wait()
	if err := n.state.Transition(state.Stopped, state.Stopping); err != nil {
		n.log.WithError(err).Error("failed to stop")
	}
	n.log.Info("network is stopped")
}

// trigger returns the function that enqueues external events of the
// source.
func (n *Network) trigger(w *worker) Trigger {
	return func(event any) error {
		release, err := n.state.Hold(state.Running)
		if err != nil {
			return newError(ErrInvalidState, w.module, PhaseReceive, Ref{}, err)
		}
		defer release()
		n.pending.Add(1)
		if !w.inbox.Push(eventsEdge, envelope{event: event, external: true}) {
			n.pending.Done()
			return newError(ErrInvalidState, w.module, PhaseReceive, Ref{}, errors.New("inbox is closed"))
		}
		return nil
	}
}

// fail handles processing failure according to the policy.
func (n *Network) fail(err *Error) {
	if n.policy != FailFast {
		return
	}
	n.errMu.Lock()
	if n.err == nil {
		n.err = err
	}
	n.errMu.Unlock()
	// worker must not wait for state lock, trigger may hold it while
	// pushing into worker's inbox.
	go n.beginStop()
}

func (n *Network) hookFailed(err error) {
	n.errMu.Lock()
	n.hooks = append(n.hooks, err)
	n.errMu.Unlock()
}

// result returns failures collected during the run.
func (n *Network) result() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	var errs hookErrors
	if n.err != nil {
		errs = append(errs, n.err)
	}
	errs = append(errs, n.hooks...)
	if len(errs) == 1 {
		return errs[0]
	}
	return errs.ret()
}
