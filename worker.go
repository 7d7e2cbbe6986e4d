package incremental

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pipelined.dev/incremental/internal/queue"
	"pipelined.dev/incremental/metric"
)

// eventsEdge is the inbound edge of external events of the source.
const eventsEdge = "events"

// envelope is a single item of the module's inbox.
type envelope struct {
	msg      UpdateMessage
	event    any
	external bool
}

// worker runs a single module. It drains the module's inbox, calls the
// module and delivers its output to consumers.
type worker struct {
	n         *Network
	module    Module
	inbox     *queue.Inbox[envelope]
	consumers []*worker
	meter     *metric.Meter
	log       logrus.FieldLogger

	started  chan struct{}
	startErr error
}

func (n *Network) newWorker(m Module, meters *metric.Metrics) *worker {
	budget := n.budget
	if d, ok := n.budgets[m.ID()]; ok {
		budget = d
	}
	policy := n.inbox
	if p, ok := n.inboxes[m.ID()]; ok {
		policy = p
	}
	w := &worker{
		n:       n,
		module:  m,
		meter:   meters.Meter(m.Name(), m.ID(), budget),
		started: make(chan struct{}),
		log: n.log.WithFields(logrus.Fields{
			"module":    m.Name(),
			"module_id": m.ID(),
		}),
	}
	w.inbox = queue.New(policy, w.dropped)
	m.base().attach(n.lineage, w.log, n.now)
	return w
}

// dropped is called by inbox for every discarded envelope.
func (w *worker) dropped(edge string, _ envelope) {
	w.n.pending.Done()
	w.meter.Dropped(context.Background(), edge)
	w.log.WithField("producer", edge).Debug("message dropped")
}

// awaitStart blocks until setup hook is done and returns its error.
func (w *worker) awaitStart() error {
	<-w.started
	return w.startErr
}

// run executes setup hook, processes messages until inbox is closed and
// executes teardown hook. If setup hook fails, inbox is discarded and
// teardown hook is not called.
func (w *worker) run(ctx context.Context) {
	defer w.n.running.Done()
	if err := w.start(ctx); err != nil {
		w.startErr = err
		w.n.hookFailed(err)
		w.inbox.Discard()
		close(w.started)
		return
	}
	close(w.started)
	defer w.flush(ctx)

	for {
		e, ok := w.inbox.Pop()
		if !ok {
			return
		}
		w.handle(e)
		w.n.pending.Done()
	}
}

func (w *worker) start(ctx context.Context) error {
	s, ok := w.module.(Starter)
	if !ok {
		return nil
	}
	if err := recovered(func() error { return s.Start(ctx) }); err != nil {
		return newError(ErrProcessingFailed, w.module, PhaseSetup, Ref{}, err)
	}
	return nil
}

func (w *worker) flush(ctx context.Context) {
	f, ok := w.module.(Flusher)
	if !ok {
		return
	}
	if err := recovered(func() error { return f.Flush(ctx) }); err != nil {
		err = newError(ErrProcessingFailed, w.module, PhaseTeardown, Ref{}, err)
		w.log.WithError(err).Error("teardown failed")
		w.n.hookFailed(err)
	}
}

// recovered calls fn and converts its panic into error.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// handle executes a single processing round.
func (w *worker) handle(e envelope) {
	ctx, span := w.n.tracer.Start(context.Background(), "process",
		trace.WithAttributes(
			attribute.String("module", w.module.Name()),
			attribute.String("module_id", w.module.ID()),
			attribute.Bool("external", e.external),
		))
	defer span.End()

	if !e.external {
		w.meter.Received(ctx)
		span.SetAttributes(
			attribute.String("producer", e.msg.Producer),
			attribute.Int("updates", e.msg.Len()),
		)
		for _, err := range w.module.base().apply(e.msg) {
			w.inconsistent(ctx, e.msg.Producer, err)
		}
	}

	begin := time.Now()
	out, err := w.process(e)
	elapsed := time.Since(begin)
	if w.meter.Processed(ctx, elapsed) {
		w.log.WithFields(logrus.Fields{
			"elapsed": elapsed,
			"budget":  w.meter.Budget(),
		}).Warn("processing budget exceeded")
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.meter.Failed(ctx)
		w.log.WithError(err).WithField("phase", PhaseProcess).Error("processing failed")
		w.n.fail(err)
		return
	}
	if out.IsEmpty() {
		return
	}
	span.SetAttributes(attribute.Int("emitted", out.Len()))
	w.meter.Emitted(ctx, countUpdates(out))
	w.deliver(out)
}

// process calls the module and converts its failure or panic into
// processing error.
func (w *worker) process(e envelope) (out UpdateMessage, err *Error) {
	defer func() {
		if r := recover(); r != nil {
			out = UpdateMessage{}
			err = newError(ErrProcessingFailed, w.module, PhaseProcess, Ref{}, fmt.Errorf("panic: %v", r))
		}
	}()
	var perr error
	if e.external {
		// module is a source, otherwise event couldn't be triggered.
		out, perr = w.module.(Source).ProcessEvent(e.event)
	} else {
		out, perr = w.module.ProcessUpdate(e.msg)
	}
	if perr != nil {
		return UpdateMessage{}, newError(ErrProcessingFailed, w.module, PhaseProcess, Ref{}, perr)
	}
	return out, nil
}

// deliver puts a copy of the message into inbox of every consumer in
// subscription order.
func (w *worker) deliver(out UpdateMessage) {
	id := w.module.ID()
	for _, c := range w.consumers {
		w.n.pending.Add(1)
		if !c.inbox.Push(id, envelope{msg: out.copy(id)}) {
			w.n.pending.Done()
			w.log.WithFields(logrus.Fields{
				"consumer": c.module.Name(),
				"phase":    PhaseDeliver,
			}).Debug("consumer inbox is closed")
		}
	}
}

func (w *worker) inconsistent(ctx context.Context, producer string, err error) {
	fields := logrus.Fields{"producer": producer}
	kind := err.Error()
	if e, ok := err.(*Error); ok {
		fields["iu"] = e.IU.String()
		fields["phase"] = e.Phase
		kind = e.Kind.Error()
	}
	w.meter.Inconsistent(ctx, kind)
	w.log.WithFields(fields).WithError(err).Warn("inconsistent update")
}

func countUpdates(m UpdateMessage) map[string]int {
	counts := make(map[string]int, 3)
	for _, u := range m.Updates {
		counts[u.Type.String()]++
	}
	return counts
}
