// Package mock provides mock modules and allows to execute integration
// tests of networks.
package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"pipelined.dev/incremental"
)

// Type is the IU type of mock modules.
const Type incremental.Type = "mock"

// errNotBound is returned if source is triggered before network runs.
var errNotBound = errors.New("source is not bound")

type (
	// Hooks allows to mock modules hooks. It's safe to check it while
	// network is running. If Panic is set, hooks panic with their errors
	// instead of returning them.
	Hooks struct {
		started atomic.Bool
		flushed atomic.Bool

		ErrorOnStart error
		ErrorOnFlush error
		Panic        bool
	}

	// counter counts processed messages and updates.
	counter struct {
		messages atomic.Int64
		updates  atomic.Int64
	}
)

// Start implements incremental.Starter.
func (h *Hooks) Start(context.Context) error {
	h.started.Store(true)
	if h.Panic && h.ErrorOnStart != nil {
		panic(h.ErrorOnStart)
	}
	return h.ErrorOnStart
}

// Flush implements incremental.Flusher.
func (h *Hooks) Flush(context.Context) error {
	h.flushed.Store(true)
	if h.Panic && h.ErrorOnFlush != nil {
		panic(h.ErrorOnFlush)
	}
	return h.ErrorOnFlush
}

// Started returns true if setup hook was called.
func (h *Hooks) Started() bool {
	return h.started.Load()
}

// Flushed returns true if teardown hook was called.
func (h *Hooks) Flushed() bool {
	return h.flushed.Load()
}

func (c *counter) advance(m incremental.UpdateMessage) {
	c.messages.Add(1)
	c.updates.Add(int64(m.Len()))
}

// Count returns number of processed messages and updates.
func (c *counter) Count() (int, int) {
	return int(c.messages.Load()), int(c.updates.Load())
}

type (
	// Source mocks a source driven by external events. Every event is
	// handled on the source's worker.
	Source struct {
		*incremental.Base
		counter
		Hooks
		mu      sync.Mutex
		trigger incremental.Trigger
	}

	addEvent    struct{ payloads []any }
	revokeEvent struct{}
	commitEvent struct{ oldest bool }
	errorEvent  struct{ err error }
)

// NewSource returns source with provided name and mock output type.
func NewSource(name string) *Source {
	return NewSourceOf(name, Type)
}

// NewSourceOf returns source with provided output type. Payloads must
// match the type.
func NewSourceOf(name string, t incremental.Type) *Source {
	return &Source{
		Base: incremental.NewBase(name, t),
	}
}

// Bind implements incremental.Source.
func (s *Source) Bind(t incremental.Trigger) {
	s.mu.Lock()
	s.trigger = t
	s.mu.Unlock()
}

// Add triggers creation of IUs with provided payloads. IUs are added in
// a single message.
func (s *Source) Add(payloads ...any) error {
	return s.send(addEvent{payloads: payloads})
}

// RevokeLast triggers revocation of the newest live IU.
func (s *Source) RevokeLast() error {
	return s.send(revokeEvent{})
}

// CommitAll triggers commit of every live IU.
func (s *Source) CommitAll() error {
	return s.send(commitEvent{})
}

// CommitOldest triggers commit of the oldest live IU.
func (s *Source) CommitOldest() error {
	return s.send(commitEvent{oldest: true})
}

// Fail triggers processing round that returns provided error.
func (s *Source) Fail(err error) error {
	return s.send(errorEvent{err: err})
}

func (s *Source) send(event any) error {
	s.mu.Lock()
	t := s.trigger
	s.mu.Unlock()
	if t == nil {
		return errNotBound
	}
	return t(event)
}

// ProcessEvent implements incremental.Source.
func (s *Source) ProcessEvent(event any) (incremental.UpdateMessage, error) {
	var m incremental.UpdateMessage
	switch e := event.(type) {
	case addEvent:
		for _, p := range e.payloads {
			s.AddIU(&m, p)
		}
	case revokeEvent:
		out := s.Output()
		for i := len(out) - 1; i >= 0; i-- {
			if out[i].Committed() {
				continue
			}
			if err := s.RevokeIU(&m, out[i]); err != nil {
				return incremental.UpdateMessage{}, err
			}
			break
		}
	case commitEvent:
		if !e.oldest {
			if err := s.Base.CommitAll(&m); err != nil {
				return incremental.UpdateMessage{}, err
			}
			break
		}
		for _, iu := range s.Output() {
			if iu.Committed() {
				continue
			}
			if err := s.CommitIU(&m, iu); err != nil {
				return incremental.UpdateMessage{}, err
			}
			break
		}
	case errorEvent:
		return incremental.UpdateMessage{}, e.err
	}
	s.advance(m)
	return m, nil
}

// ProcessUpdate implements incremental.Module. Source has no inputs.
func (s *Source) ProcessUpdate(incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	return incremental.UpdateMessage{}, nil
}

// Echo mirrors every update of its input with its own IUs grounded in
// the input. Payload is copied.
type Echo struct {
	*incremental.Base
	counter
	mirrors map[incremental.Ref]*incremental.IU
}

// NewEcho returns echo module that accepts and produces mock type.
func NewEcho(name string) *Echo {
	return &Echo{
		Base:    incremental.NewBase(name, Type, Type),
		mirrors: make(map[incremental.Ref]*incremental.IU),
	}
}

// ProcessUpdate implements incremental.Module.
func (e *Echo) ProcessUpdate(in incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	e.counter.advance(in)
	return mirror(e.Base, e.mirrors, in)
}

func mirror(b *incremental.Base, mirrors map[incremental.Ref]*incremental.IU, in incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	var out incremental.UpdateMessage
	for _, u := range in.Updates {
		switch u.Type {
		case incremental.Add:
			mirrors[u.IU.Ref] = b.AddIU(&out, u.IU.Payload(), u.IU)
		case incremental.Revoke:
			iu, ok := mirrors[u.IU.Ref]
			if !ok {
				continue
			}
			delete(mirrors, u.IU.Ref)
			if err := b.RevokeIU(&out, iu); err != nil {
				return incremental.UpdateMessage{}, err
			}
		case incremental.Commit:
			iu, ok := mirrors[u.IU.Ref]
			if !ok {
				continue
			}
			delete(mirrors, u.IU.Ref)
			if err := b.CommitIU(&out, iu); err != nil {
				return incremental.UpdateMessage{}, err
			}
		}
	}
	return out, nil
}

// Sink records every received message. It's safe to check it while
// network is running.
type Sink struct {
	*incremental.Base
	counter
	Hooks
	mu       sync.Mutex
	messages []incremental.UpdateMessage
	current  []any
	OnUpdate func(incremental.UpdateMessage)
}

// NewSink returns sink that accepts provided types. Mock type is accepted
// if none provided.
func NewSink(name string, inputs ...incremental.Type) *Sink {
	if len(inputs) == 0 {
		inputs = []incremental.Type{Type}
	}
	return &Sink{
		Base: incremental.NewBase(name, Type, inputs...),
	}
}

// ProcessUpdate implements incremental.Module.
func (s *Sink) ProcessUpdate(in incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	s.advance(in)
	if s.OnUpdate != nil {
		s.OnUpdate(in)
	}
	inputs := s.Inputs()
	current := make([]any, 0, len(inputs))
	for _, iu := range inputs {
		current = append(current, iu.Payload())
	}
	s.mu.Lock()
	s.messages = append(s.messages, in)
	s.current = current
	s.mu.Unlock()
	return incremental.UpdateMessage{}, nil
}

// Messages returns received messages in order.
func (s *Sink) Messages() []incremental.UpdateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]incremental.UpdateMessage(nil), s.messages...)
}

// Current returns payloads of current input after the last round.
func (s *Sink) Current() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.current...)
}

// Payloads returns payloads of all received updates with provided type
// in order.
func (s *Sink) Payloads(t incremental.UpdateType) []any {
	var payloads []any
	for _, m := range s.Messages() {
		for _, iu := range m.Of(t) {
			payloads = append(payloads, iu.Payload())
		}
	}
	return payloads
}

// Failing fails every processing round. It returns ErrorOnCall or panics
// if Panic is set.
type Failing struct {
	*incremental.Base
	counter
	ErrorOnCall error
	Panic       bool
}

// NewFailing returns failing module that accepts and produces mock type.
func NewFailing(name string, err error) *Failing {
	return &Failing{
		Base:        incremental.NewBase(name, Type, Type),
		ErrorOnCall: err,
	}
}

// ProcessUpdate implements incremental.Module.
func (f *Failing) ProcessUpdate(in incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	f.advance(in)
	if f.Panic {
		panic(f.ErrorOnCall)
	}
	return incremental.UpdateMessage{}, f.ErrorOnCall
}

// Gate holds every processing round until it's released. Entered receives
// a value when round is started. Input is mirrored like Echo does.
type Gate struct {
	*incremental.Base
	counter
	Entered chan struct{}
	release chan struct{}
	once    sync.Once
	mirrors map[incremental.Ref]*incremental.IU
}

// NewGate returns closed gate that accepts and produces mock type.
func NewGate(name string) *Gate {
	return &Gate{
		Base:    incremental.NewBase(name, Type, Type),
		Entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		mirrors: make(map[incremental.Ref]*incremental.IU),
	}
}

// Release opens the gate for all current and future rounds.
func (g *Gate) Release() {
	g.once.Do(func() {
		close(g.release)
	})
}

// ProcessUpdate implements incremental.Module.
func (g *Gate) ProcessUpdate(in incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	select {
	case g.Entered <- struct{}{}:
	default:
	}
	<-g.release
	g.advance(in)
	return mirror(g.Base, g.mirrors, in)
}
