package incremental

import (
	"context"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

type (
	// Module is a processing stage of the network. Every module declares
	// accepted input types and exactly one output type. Network calls
	// ProcessUpdate once per delivered message, always from the module's
	// own worker. Modules are built by embedding *Base, which provides
	// identity, buffers and IU helpers.
	Module interface {
		Name() string
		ID() string
		InputTypes() []Type
		OutputType() Type
		// ProcessUpdate derives outgoing message from incoming one and
		// module's own buffers. Empty message means nothing changed.
		ProcessUpdate(UpdateMessage) (UpdateMessage, error)
		base() *Base
	}

	// Source is a module that originates messages on its own. Network
	// binds the trigger before the start. Source keeps it and calls it
	// from device callbacks or timers. Every triggered event is handled
	// by ProcessEvent on the source's worker.
	Source interface {
		Module
		Bind(Trigger)
		ProcessEvent(event any) (UpdateMessage, error)
	}

	// Trigger enqueues external event for the source. It fails with
	// ErrInvalidState if network is not running.
	Trigger func(event any) error

	// Starter is implemented by modules that need a setup hook, for
	// example to open device or load a model. Start is called by the
	// module's worker before any message is processed.
	Starter interface {
		Start(ctx context.Context) error
	}

	// Flusher is implemented by modules that need a teardown hook. Flush
	// is called by the module's worker after its last message.
	Flusher interface {
		Flush(ctx context.Context) error
	}
)

// ResetPolicy declares when module clears its buffers.
type ResetPolicy int

const (
	// ResetNever means buffers accumulate until module decides otherwise
	// on external cue.
	ResetNever ResetPolicy = iota
	// ResetOnCommit means buffers are cleared once commit closes a
	// semantic unit.
	ResetOnCommit
)

func (p ResetPolicy) String() string {
	switch p {
	case ResetNever:
		return "never"
	case ResetOnCommit:
		return "on-commit"
	}
	return "unknown"
}

// Derivation is a candidate output IU produced by re-deriving module
// output from its current input.
type Derivation struct {
	Payload    any
	GroundedIn []*IU
}

type (
	// Base holds module identity and its hypothesis buffers. It's owned
	// by the module's worker and is not safe for concurrent use.
	Base struct {
		id     string
		name   string
		output Type
		inputs []Type
		reset  ResetPolicy

		seq     uint64
		now     func() time.Time
		lineage *Lineage
		log     logrus.FieldLogger

		out       []*IU
		in        map[string]*inputBuffer
		producers []string
	}

	// inputBuffer is a current input received from a single producer.
	inputBuffer struct {
		entries []inputEntry
	}

	inputEntry struct {
		iu    *IU
		final bool
	}
)

// NewBase returns base for the module with provided name, output type and
// accepted input types.
func NewBase(name string, output Type, inputs ...Type) *Base {
	id := xid.New().String()
	if name == "" {
		name = id
	}
	return &Base{
		id:     id,
		name:   name,
		output: output,
		inputs: inputs,
		now:    time.Now,
		in:     make(map[string]*inputBuffer),
	}
}

func (b *Base) base() *Base {
	return b
}

// ID returns unique module id.
func (b *Base) ID() string {
	return b.id
}

// Name returns module name.
func (b *Base) Name() string {
	return b.name
}

// OutputType returns declared output type.
func (b *Base) OutputType() Type {
	return b.output
}

// InputTypes returns declared input types.
func (b *Base) InputTypes() []Type {
	return b.inputs
}

// Accepts returns true if provided type is one of declared input types.
func (b *Base) Accepts(t Type) bool {
	for _, in := range b.inputs {
		if in == t {
			return true
		}
	}
	return false
}

// ResetPolicy returns declared reset policy.
func (b *Base) ResetPolicy() ResetPolicy {
	return b.reset
}

// SetResetPolicy declares reset policy of the module.
func (b *Base) SetResetPolicy(p ResetPolicy) {
	b.reset = p
}

// Logger returns logger with module fields.
func (b *Base) Logger() logrus.FieldLogger {
	l := b.log
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithFields(logrus.Fields{
		"module":    b.name,
		"module_id": b.id,
	})
}

// Resolve looks up IU by lineage reference. It's safe to call for any
// reference, dangling refs return false.
func (b *Base) Resolve(ref Ref) (*IU, bool) {
	return b.lineage.Resolve(ref)
}

// CreateIU allocates new IU owned by this module. The IU gets next
// sequence number, creation time and lineage of provided IUs. It's not
// added to the output buffer, use AddIU for that.
func (b *Base) CreateIU(payload any, groundedIn ...*IU) *IU {
	b.seq++
	iu := &IU{
		Ref: Ref{
			Module: b.id,
			Seq:    b.seq,
		},
		Type:       b.output,
		Owner:      b.name,
		Created:    b.now(),
		GroundedIn: refs(groundedIn),
		payload:    payload,
	}
	b.lineage.register(iu)
	return iu
}

// AddIU creates new IU, appends it to the output buffer and puts add
// update into the message.
func (b *Base) AddIU(m *UpdateMessage, payload any, groundedIn ...*IU) *IU {
	iu := b.CreateIU(payload, groundedIn...)
	b.out = append(b.out, iu)
	m.Add(iu)
	return iu
}

// Commit marks own IU as final.
func (b *Base) Commit(iu *IU) error {
	if iu.Module != b.id {
		return ErrNotOwner
	}
	return iu.commit()
}

// Revoke withdraws own IU and removes it from the output buffer.
func (b *Base) Revoke(iu *IU) error {
	if iu.Module != b.id {
		return ErrNotOwner
	}
	if err := iu.revoke(); err != nil {
		return err
	}
	b.lineage.forget(iu.Ref)
	for i := range b.out {
		if b.out[i] == iu {
			b.out = append(b.out[:i], b.out[i+1:]...)
			break
		}
	}
	return nil
}

// CommitIU commits own IU and puts commit update into the message.
func (b *Base) CommitIU(m *UpdateMessage, iu *IU) error {
	if err := b.Commit(iu); err != nil {
		return err
	}
	m.Commit(iu)
	return nil
}

// RevokeIU revokes own IU and puts revoke update into the message.
func (b *Base) RevokeIU(m *UpdateMessage, iu *IU) error {
	if err := b.Revoke(iu); err != nil {
		return err
	}
	m.Revoke(iu)
	return nil
}

// CommitGrounded commits every not committed output IU grounded in ref.
// Commit updates are put into the message. Number of committed IUs is
// returned.
func (b *Base) CommitGrounded(m *UpdateMessage, ref Ref) (int, error) {
	var n int
	for _, iu := range b.out {
		if iu.Committed() || !iu.IsGroundedIn(ref) {
			continue
		}
		if err := b.CommitIU(m, iu); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CommitAll commits every not committed output IU.
func (b *Base) CommitAll(m *UpdateMessage) error {
	for _, iu := range b.out {
		if iu.Committed() {
			continue
		}
		if err := b.CommitIU(m, iu); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears input and output buffers. Committed IUs stay valid and
// sequence numbers are never reused.
func (b *Base) Reset() {
	b.out = nil
	b.in = make(map[string]*inputBuffer)
	b.producers = nil
}

// attach binds the base to the running network.
func (b *Base) attach(l *Lineage, log logrus.FieldLogger, now func() time.Time) {
	b.lineage = l
	b.log = log
	if now != nil {
		b.now = now
	}
}
