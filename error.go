package incremental

import (
	"errors"
	"fmt"
	"strings"

	"pipelined.dev/incremental/internal/state"
)

var (
	// ErrTypeMismatch is returned if producer's output type is not
	// accepted by the consumer.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnknownIU is reported if revoke or commit references an IU that
	// is not present in the buffer. It's never fatal.
	ErrUnknownIU = errors.New("unknown iu")
	// ErrDuplicateIU is reported if the same IU is added twice by the
	// same producer. It's never fatal.
	ErrDuplicateIU = errors.New("duplicate iu")
	// ErrAlreadyCommitted is returned if committed IU is revoked,
	// committed or mutated.
	ErrAlreadyCommitted = errors.New("iu already committed")
	// ErrAlreadyRevoked is returned if revoked IU is revoked, committed
	// or mutated.
	ErrAlreadyRevoked = errors.New("iu already revoked")
	// ErrNotOwner is returned if module changes the state of IU it
	// didn't create.
	ErrNotOwner = errors.New("iu owned by another module")
	// ErrProcessingFailed is returned if module failed to process the
	// message.
	ErrProcessingFailed = errors.New("processing failed")
	// ErrInvalidState is returned if network method cannot be executed
	// at this moment.
	ErrInvalidState = state.ErrInvalidState
	// ErrTimeout is returned if network didn't stop within grace period.
	ErrTimeout = errors.New("timeout")
	// ErrCycleAtRoot is returned if root module cannot originate
	// messages on its own.
	ErrCycleAtRoot = errors.New("root cannot originate messages")
)

// Phase identifies the part of module lifecycle where error happened.
type Phase string

// Phases reported in errors and logs.
const (
	PhaseWiring   Phase = "wiring"
	PhaseSetup    Phase = "setup"
	PhaseReceive  Phase = "receive"
	PhaseProcess  Phase = "process"
	PhaseDeliver  Phase = "deliver"
	PhaseTeardown Phase = "teardown"
	PhaseStop     Phase = "stop"
)

// Error carries the context of failure: which module, which IU and at what
// phase. Kind is one of the package sentinel errors, so callers can check
// it with errors.Is.
type Error struct {
	Kind     error
	Module   string
	ModuleID string
	IU       Ref
	Phase    Phase
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Module != "" {
		fmt.Fprintf(&b, "%s: ", e.Module)
	}
	if e.Phase != "" {
		fmt.Fprintf(&b, "%s: ", e.Phase)
	}
	b.WriteString(e.Kind.Error())
	if !e.IU.IsZero() {
		fmt.Fprintf(&b, " %v", e.IU)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is checks if error kind matches provided sentinel error.
func (e *Error) Is(err error) bool {
	return e.Kind == err
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// identity is implemented by modules and their bases.
type identity interface {
	Name() string
	ID() string
}

func newError(kind error, m identity, phase Phase, ref Ref, cause error) *Error {
	e := &Error{
		Kind:  kind,
		IU:    ref,
		Phase: phase,
		Err:   cause,
	}
	if m != nil {
		e.Module = m.Name()
		e.ModuleID = m.ID()
	}
	return e
}

// hookErrors wraps errors that might occur when multiple hooks are
// failing.
type hookErrors []error

func (e hookErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows to match any of wrapped errors.
func (e hookErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error list is empty.
func (e hookErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
