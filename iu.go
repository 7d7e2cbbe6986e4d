package incremental

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Type is a tag of IU payload. Every module declares exactly one output
// type and a set of accepted input types.
type Type string

// Ref identifies IU within the process: the ID of owner module and the
// sequence number. It's used as a lineage key and never keeps the IU
// alive.
type Ref struct {
	Module string
	Seq    uint64
}

// IsZero returns true if ref doesn't point to any IU.
func (r Ref) IsZero() bool {
	return r.Module == "" && r.Seq == 0
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Module, r.Seq)
}

// iu lifecycle states.
const (
	live int32 = iota
	committed
	revoked
)

// IU is an incremental unit: the atomic, revisable piece of hypothesis
// produced by a module. Only the owner module changes its state. Once
// committed, the IU is immutable.
type IU struct {
	Ref
	Type    Type
	Owner   string    // name of the owner module.
	Created time.Time // time of instantiation.
	// GroundedIn holds lineage keys of IUs that justify this one. They
	// may be dangling and must be resolved with Lineage.
	GroundedIn []Ref

	mu      sync.RWMutex
	payload any
	state   atomic.Int32
}

// Payload returns current payload value.
func (iu *IU) Payload() any {
	iu.mu.RLock()
	defer iu.mu.RUnlock()
	return iu.payload
}

// SetPayload replaces the payload. It fails if IU was already committed
// or revoked.
func (iu *IU) SetPayload(v any) error {
	iu.mu.Lock()
	defer iu.mu.Unlock()
	if err := iu.mutable(); err != nil {
		return err
	}
	iu.payload = v
	return nil
}

// Committed returns true if IU is final.
func (iu *IU) Committed() bool {
	return iu.state.Load() == committed
}

// Revoked returns true if IU was withdrawn.
func (iu *IU) Revoked() bool {
	return iu.state.Load() == revoked
}

// IsGroundedIn returns true if ref is in the lineage of the IU.
func (iu *IU) IsGroundedIn(ref Ref) bool {
	for _, g := range iu.GroundedIn {
		if g == ref {
			return true
		}
	}
	return false
}

func (iu *IU) String() string {
	return fmt.Sprintf("%s(%v %v)", iu.Type, iu.Ref, iu.Payload())
}

func (iu *IU) commit() error {
	iu.mu.Lock()
	defer iu.mu.Unlock()
	if err := iu.mutable(); err != nil {
		return err
	}
	iu.state.Store(committed)
	return nil
}

func (iu *IU) revoke() error {
	iu.mu.Lock()
	defer iu.mu.Unlock()
	if err := iu.mutable(); err != nil {
		return err
	}
	iu.state.Store(revoked)
	return nil
}

// mutable must be called with the lock held.
func (iu *IU) mutable() error {
	switch iu.state.Load() {
	case committed:
		return ErrAlreadyCommitted
	case revoked:
		return ErrAlreadyRevoked
	}
	return nil
}

// refs returns lineage keys of provided IUs.
func refs(ius []*IU) []Ref {
	if len(ius) == 0 {
		return nil
	}
	r := make([]Ref, 0, len(ius))
	for _, iu := range ius {
		if iu != nil {
			r = append(r, iu.Ref)
		}
	}
	return r
}

func sameRefs(a, b []Ref) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
