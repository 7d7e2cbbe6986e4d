// Package state manages the lifecycle of the network.
package state

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidState is returned if method cannot be executed at this moment.
var ErrInvalidState = errors.New("invalid state")

// State identifies one of the possible states network can be in.
type State int

// states
const (
	Created  State = iota // Created means that network can be wired and started.
	Running               // Running means that workers are processing messages.
	Stopping              // Stopping means that workers are draining queues.
	Stopped               // Stopped means that all workers exited.
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Machine guards state transitions. Transitions are exclusive, while
// operations that depend on the current state can hold it shared.
type Machine struct {
	mu    sync.RWMutex
	state State
	done  chan struct{}
}

// New returns machine in created state.
func New() *Machine {
	return &Machine{
		state: Created,
		done:  make(chan struct{}),
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves machine to the target state if current state is one
// of expected.
func (m *Machine) Transition(target State, expected ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !in(m.state, expected) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidState, m.state, target)
	}
	m.state = target
	if target == Stopped {
		close(m.done)
	}
	return nil
}

// TransitionFunc calls fn and moves machine to the target state if
// current state is one of expected. The state is locked while fn runs, so
// no other transition or hold can observe partial setup.
func (m *Machine) TransitionFunc(target State, fn func(), expected ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !in(m.state, expected) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidState, m.state, target)
	}
	fn()
	m.state = target
	if target == Stopped {
		close(m.done)
	}
	return nil
}

// Hold locks the state if it's one of expected. Returned function must be
// called to release the state. Transitions are blocked until release.
func (m *Machine) Hold(expected ...State) (func(), error) {
	m.mu.RLock()
	if !in(m.state, expected) {
		s := m.state
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, s)
	}
	return m.mu.RUnlock, nil
}

// Done is closed when machine reaches stopped state.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func in(s State, expected []State) bool {
	for _, e := range expected {
		if s == e {
			return true
		}
	}
	return false
}
