package transport

import (
	"slices"
	"sync"
)

// Lifecycle implements Connection for transports: it tracks the current
// state and fans transitions out to bound callbacks.
type Lifecycle struct {
	mu             sync.Mutex
	state          State
	onChange       []func(StateChange)
	onConnected    []func()
	onDisconnected []func()
}

func (l *Lifecycle) BindStateChange(fn func(StateChange)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	l.mu.Unlock()
}

func (l *Lifecycle) BindConnected(fn func()) {
	l.mu.Lock()
	l.onConnected = append(l.onConnected, fn)
	l.mu.Unlock()
}

func (l *Lifecycle) BindDisconnected(fn func()) {
	l.mu.Lock()
	l.onDisconnected = append(l.onDisconnected, fn)
	l.mu.Unlock()
}

// State returns the current state; StateInitialized before any transition.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == "" {
		return StateInitialized
	}
	return l.state
}

// Transition moves to next and notifies listeners: first every state_change
// callback, then the connected or disconnected callbacks when next is one of
// those states. A transition to the current state is ignored.
// It reports whether a transition happened.
func (l *Lifecycle) Transition(next State) bool {
	l.mu.Lock()
	prev := l.state
	if prev == "" {
		prev = StateInitialized
	}
	if prev == next {
		l.mu.Unlock()
		return false
	}
	l.state = next
	onChange := slices.Clone(l.onChange)
	var specific []func()
	switch next {
	case StateConnected:
		specific = append(specific, l.onConnected...)
	case StateDisconnected:
		specific = append(specific, l.onDisconnected...)
	}
	l.mu.Unlock()

	change := StateChange{Previous: prev, Current: next}
	for _, fn := range onChange {
		fn(change)
	}
	for _, fn := range specific {
		fn()
	}
	return true
}
