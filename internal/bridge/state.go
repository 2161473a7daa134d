package bridge

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

// ReadinessMode selects how a disconnected signal affects readiness.
type ReadinessMode int

const (
	// ReadinessCompat treats a disconnected signal like connected: it marks
	// the connection ready but does not drain the queue.
	ReadinessCompat ReadinessMode = iota
	// ReadinessStrict only treats connected as ready; disconnected clears
	// readiness so queued commands wait for the next connect.
	ReadinessStrict
)

func (m ReadinessMode) String() string {
	switch m {
	case ReadinessCompat:
		return "compat"
	case ReadinessStrict:
		return "strict"
	default:
		return fmt.Sprintf("ReadinessMode(%d)", int(m))
	}
}

// ParseReadinessMode parses "compat" or "strict". The empty string selects
// ReadinessCompat.
func ParseReadinessMode(s string) (ReadinessMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "compat":
		return ReadinessCompat, nil
	case "strict":
		return ReadinessStrict, nil
	default:
		return 0, fmt.Errorf("unknown readiness mode %q (want compat or strict)", s)
	}
}

// stateMachine relays transport lifecycle callbacks to the store and owns
// the readiness flag gating the command queue.
type stateMachine struct {
	mode  ReadinessMode
	store Dispatcher
	log   *slog.Logger
	drain func()
	ready atomic.Bool
	discs atomic.Int64

	mu      sync.Mutex
	current transport.State
}

func (m *stateMachine) isReady() bool { return m.ready.Load() }

func (m *stateMachine) state() transport.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return transport.StateInitialized
	}
	return m.current
}

func (m *stateMachine) onStateChange(change transport.StateChange) {
	m.mu.Lock()
	m.current = change.Current
	m.mu.Unlock()

	a, ok := action.Lifecycle(change)
	if !ok {
		return
	}
	m.log.Debug("bridge: state change", "previous", change.Previous, "current", change.Current)
	m.store.Dispatch(a)
}

func (m *stateMachine) onConnected() {
	m.ready.Store(true)
	m.drain()
}

func (m *stateMachine) onDisconnected() {
	m.discs.Add(1)
	switch m.mode {
	case ReadinessStrict:
		m.ready.Store(false)
	default:
		m.ready.Store(true)
	}
	m.log.Info("bridge: disconnected", "mode", m.mode, "ready", m.ready.Load())
}
