// Package memory provides an in-process transport.Socket driven by the
// caller. It backs the bridge tests and `pusherbridge listen --dry-run`.
package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

// Channel is an in-memory channel subscription.
type Channel struct {
	transport.Bindings
	name string
}

func (c *Channel) Name() string { return c.name }

// Socket is an in-memory transport.Socket. State transitions and channel
// events are injected with SetState, Connect, Disconnect and Emit.
type Socket struct {
	life   transport.Lifecycle
	appKey string
	opts   transport.Options

	mu       sync.Mutex
	id       string
	channels map[string]*Channel
}

// New creates a Socket in the initialized state.
func New(appKey string, opts transport.Options) *Socket {
	return &Socket{
		appKey:   appKey,
		opts:     opts,
		channels: make(map[string]*Channel),
	}
}

// Factory is a transport.Factory producing memory sockets.
func Factory(appKey string, opts transport.Options) (transport.Socket, error) {
	return New(appKey, opts), nil
}

func (s *Socket) AppKey() string                   { return s.appKey }
func (s *Socket) Options() transport.Options       { return s.opts }
func (s *Socket) State() transport.State           { return s.life.State() }
func (s *Socket) Connection() transport.Connection { return &s.life }

// ID returns the socket id assigned on the last successful connect.
func (s *Socket) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetState reports a raw state transition, recognised or not.
func (s *Socket) SetState(state transport.State) bool {
	return s.life.Transition(state)
}

// Connect walks through connecting to connected.
func (s *Socket) Connect() {
	s.life.Transition(transport.StateConnecting)
	s.mu.Lock()
	s.id = uuid.NewString()
	s.mu.Unlock()
	s.life.Transition(transport.StateConnected)
}

// Disconnect reports a transition to disconnected.
func (s *Socket) Disconnect() {
	s.life.Transition(transport.StateDisconnected)
}

func (s *Socket) Channel(name string) transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil
	}
	return ch
}

func (s *Socket) Subscribe(name string) transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		ch = &Channel{name: name}
		s.channels[name] = ch
	}
	return ch
}

func (s *Socket) Unsubscribe(name string) {
	s.mu.Lock()
	ch, ok := s.channels[name]
	delete(s.channels, name)
	s.mu.Unlock()
	if ok {
		ch.Clear()
	}
}

// Emit delivers data to the handlers bound to event on channel and returns
// the number of handlers called. Unsubscribed channels receive nothing.
func (s *Socket) Emit(channel, event string, data any) int {
	s.mu.Lock()
	ch, ok := s.channels[channel]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return ch.Emit(event, data)
}

// BindCount returns the number of handlers bound to event on channel.
func (s *Socket) BindCount(channel, event string) int {
	s.mu.Lock()
	ch, ok := s.channels[channel]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return ch.Count(event)
}

// Subscriptions lists subscribed channel names in sorted order.
func (s *Socket) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.channels))
	for n := range s.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
