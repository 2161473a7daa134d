// Package bridge connects a Pusher-style transport to a synchronous action
// store.
//
// Lifecycle transitions reported by the transport are dispatched as
// lifecycle actions. Subscribe, Unsubscribe and UnsubscribeChannel may be
// called at any time: they are queued and run in call order once the
// transport reports connected.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

var (
	// ErrNoSocket is returned when an operation needs a transport socket and
	// none has been attached yet.
	ErrNoSocket = errors.New("bridge: no socket attached")
	// ErrAttached is returned when a socket is attached twice.
	ErrAttached = errors.New("bridge: socket already attached")
	// ErrNotDelayed is returned by Start on a bridge not created with Delay.
	ErrNotDelayed = errors.New("bridge: not created with Delay")
)

// Dispatcher is the store actions are delivered to. Dispatch must process
// actions synchronously and in call order.
type Dispatcher interface {
	Dispatch(a action.Action)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(a action.Action)

func (f DispatchFunc) Dispatch(a action.Action) { f(a) }

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for diagnostics. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithReadinessMode selects how disconnected signals affect readiness.
// Defaults to ReadinessCompat.
func WithReadinessMode(m ReadinessMode) Option {
	return func(b *Bridge) { b.mode = m }
}

// WithKeepStaleBindings stops UnsubscribeChannel from purging the registry
// entries of the channel it tears down. A later Subscribe for one of those
// keys is then a no-op even though the new channel has no handler.
func WithKeepStaleBindings() Option {
	return func(b *Bridge) { b.keepStale = true }
}

// Bridge wires one transport socket to one store.
type Bridge struct {
	store     Dispatcher
	log       *slog.Logger
	mode      ReadinessMode
	keepStale bool

	machine  *stateMachine
	queue    *Queue
	registry *Registry

	mu            sync.Mutex
	socket        transport.Socket
	factory       transport.Factory
	appKey        string
	transportOpts transport.Options
	delayed       bool
}

// New creates a Bridge with no socket. Use Attach to hand it one.
func New(store Dispatcher, opts ...Option) *Bridge {
	b := &Bridge{
		store:    store,
		log:      slog.Default(),
		registry: NewRegistry(),
	}
	for _, o := range opts {
		o(b)
	}
	b.machine = &stateMachine{mode: b.mode, store: store, log: b.log}
	b.queue = NewQueue(b.machine.isReady, b.log)
	b.machine.drain = b.queue.Drain
	return b
}

// Configure creates the socket with factory right away and attaches it.
func Configure(store Dispatcher, factory transport.Factory, appKey string, topts transport.Options, opts ...Option) (*Bridge, error) {
	b := New(store, opts...)
	sock, err := factory(appKey, topts)
	if err != nil {
		return nil, fmt.Errorf("create socket: %w", err)
	}
	if err := b.Attach(sock); err != nil {
		return nil, err
	}
	return b, nil
}

// Delay records the store and transport settings without creating a socket.
// Commands issued before Start are queued.
func Delay(store Dispatcher, factory transport.Factory, appKey string, topts transport.Options, opts ...Option) *Bridge {
	b := New(store, opts...)
	b.factory = factory
	b.appKey = appKey
	b.transportOpts = topts
	b.delayed = true
	return b
}

// Start creates the socket for a delayed bridge. Non-zero fields of override
// take precedence over the options given to Delay.
func (b *Bridge) Start(override transport.Options) (transport.Socket, error) {
	b.mu.Lock()
	if !b.delayed {
		b.mu.Unlock()
		return nil, ErrNotDelayed
	}
	if b.socket != nil {
		b.mu.Unlock()
		return nil, ErrAttached
	}
	factory, key, topts := b.factory, b.appKey, b.transportOpts.Merge(override)
	b.mu.Unlock()

	sock, err := factory(key, topts)
	if err != nil {
		return nil, fmt.Errorf("create socket: %w", err)
	}
	if err := b.Attach(sock); err != nil {
		return nil, err
	}
	return sock, nil
}

// Attach binds the bridge to the lifecycle events of sock.
func (b *Bridge) Attach(sock transport.Socket) error {
	b.mu.Lock()
	if b.socket != nil {
		b.mu.Unlock()
		return ErrAttached
	}
	b.socket = sock
	b.mu.Unlock()

	conn := sock.Connection()
	conn.BindStateChange(b.machine.onStateChange)
	conn.BindConnected(b.machine.onConnected)
	conn.BindDisconnected(b.machine.onDisconnected)

	// A socket that connected before it was attached never fires connected
	// again for us.
	if r, ok := sock.(transport.StateReporter); ok && r.State() == transport.StateConnected {
		b.machine.onConnected()
	}
	return nil
}

// Socket returns the attached socket, or nil.
func (b *Bridge) Socket() transport.Socket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.socket
}

// Subscribe queues binding event on channel to actionType.
func (b *Bridge) Subscribe(channel, event, actionType string) {
	k := Key{Channel: channel, Event: event, ActionType: actionType}
	b.queue.Enqueue(func() { b.bind(k) })
}

// Unsubscribe queues removal of the binding created by Subscribe.
func (b *Bridge) Unsubscribe(channel, event, actionType string) {
	k := Key{Channel: channel, Event: event, ActionType: actionType}
	b.queue.Enqueue(func() { b.unbind(k) })
}

// UnsubscribeChannel queues teardown of the whole channel subscription.
func (b *Bridge) UnsubscribeChannel(channel string) {
	b.queue.Enqueue(func() { b.unbindChannel(channel) })
}

// GetChannel returns the channel handle, subscribing if needed. It is not
// queued.
func (b *Bridge) GetChannel(channel string) (transport.Channel, error) {
	sock := b.Socket()
	if sock == nil {
		return nil, ErrNoSocket
	}
	if ch := sock.Channel(channel); ch != nil {
		return ch, nil
	}
	return sock.Subscribe(channel), nil
}

// Ready reports whether queued commands may run.
func (b *Bridge) Ready() bool { return b.machine.isReady() }

// State returns the last state the transport reported.
func (b *Bridge) State() transport.State { return b.machine.state() }

// Mode returns the readiness mode.
func (b *Bridge) Mode() ReadinessMode { return b.mode }

// Pending returns the number of queued commands.
func (b *Bridge) Pending() int { return b.queue.Len() }

// Bindings returns the live bindings.
func (b *Bridge) Bindings() []Key { return b.registry.Keys() }

// Disconnects returns how many disconnected signals were observed.
func (b *Bridge) Disconnects() int64 { return b.machine.discs.Load() }
