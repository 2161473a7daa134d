// Package transport defines the contract between the bridge and a
// Pusher-style publish/subscribe connection.
//
// Implementations own the network connection, the channel objects and any
// retry logic. The bridge only observes lifecycle callbacks and binds
// handlers to channel events.
package transport

import "time"

// State is the connection state reported by a transport.
// Transports may report values outside the recognised set (for example
// "initialized"); consumers must tolerate them.
type State string

const (
	StateInitialized  State = "initialized"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateUnavailable  State = "unavailable"
	StateFailed       State = "failed"
	StateDisconnected State = "disconnected"
)

// StateChange is the payload of a state_change event.
type StateChange struct {
	Previous State `json:"previous"`
	Current  State `json:"current"`
}

// Handler receives the data of one channel event.
type Handler func(data any)

// BindingID identifies a single handler bound to a channel event.
// It is the token Unbind needs to remove exactly that handler.
type BindingID uint64

// Channel is a named subscription on the transport.
type Channel interface {
	Name() string
	Bind(event string, h Handler) BindingID
	Unbind(event string, id BindingID)
}

// Connection exposes the transport's lifecycle events.
type Connection interface {
	BindStateChange(fn func(StateChange))
	BindConnected(fn func())
	BindDisconnected(fn func())
}

// Socket is a connected (or connecting) transport instance.
type Socket interface {
	Connection() Connection
	// Channel returns the subscribed channel with the given name, or nil.
	Channel(name string) Channel
	// Subscribe creates the channel subscription if needed and returns it.
	Subscribe(name string) Channel
	Unsubscribe(name string)
}

// StateReporter is implemented by sockets that can report their current
// state.
type StateReporter interface {
	State() State
}

// Options configures a transport instance.
type Options struct {
	Cluster         string
	Host            string
	Port            int
	UseTLS          bool
	ActivityTimeout time.Duration
	PongTimeout     time.Duration
	ReconnectDelay  time.Duration
	AuthEndpoint    string
}

// Merge returns o with every non-zero field of override applied on top.
func (o Options) Merge(override Options) Options {
	if override.Cluster != "" {
		o.Cluster = override.Cluster
	}
	if override.Host != "" {
		o.Host = override.Host
	}
	if override.Port != 0 {
		o.Port = override.Port
	}
	if override.UseTLS {
		o.UseTLS = true
	}
	if override.ActivityTimeout != 0 {
		o.ActivityTimeout = override.ActivityTimeout
	}
	if override.PongTimeout != 0 {
		o.PongTimeout = override.PongTimeout
	}
	if override.ReconnectDelay != 0 {
		o.ReconnectDelay = override.ReconnectDelay
	}
	if override.AuthEndpoint != "" {
		o.AuthEndpoint = override.AuthEndpoint
	}
	return o
}

// Factory constructs a Socket for an application key.
type Factory func(appKey string, opts Options) (Socket, error)
