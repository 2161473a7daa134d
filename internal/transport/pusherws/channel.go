package pusherws

import (
	"fmt"
	"strings"
	"sync"

	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

// Channel is a Pusher channel subscription.
type Channel struct {
	transport.Bindings
	name string
	s    *Socket

	mu         sync.Mutex
	subscribed bool
}

func (c *Channel) Name() string { return c.name }

// Subscribed reports whether the server confirmed the subscription on the
// current connection.
func (c *Channel) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *Channel) setSubscribed(v bool) {
	c.mu.Lock()
	c.subscribed = v
	c.mu.Unlock()
}

// Trigger sends a client event. Pusher only accepts client events prefixed
// with "client-" on private and presence channels.
func (c *Channel) Trigger(event string, data any) error {
	if !strings.HasPrefix(event, "client-") {
		return fmt.Errorf("pusherws: client event %q must start with client-", event)
	}
	if !isPrivate(c.name) {
		return fmt.Errorf("pusherws: client events need a private or presence channel, got %q", c.name)
	}
	if !c.Subscribed() {
		return fmt.Errorf("pusherws: channel %q not subscribed", c.name)
	}
	s := c.s
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return s.write(conn, map[string]any{"event": event, "channel": c.name, "data": data})
}

func isPrivate(name string) bool {
	return strings.HasPrefix(name, "private-") || strings.HasPrefix(name, "presence-")
}
