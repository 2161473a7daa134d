package bridge

import (
	"sort"
	"sync"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

// Key identifies one binding: events named Event on Channel are dispatched
// as actions of type ActionType.
type Key struct {
	Channel    string `json:"channel" yaml:"channel"`
	Event      string `json:"event" yaml:"event"`
	ActionType string `json:"actionType" yaml:"actionType"`
}

// Registry maps channel → event → action type → binding token.
// It holds at most one binding per Key.
type Registry struct {
	mu      sync.Mutex
	entries map[string]map[string]map[string]transport.BindingID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]map[string]map[string]transport.BindingID)}
}

// Lookup returns the binding token stored for k.
func (r *Registry) Lookup(k Key) (transport.BindingID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.entries[k.Channel][k.Event][k.ActionType]
	return id, ok
}

// HasEvent reports whether any binding exists for event on channel.
func (r *Registry) HasEvent(channel, event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[channel][event]) > 0
}

// Put stores id under k, replacing any previous token.
func (r *Registry) Put(k Key, id transport.BindingID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events, ok := r.entries[k.Channel]
	if !ok {
		events = make(map[string]map[string]transport.BindingID)
		r.entries[k.Channel] = events
	}
	types, ok := events[k.Event]
	if !ok {
		types = make(map[string]transport.BindingID)
		events[k.Event] = types
	}
	types[k.ActionType] = id
}

// Remove deletes k and prunes empty event and channel maps.
func (r *Registry) Remove(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.entries[k.Channel]
	types := events[k.Event]
	delete(types, k.ActionType)
	if len(types) == 0 {
		delete(events, k.Event)
	}
	if len(events) == 0 {
		delete(r.entries, k.Channel)
	}
}

// PurgeChannel drops every binding under channel and returns how many.
func (r *Registry) PurgeChannel(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, types := range r.entries[channel] {
		n += len(types)
	}
	delete(r.entries, channel)
	return n
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, events := range r.entries {
		for _, types := range events {
			n += len(types)
		}
	}
	return n
}

// Keys returns every bound Key sorted by channel, event, action type.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	keys := make([]Key, 0)
	for ch, events := range r.entries {
		for ev, types := range events {
			for at := range types {
				keys = append(keys, Key{Channel: ch, Event: ev, ActionType: at})
			}
		}
	}
	r.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Event != b.Event {
			return a.Event < b.Event
		}
		return a.ActionType < b.ActionType
	})
	return keys
}

// ---- commands --------------------------------------------------------------

// bind runs on the queue. It makes sure the channel is subscribed and binds
// a dispatching handler unless k is already bound.
func (b *Bridge) bind(k Key) {
	sock := b.Socket()
	if sock == nil {
		b.log.Warn("bridge: no socket attached", "channel", k.Channel)
		return
	}
	ch := sock.Channel(k.Channel)
	if ch == nil {
		ch = sock.Subscribe(k.Channel)
	}
	if _, ok := b.registry.Lookup(k); ok {
		b.log.Debug("bridge: already bound", "channel", k.Channel, "event", k.Event, "actionType", k.ActionType)
		return
	}
	id := ch.Bind(k.Event, func(data any) {
		b.store.Dispatch(action.ChannelEvent(k.ActionType, k.Channel, k.Event, data))
	})
	b.registry.Put(k, id)
	b.log.Debug("bridge: bound", "channel", k.Channel, "event", k.Event, "actionType", k.ActionType)
}

// unbind runs on the queue. Unknown channels, events and action types are
// reported and otherwise ignored.
func (b *Bridge) unbind(k Key) {
	sock := b.Socket()
	if sock == nil {
		b.log.Warn("bridge: no socket attached", "channel", k.Channel)
		return
	}
	ch := sock.Channel(k.Channel)
	if ch == nil {
		b.log.Warn("bridge: not subscribed to channel", "channel", k.Channel)
		return
	}
	if !b.registry.HasEvent(k.Channel, k.Event) {
		b.log.Warn("bridge: not subscribed to event", "channel", k.Channel, "event", k.Event)
		return
	}
	id, ok := b.registry.Lookup(k)
	if !ok {
		b.log.Warn("bridge: handler not registered for event",
			"channel", k.Channel, "event", k.Event, "actionType", k.ActionType)
		return
	}
	ch.Unbind(k.Event, id)
	b.registry.Remove(k)
	b.log.Debug("bridge: unbound", "channel", k.Channel, "event", k.Event, "actionType", k.ActionType)
}

// unbindChannel runs on the queue and tears down a whole channel.
func (b *Bridge) unbindChannel(name string) {
	sock := b.Socket()
	if sock == nil {
		b.log.Warn("bridge: no socket attached", "channel", name)
		return
	}
	if sock.Channel(name) == nil {
		b.log.Warn("bridge: not subscribed to channel", "channel", name)
		return
	}
	sock.Unsubscribe(name)
	if b.keepStale {
		return
	}
	if n := b.registry.PurgeChannel(name); n > 0 {
		b.log.Debug("bridge: purged bindings", "channel", name, "count", n)
	}
}
