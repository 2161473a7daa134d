// Package action builds the plain records the bridge dispatches to a store.
package action

import "github.com/crystaldolphin/pusherbridge/internal/transport"

// Lifecycle action types, one per recognised connection state.
const (
	Connecting   = "PUSHER-REDUX/CONNECTING"
	Connected    = "PUSHER-REDUX/CONNECTED"
	Unavailable  = "PUSHER-REDUX/UNAVAILABLE"
	Failed       = "PUSHER-REDUX/FAILED"
	Disconnected = "PUSHER-REDUX/DISCONNECTED"
)

// Action is an immutable record describing something that happened.
// Lifecycle actions carry Payload only; channel actions carry Channel,
// Event and Data only.
type Action struct {
	Type    string                 `json:"type"`
	Payload *transport.StateChange `json:"payload,omitempty"`
	Channel string                 `json:"channel,omitempty"`
	Event   string                 `json:"event,omitempty"`
	Data    any                    `json:"data,omitempty"`
}

// IsLifecycle reports whether a is one of the five lifecycle actions.
func (a Action) IsLifecycle() bool {
	_, ok := lifecycleStates[a.Type]
	return ok
}

var lifecycleTypes = map[transport.State]string{
	transport.StateConnecting:   Connecting,
	transport.StateConnected:    Connected,
	transport.StateUnavailable:  Unavailable,
	transport.StateFailed:       Failed,
	transport.StateDisconnected: Disconnected,
}

var lifecycleStates = func() map[string]transport.State {
	m := make(map[string]transport.State, len(lifecycleTypes))
	for s, t := range lifecycleTypes {
		m[t] = s
	}
	return m
}()

// LifecycleType returns the action type for state, or "" when the state is
// not one the bridge surfaces.
func LifecycleType(state transport.State) string {
	return lifecycleTypes[state]
}

// Lifecycle translates a state change. ok is false for unrecognised states,
// in which case nothing should be dispatched.
func Lifecycle(change transport.StateChange) (a Action, ok bool) {
	t := LifecycleType(change.Current)
	if t == "" {
		return Action{}, false
	}
	payload := change
	return Action{Type: t, Payload: &payload}, true
}

// ChannelEvent translates one message received on a channel.
func ChannelEvent(actionType, channel, event string, data any) Action {
	return Action{
		Type:    actionType,
		Channel: channel,
		Event:   event,
		Data:    data,
	}
}
