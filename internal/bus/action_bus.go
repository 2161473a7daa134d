package bus

import "github.com/crystaldolphin/pusherbridge/internal/action"

// ActionBus carries dispatched actions to a single consumer goroutine.
// The bridge calls Dispatch; the consumer reads via Subscribe.
// Dispatch blocks once the buffer is full so actions are never dropped or
// reordered.
type ActionBus struct {
	ch chan action.Action
}

func NewActionBus(bufSize int) *ActionBus {
	return &ActionBus{ch: make(chan action.Action, bufSize)}
}

// Dispatch delivers an action to the bus.
func (b *ActionBus) Dispatch(a action.Action) {
	b.ch <- a
}

// Subscribe returns a receive-only view of the bus.
func (b *ActionBus) Subscribe() <-chan action.Action {
	return b.ch
}

// Len returns the number of buffered actions.
func (b *ActionBus) Len() int { return len(b.ch) }
