package transport

import "sync"

type binding struct {
	id BindingID
	h  Handler
}

// Bindings is an event → handler table shared by transport implementations.
// The zero value is ready to use.
type Bindings struct {
	mu       sync.Mutex
	next     BindingID
	handlers map[string][]binding
}

// Bind registers h for event and returns its token.
func (b *Bindings) Bind(event string, h Handler) BindingID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string][]binding)
	}
	b.next++
	b.handlers[event] = append(b.handlers[event], binding{id: b.next, h: h})
	return b.next
}

// Unbind removes the handler registered under id. Unknown ids are ignored.
func (b *Bindings) Unbind(event string, id BindingID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i, bd := range list {
		if bd.id != id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(b.handlers, event)
		} else {
			b.handlers[event] = list
		}
		return
	}
}

// Emit calls every handler bound to event, in bind order, and returns how
// many were called. Handlers run without the table lock held so they may
// bind or unbind.
func (b *Bindings) Emit(event string, data any) int {
	b.mu.Lock()
	list := append([]binding(nil), b.handlers[event]...)
	b.mu.Unlock()
	for _, bd := range list {
		bd.h(data)
	}
	return len(list)
}

// Count returns the number of handlers bound to event.
func (b *Bindings) Count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[event])
}

// Clear drops every binding.
func (b *Bindings) Clear() {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
}
