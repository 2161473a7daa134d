package bus

import (
	"maps"
	"sync"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

// State is the view of the connection and traffic kept by the default
// reducer.
type State struct {
	Connection  transport.State `json:"connection"`
	Previous    transport.State `json:"previous,omitempty"`
	Transitions int             `json:"transitions"`
	Messages    map[string]int  `json:"messages"` // channel actions by type
	LastChannel string          `json:"lastChannel,omitempty"`
	LastEvent   string          `json:"lastEvent,omitempty"`
}

// Reducer computes the next state. It must not mutate prev.
type Reducer func(prev State, a action.Action) State

// Reduce is the default reducer.
func Reduce(prev State, a action.Action) State {
	next := prev
	if a.IsLifecycle() {
		if a.Payload != nil {
			next.Previous = a.Payload.Previous
			next.Connection = a.Payload.Current
		}
		next.Transitions++
		return next
	}
	next.Messages = maps.Clone(prev.Messages)
	if next.Messages == nil {
		next.Messages = make(map[string]int)
	}
	next.Messages[a.Type]++
	next.LastChannel = a.Channel
	next.LastEvent = a.Event
	return next
}

// Listener is notified after every dispatch with the new state.
type Listener func(s State, a action.Action)

// Store is a synchronous reducer store. Dispatch applies the reducer under
// a lock, then notifies listeners in registration order.
type Store struct {
	reducer Reducer

	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewStore creates a Store. A nil reducer selects Reduce.
func NewStore(r Reducer) *Store {
	if r == nil {
		r = Reduce
	}
	return &Store{
		reducer:   r,
		state:     State{Connection: transport.StateInitialized, Messages: map[string]int{}},
		listeners: make(map[int]Listener),
	}
}

func (s *Store) Dispatch(a action.Action) {
	s.mu.Lock()
	s.state = s.reducer(s.state, a)
	st := s.state
	ls := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		ls = append(ls, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(st, a)
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Messages = maps.Clone(s.state.Messages)
	return st
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.order = append(s.order, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.listeners[id]; !ok {
			return
		}
		delete(s.listeners, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}
