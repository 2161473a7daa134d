// Package bus holds the dispatch targets actions flow into: a reducer store
// and a buffered action bus for streaming consumers.
package bus

import "github.com/crystaldolphin/pusherbridge/internal/action"

// Dispatcher receives actions synchronously and in order.
type Dispatcher interface {
	Dispatch(a action.Action)
}

// Tee dispatches every action to each target in turn.
type Tee []Dispatcher

func (t Tee) Dispatch(a action.Action) {
	for _, d := range t {
		d.Dispatch(a)
	}
}
