package simulation

import (
	"iter"

	"github.com/nvandessel/rnmc/internal/constants"
)

// Event is one reaction firing: which reaction, and the absolute simulated
// time at which it fired.
type Event struct {
	Reaction int     `json:"reaction"`
	Time     float64 `json:"time"`
}

type chunk struct {
	events [constants.HistoryChunkSize]Event
	used   int
	next   *chunk
}

// History is the append-only event log of one trajectory. Events are kept in
// a linked list of fixed-size chunks so long trajectories never pay for a
// reallocating copy.
//
// A History is owned by one goroutine at a time: the worker while stepping,
// then the coordinator once handed off.
type History struct {
	first  *chunk
	last   *chunk
	length int
}

// NewHistory returns an empty History.
func NewHistory() *History {
	c := &chunk{}
	return &History{first: c, last: c}
}

// Append records a firing of reaction at time.
func (h *History) Append(reaction int, time float64) {
	if h.last.used == constants.HistoryChunkSize {
		c := &chunk{}
		h.last.next = c
		h.last = c
	}
	h.last.events[h.last.used] = Event{Reaction: reaction, Time: time}
	h.last.used++
	h.length++
}

// Len returns the number of reactions fired.
func (h *History) Len() int {
	return h.length
}

// All iterates the events in firing order, yielding the zero-based step
// index with each event.
func (h *History) All() iter.Seq2[int, Event] {
	return func(yield func(int, Event) bool) {
		step := 0
		for c := h.first; c != nil; c = c.next {
			for i := 0; i < c.used; i++ {
				if !yield(step, c.events[i]) {
					return
				}
				step++
			}
		}
	}
}

// Events returns a copy of every event in firing order.
func (h *History) Events() []Event {
	out := make([]Event, 0, h.length)
	for _, e := range h.All() {
		out = append(out, e)
	}
	return out
}

// Release drops every chunk. The History is empty afterwards.
func (h *History) Release() {
	c := &chunk{}
	h.first = c
	h.last = c
	h.length = 0
}
