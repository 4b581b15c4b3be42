package events

import "liquidstake/core/types"

// Event represents a structured state change emitted by the pool.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans every event out to each wrapped emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Buffer holds events until Flush hands them to an emitter. Operations use it
// so that nothing is published for a step that is later rolled back.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Flush publishes the buffered events and empties the buffer.
func (b *Buffer) Flush(to Emitter) {
	pending := b.pending
	b.pending = nil
	if to == nil {
		return
	}
	for _, evt := range pending {
		to.Emit(evt)
	}
}

// Reset drops the buffered events.
func (b *Buffer) Reset() { b.pending = nil }

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }

// Recorder keeps every emitted event. It is intended for tests and for
// in-process subscribers that poll.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) { r.Events = append(r.Events, evt) }

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, evt := range r.Events {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}
