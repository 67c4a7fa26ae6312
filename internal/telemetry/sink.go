package telemetry

import (
	"errors"
	"io"
	"sync"
)

// #region sink-interface

// Sink consumes frames synchronously on the control-loop goroutine.
// A slow Sink delays the next tick; sinks that need asynchronous delivery
// wrap themselves in an AsyncSink. Sinks that hold resources also implement io.Closer.
type Sink interface {
	Emit(frame Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

// Emit calls fn(frame).
func (fn SinkFunc) Emit(frame Frame) { fn(frame) }

// Discard drops every frame.
var Discard Sink = SinkFunc(func(Frame) {})

// Close closes s if it implements io.Closer.
func Close(s Sink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// #endregion sink-interface

// #region multi-sink

// MultiSink fans every frame out to its sinks in registration order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out over sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: append([]Sink(nil), sinks...)}
}

// Add registers another consumer.
func (m *MultiSink) Add(s Sink) {
	m.sinks = append(m.sinks, s)
}

// Len returns the number of registered sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

// Emit delivers frame to every sink.
func (m *MultiSink) Emit(frame Frame) {
	for _, s := range m.sinks {
		s.Emit(frame)
	}
}

// Close closes every sink that implements io.Closer and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := Close(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// #endregion multi-sink

// #region memory-sink

// MemorySink keeps every frame in memory.
type MemorySink struct {
	mu     sync.Mutex
	frames []Frame
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends frame.
func (m *MemorySink) Emit(frame Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
}

// Frames returns a copy of the received frames.
func (m *MemorySink) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// Reset drops every stored frame.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// #endregion memory-sink
