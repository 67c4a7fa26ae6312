package telemetry

import (
	"sync"
	"sync/atomic"
)

// AsyncSink decouples a slow consumer from the control loop. Frames are queued
// in a bounded buffer; when it is full the frame is dropped and counted.
type AsyncSink struct {
	inner   Sink
	ch      chan Frame
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewAsyncSink starts a worker delivering to inner. buffer < 1 is treated as 1.
func NewAsyncSink(inner Sink, buffer int) *AsyncSink {
	if buffer < 1 {
		buffer = 1
	}
	a := &AsyncSink{
		inner: inner,
		ch:    make(chan Frame, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncSink) run() {
	defer close(a.done)
	for f := range a.ch {
		a.inner.Emit(f)
	}
}

// Emit enqueues frame without blocking.
func (a *AsyncSink) Emit(frame Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- frame:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of frames discarded so far.
func (a *AsyncSink) Dropped() uint64 {
	return a.dropped.Load()
}

// Close drains the queue, then closes inner if it is an io.Closer.
func (a *AsyncSink) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	<-a.done
	return Close(a.inner)
}
