// Package dashboard renders live telemetry frames in a terminal UI.
package dashboard

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
)

// #region channel-sink

// ChannelSink hands frames from the control loop to the UI goroutine.
// Emit never blocks; frames that do not fit the buffer are dropped and counted.
type ChannelSink struct {
	mu      sync.Mutex
	ch      chan telemetry.Frame
	closed  bool
	dropped atomic.Int64
}

// NewChannelSink creates a sink buffering up to buffer frames.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan telemetry.Frame, buffer)}
}

func (s *ChannelSink) Emit(f telemetry.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- f:
	default:
		s.dropped.Add(1)
	}
}

// Frames returns the receive side. It is closed by Close.
func (s *ChannelSink) Frames() <-chan telemetry.Frame { return s.ch }

// Dropped returns the number of frames discarded so far.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// Close ends the stream. Buffered frames remain readable.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// #endregion channel-sink

// #region messages

// frameMsg carries one frame into Update.
type frameMsg telemetry.Frame

// sourceClosedMsg is sent once the frame channel is drained and closed.
type sourceClosedMsg struct{}

// waitForFrame blocks on ch and delivers the next frame as a message.
func waitForFrame(ch <-chan telemetry.Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return sourceClosedMsg{}
		}
		return frameMsg(f)
	}
}

// #endregion messages
