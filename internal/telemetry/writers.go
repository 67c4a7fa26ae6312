package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region jsonl-sink

// JSONLSink writes one compact JSON frame per line.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewJSONLSink creates (or truncates) path, creating parent directories.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file %s: %w", path, err)
	}
	return &JSONLSink{path: path, f: f}, nil
}

// Path returns the output file path.
func (s *JSONLSink) Path() string { return s.path }

// Emit appends frame as a line. Write errors are logged, never propagated into the loop.
func (s *JSONLSink) Emit(frame Frame) {
	data, err := Encode(frame)
	if err != nil {
		log.Printf("[SINK] jsonl: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		log.Printf("[SINK] jsonl write %s: %v", s.path, err)
	}
}

// Close flushes and closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return s.f.Close()
}

// #endregion jsonl-sink

// #region stdout-sink

// stdoutLine is the compact record printed per frame.
type stdoutLine struct {
	Phase       string   `json:"phase"`
	Action      string   `json:"action"`
	Retries     int      `json:"retries"`
	Replans     int      `json:"replans"`
	LastError   *string  `json:"last_error"`
	SuccessRate *float64 `json:"success_rate"`
}

var (
	phaseOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	phaseBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	phaseWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	phaseRun  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	muted     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// StdoutSink prints a compact line per frame. On a terminal the line is styled;
// otherwise it is plain JSON.
type StdoutSink struct {
	w      io.Writer
	styled bool
}

// NewStdoutSink writes to w, styling output when w is a terminal.
func NewStdoutSink(w io.Writer) *StdoutSink {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &StdoutSink{w: w, styled: styled}
}

// Emit writes one line.
func (s *StdoutSink) Emit(frame Frame) {
	if s.styled {
		fmt.Fprintln(s.w, styledLine(frame))
		return
	}
	data, err := json.Marshal(stdoutLine{
		Phase:       frame.Phase,
		Action:      frame.CurrentAction,
		Retries:     frame.Retries,
		Replans:     frame.Replans,
		LastError:   frame.LastError,
		SuccessRate: frame.Metrics.SuccessRateLast10,
	})
	if err != nil {
		log.Printf("[SINK] stdout: %v", err)
		return
	}
	fmt.Fprintln(s.w, string(data))
}

// Phase tones used to color stdout lines.
const (
	toneRun  = "run"
	toneOK   = "ok"
	toneBad  = "bad"
	toneWarn = "warn"
)

func phaseTone(frame Frame) string {
	switch {
	case frame.Phase == world.PhaseDoneSuccess || frame.Phase == world.PhaseGoalReached:
		return toneOK
	case frame.Phase == world.PhaseDoneFailure:
		return toneBad
	case frame.LastError != nil || world.IsReplanPhase(frame.Phase):
		return toneWarn
	}
	return toneRun
}

func styledLine(frame Frame) string {
	style := phaseRun
	switch phaseTone(frame) {
	case toneOK:
		style = phaseOK
	case toneBad:
		style = phaseBad
	case toneWarn:
		style = phaseWarn
	}
	line := fmt.Sprintf("%s %-26s %-28s retries=%d replans=%d",
		muted.Render(fmt.Sprintf("t%03d", frame.World.Tick)),
		style.Render(frame.Phase), frame.CurrentAction, frame.Retries, frame.Replans)
	if frame.LastError != nil {
		line += " " + phaseBad.Render(*frame.LastError)
	}
	return line
}

// #endregion stdout-sink

// #region udp-sink

// UDPSink sends each frame as one JSON datagram, for lightweight bridge processes.
type UDPSink struct {
	conn net.Conn
}

// NewUDPSink dials addr (host:port).
func NewUDPSink(addr string) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp dial %s: %w", addr, err)
	}
	return &UDPSink{conn: conn}, nil
}

// Emit sends frame. Send errors are logged and dropped.
func (s *UDPSink) Emit(frame Frame) {
	data, err := Encode(frame)
	if err != nil {
		log.Printf("[SINK] udp: %v", err)
		return
	}
	if _, err := s.conn.Write(data); err != nil {
		log.Printf("[SINK] udp send: %v", err)
	}
}

// Close closes the socket.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// #endregion udp-sink
