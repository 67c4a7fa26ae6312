package dashboard

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

const (
	// recentActions bounds the per-episode action timeline.
	recentActions = 12
	// recentOutcomes bounds the scoreboard history.
	recentOutcomes = 10
)

// actionEntry is one row of the action timeline.
type actionEntry struct {
	tick   int
	action string
	phase  string
	err    string
}

// Model is the Bubble Tea model for the live dashboard.
type Model struct {
	frames <-chan telemetry.Frame
	title  string

	latest   *telemetry.Frame
	actions  []actionEntry
	episode  string
	received int

	episodes  int
	successes int
	outcomes  []bool
	failures  map[string]int

	paused bool
	closed bool
	width  int
	height int
}

// New creates a model reading frames from ch. title labels the header.
func New(ch <-chan telemetry.Frame, title string) Model {
	return Model{
		frames:   ch,
		title:    title,
		failures: make(map[string]int),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForFrame(m.frames)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameMsg:
		if !m.paused {
			m = m.apply(telemetry.Frame(msg))
		}
		return m, waitForFrame(m.frames)

	case sourceClosedMsg:
		m.closed = true
	}
	return m, nil
}

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "p", " ":
		m.paused = !m.paused
	case "r":
		m.episodes, m.successes = 0, 0
		m.outcomes = nil
		m.failures = make(map[string]int)
	}
	return m, nil
}

// apply folds one frame into the model.
func (m Model) apply(f telemetry.Frame) Model {
	m.received++
	if f.EpisodeID != m.episode {
		m.episode = f.EpisodeID
		m.actions = nil
	}
	m.latest = &f

	entry := actionEntry{
		tick:   f.World.Tick,
		action: f.CurrentAction,
		phase:  f.Phase,
		err:    telemetry.Deref(f.LastError),
	}
	m.actions = append(m.actions, entry)
	if len(m.actions) > recentActions {
		m.actions = m.actions[len(m.actions)-recentActions:]
	}

	if world.IsTerminalPhase(f.Phase) {
		m.episodes++
		ok := f.Phase == world.PhaseDoneSuccess
		if ok {
			m.successes++
		} else if reason := telemetry.Deref(f.Metrics.FailReason); reason != "" {
			m.failures[reason]++
		}
		m.outcomes = append(m.outcomes, ok)
		if len(m.outcomes) > recentOutcomes {
			m.outcomes = m.outcomes[len(m.outcomes)-recentOutcomes:]
		}
	}
	return m
}

// recentRate returns the success rate over the last outcomes seen.
func (m Model) recentRate() (float64, bool) {
	if len(m.outcomes) == 0 {
		return 0, false
	}
	n := 0
	for _, ok := range m.outcomes {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(m.outcomes)), true
}

// Run starts the dashboard on the alternate screen and blocks until it exits.
func Run(ch <-chan telemetry.Frame, title string) error {
	p := tea.NewProgram(New(ch, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
