package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
)

const (
	gaugeWidth = 20
	panelWidth = 48
)

// View implements tea.Model.
func (m Model) View() string {
	header := m.renderHeader()
	if m.latest == nil {
		return header + "\n\n" + lipgloss.NewStyle().Foreground(DefaultTheme().Muted).Render("waiting for frames...")
	}

	left := lipgloss.JoinVertical(lipgloss.Left, m.renderPlan(), m.renderTimeline())
	right := lipgloss.JoinVertical(lipgloss.Left, m.renderWorld(), m.renderRobot(), m.renderScoreboard())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)

	return lipgloss.JoinVertical(lipgloss.Left, header, m.renderStatusBar(), body, m.renderHelp())
}

func panel(title string, content string) string {
	theme := DefaultTheme()
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Muted).
		Padding(0, 1).
		Width(panelWidth)
	return box.Render(titleStyle.Render(title) + "\n" + content)
}

// renderHeader renders the title line with stream state.
func (m Model) renderHeader() string {
	theme := DefaultTheme()
	state := lipgloss.NewStyle().Foreground(theme.Success).Render("live")
	switch {
	case m.closed:
		state = lipgloss.NewStyle().Foreground(theme.Muted).Render("stream closed")
	case m.paused:
		state = lipgloss.NewStyle().Foreground(theme.Warning).Render("paused")
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Render(m.title)
	return fmt.Sprintf("%s  %s  frames: %d", title, state, m.received)
}

// renderStatusBar renders phase, tick, counters and the last error.
func (m Model) renderStatusBar() string {
	theme := DefaultTheme()
	f := m.latest
	phase := lipgloss.NewStyle().Bold(true).Foreground(theme.phaseColor(f.Phase)).Render(f.Phase)

	lastErr := lipgloss.NewStyle().Foreground(theme.Muted).Render("-")
	if e := telemetry.Deref(f.LastError); e != "" {
		lastErr = lipgloss.NewStyle().Foreground(theme.Error).Render(e)
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		phase,
		lipgloss.NewStyle().Render(fmt.Sprintf(" | episode %s | tick %d | action ", shortID(f.EpisodeID), f.World.Tick)),
		lipgloss.NewStyle().Foreground(theme.Primary).Render(f.CurrentAction),
		lipgloss.NewStyle().Render(" | retries "),
		lipgloss.NewStyle().Foreground(theme.Warning).Render(fmt.Sprintf("%d", f.Retries)),
		lipgloss.NewStyle().Render(" | replans "),
		lipgloss.NewStyle().Foreground(theme.Warning).Render(fmt.Sprintf("%d", f.Replans)),
		lipgloss.NewStyle().Render(" | error "),
		lastErr,
	)
}

// renderPlan lists the current plan, marking the step just executed.
func (m Model) renderPlan() string {
	theme := DefaultTheme()
	f := m.latest
	if len(f.Plan) == 0 {
		return panel("Plan", lipgloss.NewStyle().Foreground(theme.Muted).Render("(empty)"))
	}
	var sb strings.Builder
	marked := false
	for i, label := range f.Plan {
		if !marked && label == f.CurrentAction {
			marked = true
			sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Render(fmt.Sprintf("▸ %d. %s", i+1, label)))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s", i+1, label))
		}
		if i < len(f.Plan)-1 {
			sb.WriteString("\n")
		}
	}
	return panel("Plan", sb.String())
}

// renderTimeline lists the most recent actions of the current episode.
func (m Model) renderTimeline() string {
	theme := DefaultTheme()
	var sb strings.Builder
	for i, a := range m.actions {
		line := fmt.Sprintf("t=%02d %-24s", a.tick, a.action)
		phase := lipgloss.NewStyle().Foreground(theme.phaseColor(a.phase)).Render(a.phase)
		sb.WriteString(line + " " + phase)
		if a.err != "" {
			sb.WriteString(" " + lipgloss.NewStyle().Foreground(theme.Error).Render(a.err))
		}
		if i < len(m.actions)-1 {
			sb.WriteString("\n")
		}
	}
	return panel("Timeline", sb.String())
}

// renderWorld renders the tracked objects table.
func (m Model) renderWorld() string {
	theme := DefaultTheme()
	objects := m.latest.World.Objects
	if len(objects) == 0 {
		return panel("World", lipgloss.NewStyle().Foreground(theme.Muted).Render("no tracked objects"))
	}
	held := telemetry.Deref(m.latest.World.HeldObjectID)

	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Foreground(theme.Muted).Render(fmt.Sprintf("%-10s %-7s %5s %-4s %-4s", "id", "class", "conf", "vis", "bin")))
	for _, o := range objects {
		row := fmt.Sprintf("%-10s %-7s %5.2f %-4s %-4s", o.ID, o.Class, o.Confidence, yesNo(o.Visible), yesNo(o.InContainer))
		switch {
		case o.ID == held:
			row = lipgloss.NewStyle().Foreground(theme.Secondary).Render(row + " held")
		case o.InContainer:
			row = lipgloss.NewStyle().Foreground(theme.Success).Render(row)
		case !o.Visible:
			row = lipgloss.NewStyle().Foreground(theme.Muted).Render(row)
		}
		sb.WriteString("\n" + row)
	}
	return panel("World", sb.String())
}

// renderRobot renders battery and temperature gauges and the gripper state.
func (m Model) renderRobot() string {
	theme := DefaultTheme()
	rs := m.latest.World.RobotState

	batteryColor := theme.Success
	if rs.BatteryLevel < 20 {
		batteryColor = theme.Error
	} else if rs.BatteryLevel < 50 {
		batteryColor = theme.Warning
	}
	tempColor := theme.Secondary
	if rs.Temperature > 40 {
		tempColor = theme.Error
	}

	lines := []string{
		fmt.Sprintf("battery %s %5.1f%%", gauge(rs.BatteryLevel/100, batteryColor), rs.BatteryLevel),
		fmt.Sprintf("temp    %s %5.1fC", gauge((rs.Temperature-20)/30, tempColor), rs.Temperature),
		fmt.Sprintf("gripper %s", rs.GripperState),
	}
	return panel("Robot", strings.Join(lines, "\n"))
}

// renderScoreboard renders episode totals and the most common failures.
func (m Model) renderScoreboard() string {
	theme := DefaultTheme()
	rate := "-"
	if r, ok := m.recentRate(); ok {
		rate = fmt.Sprintf("%.0f%%", r*100)
	}
	lines := []string{
		fmt.Sprintf("episodes %d  successes %d  last %d: %s", m.episodes, m.successes, len(m.outcomes), rate),
	}

	type failure struct {
		reason string
		count  int
	}
	var fails []failure
	for r, c := range m.failures {
		fails = append(fails, failure{r, c})
	}
	sort.Slice(fails, func(i, j int) bool {
		if fails[i].count != fails[j].count {
			return fails[i].count > fails[j].count
		}
		return fails[i].reason < fails[j].reason
	})
	for i, f := range fails {
		if i == 3 {
			break
		}
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.Error).Render(fmt.Sprintf("%3d x %s", f.count, f.reason)))
	}
	return panel("Scoreboard", strings.Join(lines, "\n"))
}

func (m Model) renderHelp() string {
	return lipgloss.NewStyle().Foreground(DefaultTheme().Muted).Render("q quit · p pause · r reset scoreboard")
}

// gauge renders a fixed-width bar for a fraction in [0,1].
func gauge(frac float64, color lipgloss.Color) string {
	frac = max(0, min(1, frac))
	filled := int(frac*gaugeWidth + 0.5)
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(DefaultTheme().Muted).Render(strings.Repeat("░", gaugeWidth-filled))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
