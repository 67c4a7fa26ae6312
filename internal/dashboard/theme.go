package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// Theme defines the dashboard palette.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
}

// DefaultTheme returns the ANSI-256 palette used by every panel.
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("12"),  // Blue
		Secondary: lipgloss.Color("14"),  // Cyan
		Success:   lipgloss.Color("10"),  // Green
		Warning:   lipgloss.Color("11"),  // Yellow
		Error:     lipgloss.Color("9"),   // Red
		Muted:     lipgloss.Color("240"), // Gray
	}
}

// phaseColor maps a loop phase to a palette entry.
func (t Theme) phaseColor(phase string) lipgloss.Color {
	switch {
	case phase == world.PhaseDoneSuccess || phase == world.PhaseGoalReached:
		return t.Success
	case phase == world.PhaseDoneFailure:
		return t.Error
	case world.IsReplanPhase(phase):
		return t.Warning
	default:
		return t.Primary
	}
}
