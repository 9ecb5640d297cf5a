package ui

import "github.com/charmbracelet/lipgloss"

// Color palette - single blue accent for a calm, readable study surface.
const (
	ColorBlue     = "75"  // Primary accent - soft sky blue
	ColorBlueDim  = "67"  // Dimmed blue for labels
	ColorWhite    = "255" // Headers, important text
	ColorGray     = "245" // Secondary text
	ColorDarkGray = "238" // Separators, snippets
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings, low confidence
	ColorGreen    = "77"  // Ready/positive states
)

// Styles holds the terminal styles used by the renderers.
type Styles struct {
	Header   lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Dim      lipgloss.Style
	Label    lipgloss.Style
	Citation lipgloss.Style
	Panel    lipgloss.Style
}

// DefaultStyles returns styled components for interactive terminals.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueDim)),
		Citation: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle(),
		Success:  lipgloss.NewStyle(),
		Warning:  lipgloss.NewStyle(),
		Error:    lipgloss.NewStyle(),
		Dim:      lipgloss.NewStyle(),
		Label:    lipgloss.NewStyle(),
		Citation: lipgloss.NewStyle(),
		Panel:    lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
