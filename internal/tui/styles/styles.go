// Package styles holds the lipgloss palette and styles of the dashboard.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Worker status colors
	StatusIdle       = lipgloss.Color("#9CA3AF") // Gray
	StatusBusy       = lipgloss.Color("#10B981") // Green
	StatusGone       = lipgloss.Color("#60A5FA") // Blue
	StatusCrashed    = lipgloss.Color("#F87171") // Red
	StatusCompletion = lipgloss.Color("#A78BFA") // Purple

	// Header
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(BorderColor).
		MarginBottom(1)

	// Content area
	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	SectionTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Progress bar segments
	BarFilled = lipgloss.NewStyle().Foreground(SecondaryColor)
	BarEmpty  = lipgloss.NewStyle().Foreground(BorderColor)

	// Error message
	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// Success message
	SuccessMsg = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)

	// Warning message
	WarningMsg = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)
)

// StatusColor returns the color for a given worker status
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "idle":
		return StatusIdle
	case "busy":
		return StatusBusy
	case "gone":
		return StatusGone
	case "crashed":
		return StatusCrashed
	default:
		return MutedColor
	}
}

// StatusIcon returns an icon for a given worker status
func StatusIcon(status string) string {
	switch status {
	case "idle":
		return "○"
	case "busy":
		return "●"
	case "gone":
		return "✓"
	case "crashed":
		return "✗"
	default:
		return "?"
	}
}
