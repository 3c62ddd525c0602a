package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on dark backgrounds
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextColor).
		Background(PrimaryColor).
		Padding(0, 1)

	// Toggle
	ToggleCheckbox      = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	ToggleCheckboxEmpty = lipgloss.NewStyle().Foreground(MutedColor)
	ToggleTrackOn       = lipgloss.NewStyle().Background(SecondaryColor).Foreground(TextColor)
	ToggleTrackOff      = lipgloss.NewStyle().Background(SurfaceColor).Foreground(MutedColor)
	ToggleLabel         = lipgloss.NewStyle().Foreground(TextColor)
	ToggleFocused       = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	ToggleStateOn       = lipgloss.NewStyle().Foreground(SecondaryColor)
	ToggleStateOff      = lipgloss.NewStyle().Foreground(MutedColor)

	// Editor rows
	RowCursor   = lipgloss.NewStyle().Foreground(SecondaryColor)
	RowName     = lipgloss.NewStyle().Foreground(TextColor).Bold(true)
	RowNameDim  = lipgloss.NewStyle().Foreground(MutedColor)
	RowTag      = lipgloss.NewStyle().Foreground(PrimaryColor)
	RowValue    = lipgloss.NewStyle().Foreground(TextColor)
	Direction   = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	ErrorMsg    = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	SuccessMsg  = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	HelpBar     = lipgloss.NewStyle().Foreground(MutedColor).MarginTop(1)
	HelpKey     = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	ExprPreview = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Foreground(MutedColor).
			Padding(0, 1)
)
