package tui

import "github.com/charmbracelet/lipgloss"

type palette struct {
	primary   lipgloss.Color
	secondary lipgloss.Color
	accent    lipgloss.Color
	muted     lipgloss.Color
	success   lipgloss.Color
	warning   lipgloss.Color
	danger    lipgloss.Color
	bg        lipgloss.Color
	fg        lipgloss.Color
	subtle    lipgloss.Color
	highlight lipgloss.Color
}

var (
	// Chalk on slate.
	darkPalette = palette{
		primary:   "#E07A5F",
		secondary: "#81B29A",
		accent:    "#F2CC8F",
		muted:     "#6B6F80",
		success:   "#81B29A",
		warning:   "#F2A541",
		danger:    "#E5484D",
		bg:        "#1D1F27",
		fg:        "#E8E6E3",
		subtle:    "#3D4150",
		highlight: "#8FB8DE",
	}

	lightPalette = palette{
		primary:   "#C4512E",
		secondary: "#3F7D5C",
		accent:    "#B7791F",
		muted:     "#8A8F9C",
		success:   "#2F855A",
		warning:   "#C05621",
		danger:    "#C53030",
		bg:        "#FAF8F5",
		fg:        "#2D2F36",
		subtle:    "#CBD0D8",
		highlight: "#2B6CB0",
	}
)

var (
	activeTabStyle   lipgloss.Style
	inactiveTabStyle lipgloss.Style

	panelStyle       lipgloss.Style
	activePanelStyle lipgloss.Style

	dayStyle       lipgloss.Style
	todayStyle     lipgloss.Style
	cursorDayStyle lipgloss.Style
	busyDayStyle   lipgloss.Style

	pendingStyle lipgloss.Style
	unsureStyle  lipgloss.Style
	authorStyle  lipgloss.Style

	titleStyle     lipgloss.Style
	accentStyle    lipgloss.Style
	successStyle   lipgloss.Style
	warningStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	mutedStyle     lipgloss.Style
	highlightStyle lipgloss.Style

	headerStyle lipgloss.Style
	footerStyle lipgloss.Style

	selectedItemStyle lipgloss.Style
	normalItemStyle   lipgloss.Style

	currentTheme  string
	activePalette palette
)

func init() {
	applyTheme("dark")
}

// applyTheme rebuilds every style from the named palette. Unknown names
// fall back to dark.
func applyTheme(name string) {
	p := darkPalette
	if name == "light" {
		p = lightPalette
	} else {
		name = "dark"
	}
	currentTheme = name
	activePalette = p

	activeTabStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.primary).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(p.primary).
		Padding(0, 2)
	inactiveTabStyle = lipgloss.NewStyle().
		Foreground(p.muted).
		Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.subtle).
		Padding(1, 2)
	activePanelStyle = panelStyle.
		BorderForeground(p.primary)

	dayStyle = lipgloss.NewStyle().
		Width(5).
		Align(lipgloss.Center)
	todayStyle = dayStyle.
		Bold(true).
		Foreground(p.secondary)
	cursorDayStyle = dayStyle.
		Bold(true).
		Foreground(p.bg).
		Background(p.primary)
	busyDayStyle = dayStyle.
		Foreground(p.highlight)

	pendingStyle = lipgloss.NewStyle().Italic(true).Foreground(p.warning)
	unsureStyle = lipgloss.NewStyle().Italic(true).Foreground(p.muted)
	authorStyle = lipgloss.NewStyle().Bold(true).Foreground(p.secondary)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(p.fg)
	accentStyle = lipgloss.NewStyle().Foreground(p.accent)
	successStyle = lipgloss.NewStyle().Foreground(p.success)
	warningStyle = lipgloss.NewStyle().Foreground(p.warning)
	errorStyle = lipgloss.NewStyle().Foreground(p.danger)
	mutedStyle = lipgloss.NewStyle().Foreground(p.muted)
	highlightStyle = lipgloss.NewStyle().Foreground(p.highlight)

	headerStyle = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(p.muted).Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().Foreground(p.primary).Bold(true)
	normalItemStyle = lipgloss.NewStyle().Foreground(p.fg)
}
