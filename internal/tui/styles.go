package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A42EE")).Bold(true)
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7FAFC")).Bold(true)
	helperStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
	optionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	advisoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))

	dotDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Render("●")
	dotCurrent = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Render("◉")
	dotVisited = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Render("○")
	dotPending = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")).Render("·")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(1, 2)
)
