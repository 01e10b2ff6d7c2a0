package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/studyhall-dev/studyhall/internal/theme"
)

// Layout manages the terminal frame dimensions shared by all views.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	TimerHeight     int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions. The
// header, timer strip, and status bar each take one row.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		TimerHeight:     1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header, timer strip, and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.TimerHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar with a title and the
// signed-in identity on the right.
func (l Layout) RenderHeader(title string, identity string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	identityRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(identity)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(identityRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		identityRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, timer strip, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	timerStrip string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		timerStrip,
		content,
		statusBar,
	)
}
