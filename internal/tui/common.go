package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

// viewState represents the currently active view.
type viewState int

const (
	viewCalendar viewState = iota
	viewGyms
	viewStats
	viewChat
	viewSettings
)

var viewNames = []string{"Calendar", "Gyms", "Stats", "Chat", "Settings"}

// --- Messages ---

// changedMsg is delivered when a board signals a state change.
type changedMsg struct {
	entity string
}

// mutationDoneMsg reports the end of a network round-trip started by the UI.
type mutationDoneMsg struct {
	text string
	err  error
}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

// waitForChange blocks on a board subscription and reports the change.
// The receiver re-arms it after handling the message.
func waitForChange(ch <-chan struct{}, entity string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return changedMsg{entity: entity}
	}
}

// formatAgo renders t relative to now, or "never" for the zero time.
func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// pad right-pads s with spaces to n runes.
func pad(s string, n int) string {
	if k := len([]rune(s)); k < n {
		return s + strings.Repeat(" ", n-k)
	}
	return s
}
