package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/cragboard/internal/board"
	"github.com/sadopc/cragboard/internal/export"
	"github.com/sadopc/cragboard/internal/poll"
	"github.com/sadopc/cragboard/internal/store"
)

// Deps are the collaborators the UI drives. Pollers may be nil, in which
// case refresh requests are ignored.
type Deps struct {
	Store  *store.Store
	Visits *board.VisitBoard
	Gyms   *board.GymBoard
	Chat   *board.ChatBoard

	VisitPoller *poll.Poller
	GymPoller   *poll.Poller
	ChatPoller  *poll.Poller
}

// App is the root Bubble Tea model.
type App struct {
	ctx    context.Context
	deps   Deps
	now    time.Time
	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	calendar calendarModel
	gyms     gymsModel
	stats    statsModel
	chat     chatModel
	settings settingsModel

	visitsCh <-chan struct{}
	gymsCh   <-chan struct{}
	chatCh   <-chan struct{}

	help   help.Model
	status string
	isErr  bool
}

// NewApp builds the UI. ctx bounds every network call the UI starts; the
// chat poller is started and stopped with the chat view.
func NewApp(ctx context.Context, d Deps) App {
	h := help.New()
	h.ShowAll = false

	if theme, err := d.Store.GetSetting(store.SettingTheme); err == nil {
		applyTheme(theme)
	}

	return App{
		ctx:        ctx,
		deps:       d,
		now:        time.Now(),
		activeView: viewCalendar,
		calendar:   newCalendarModel(ctx, d.Visits, d.Gyms, d.Store),
		gyms:       newGymsModel(ctx, d.Gyms),
		stats:      newStatsModel(d.Visits),
		chat:       newChatModel(ctx, d.Chat, d.Store),
		settings:   newSettingsModel(d.Store),
		visitsCh:   d.Visits.Subscribe(),
		gymsCh:     d.Gyms.Subscribe(),
		chatCh:     d.Chat.Subscribe(),
		help:       h,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.calendar.loadData(),
		a.gyms.refresh(),
		waitForChange(a.visitsCh, board.VisitsKey),
		waitForChange(a.gymsCh, board.GymsKey),
		waitForChange(a.chatCh, board.ChatKey),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.calendar.setSize(a.width, contentHeight)
		a.gyms.setSize(a.width, contentHeight)
		a.stats.setSize(a.width, contentHeight)
		a.chat.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			a.stopChat()
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Refresh):
			if p := a.poller(); p != nil {
				p.Trigger()
				a.status, a.isErr = "Refreshing "+p.Name(), false
			}
			return a, nil
		case key.Matches(msg, keys.Tab1):
			return a.switchTo(viewCalendar)
		case key.Matches(msg, keys.Tab2):
			return a.switchTo(viewGyms)
		case key.Matches(msg, keys.Tab3):
			return a.switchTo(viewStats)
		case key.Matches(msg, keys.Tab4):
			return a.switchTo(viewChat)
		case key.Matches(msg, keys.Tab5):
			return a.switchTo(viewSettings)
		case key.Matches(msg, keys.Tab):
			// Stats uses tab for its own mode switch.
			if a.activeView != viewStats {
				return a.switchTo((a.activeView + 1) % 5)
			}
		}

	case changedMsg:
		var cmd tea.Cmd
		switch msg.entity {
		case board.VisitsKey:
			cmd = tea.Batch(a.calendar.loadData(), a.stats.refresh(), waitForChange(a.visitsCh, board.VisitsKey))
		case board.GymsKey:
			cmd = tea.Batch(a.gyms.refresh(), waitForChange(a.gymsCh, board.GymsKey))
		case board.ChatKey:
			cmd = tea.Batch(a.chat.refresh(), waitForChange(a.chatCh, board.ChatKey))
		}
		return a, cmd

	case tickMsg:
		a.now = time.Time(msg)
		return a, tickCmd()

	case mutationDoneMsg:
		if msg.err != nil {
			a.status, a.isErr = msg.err.Error(), true
		} else if msg.text != "" {
			a.status, a.isErr = msg.text, false
		}
		return a, nil

	case statusMsg:
		a.status, a.isErr = msg.text, msg.isError
		return a, nil

	case settingsSavedMsg:
		if theme, err := a.deps.Store.GetSetting(store.SettingTheme); err == nil {
			applyTheme(theme)
		}
		a.status, a.isErr = "Settings saved", false
		return a, a.calendar.loadData()

	case exportDoneMsg:
		a.status, a.isErr = "Exported to "+msg.path, false
		a.exportPicking = false
		return a, nil

	case calendarDataMsg:
		var cmd tea.Cmd
		a.calendar, cmd = a.calendar.update(msg)
		return a, cmd

	case gymsDataMsg:
		var cmd tea.Cmd
		a.gyms, cmd = a.gyms.update(msg)
		return a, cmd

	case statsDataMsg:
		var cmd tea.Cmd
		a.stats, cmd = a.stats.update(msg)
		return a, cmd

	case chatDataMsg, chatOlderMsg:
		var cmd tea.Cmd
		a.chat, cmd = a.chat.update(msg)
		return a, cmd

	case settingsDataMsg:
		var cmd tea.Cmd
		a.settings, cmd = a.settings.update(msg)
		return a, cmd
	}

	return a.updateActiveView(msg)
}

// switchTo changes the active view. The chat poller only runs while the chat
// is on screen.
func (a App) switchTo(v viewState) (tea.Model, tea.Cmd) {
	if a.activeView == viewChat && v != viewChat {
		a.stopChat()
	}
	a.activeView = v
	if v == viewChat && a.deps.ChatPoller != nil {
		a.deps.ChatPoller.Start(a.ctx)
	}
	return a, a.refreshCurrentView()
}

func (a App) stopChat() {
	if a.deps.ChatPoller != nil {
		a.deps.ChatPoller.Stop()
	}
}

// poller returns the poller feeding the active view.
func (a App) poller() *poll.Poller {
	switch a.activeView {
	case viewCalendar, viewStats:
		return a.deps.VisitPoller
	case viewGyms:
		return a.deps.GymPoller
	case viewChat:
		return a.deps.ChatPoller
	}
	return nil
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewCalendar:
		a.calendar, cmd = a.calendar.update(msg)
	case viewGyms:
		a.gyms, cmd = a.gyms.update(msg)
	case viewStats:
		a.stats, cmd = a.stats.update(msg)
	case viewChat:
		a.chat, cmd = a.chat.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewCalendar:
		return a.calendar.formActive
	case viewGyms:
		return a.gyms.formActive
	case viewChat:
		return a.chat.typing
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewCalendar:
		return a.calendar.loadData()
	case viewGyms:
		return a.gyms.refresh()
	case viewStats:
		return a.stats.refresh()
	case viewChat:
		return a.chat.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewCalendar:
		content = a.calendar.view()
	case viewGyms:
		content = a.gyms.view()
	case viewStats:
		content = a.stats.view()
	case viewChat:
		content = a.chat.view()
	case viewSettings:
		content = a.settings.view()
	}

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	if a.exportPicking {
		content = a.renderExportPicker(contentHeight)
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(activePalette.primary).Render("cragboard")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.isErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	left := footerStyle.Render(helpView)
	right := a.renderSync() + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

// renderSync shows the state of the poller behind the active view.
func (a App) renderSync() string {
	p := a.poller()
	if p == nil {
		return ""
	}
	switch {
	case p.Loading():
		return highlightStyle.Render(" ⟳ syncing")
	case p.Failing() > 0:
		return warningStyle.Render(fmt.Sprintf(" ● offline, last sync %s", formatAgo(p.LastSuccess(), a.now)))
	case !p.Running():
		return mutedStyle.Render(" ■ paused")
	}
	return successStyle.Render(" ● synced " + formatAgo(p.LastSuccess(), a.now))
}

func (a App) renderExportPicker(_ int) string {
	title := titleStyle.Render("Export Visits")
	formats := []string{"CSV", "JSON"}
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range formats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < 1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(format int) tea.Cmd {
	visits := a.deps.Visits.Items()
	return func() tea.Msg {
		home, _ := os.UserHomeDir()
		dateStr := time.Now().In(board.Zone).Format("2006-01-02")

		var path string
		if format == 0 {
			path = filepath.Join(home, fmt.Sprintf("cragboard-visits-%s.csv", dateStr))
			if err := export.ToCSV(visits, path); err != nil {
				return statusMsg{text: fmt.Sprintf("CSV error: %v", err), isError: true}
			}
		} else {
			path = filepath.Join(home, fmt.Sprintf("cragboard-visits-%s.json", dateStr))
			if err := export.ToJSON(visits, path); err != nil {
				return statusMsg{text: fmt.Sprintf("JSON error: %v", err), isError: true}
			}
		}

		return exportDoneMsg{path: path}
	}
}
