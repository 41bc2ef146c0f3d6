package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/cragboard/internal/board"
	"github.com/sadopc/cragboard/internal/reconcile"
	"github.com/sadopc/cragboard/internal/store"
)

type calendarModel struct {
	ctx    context.Context
	visits *board.VisitBoard
	gyms   *board.GymBoard
	store  *store.Store
	now    func() time.Time
	width  int
	height int

	index     board.VisitIndex
	cursor    time.Time // selected date, midnight in board.Zone
	weekStart time.Weekday

	// Day list state. selectedKey is an occurrence key so the selection
	// survives snapshots that reorder or resolve visits.
	listFocus   bool
	listCursor  int
	selectedKey string

	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	formGym    *string
	formTime   *string
	formUnsure *bool
}

func newCalendarModel(ctx context.Context, v *board.VisitBoard, g *board.GymBoard, s *store.Store) calendarModel {
	gym, at, unsure := "", "", false
	c := calendarModel{
		ctx:        ctx,
		visits:     v,
		gyms:       g,
		store:      s,
		now:        time.Now,
		index:      board.VisitIndex{},
		weekStart:  time.Monday,
		formGym:    &gym,
		formTime:   &at,
		formUnsure: &unsure,
	}
	c.cursor = c.today()
	return c
}

func (c *calendarModel) setSize(w, h int) {
	c.width = w
	c.height = h
}

func (c calendarModel) today() time.Time {
	now := c.now().In(board.Zone)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, board.Zone)
}

func (c calendarModel) date() string {
	return c.cursor.Format("2006-01-02")
}

type calendarDataMsg struct {
	items     []board.VisitEvent
	weekStart time.Weekday
}

func (c calendarModel) loadData() tea.Cmd {
	return func() tea.Msg {
		ws := time.Monday
		if v, err := c.store.GetSetting(store.SettingWeekStart); err == nil && v == "sunday" {
			ws = time.Sunday
		}
		return calendarDataMsg{items: c.visits.Items(), weekStart: ws}
	}
}

// day returns the selected date's visits in list order with their keys.
func (c calendarModel) day() ([]board.VisitEvent, []string) {
	visits := c.index.Day(c.date()).Ordered()
	return visits, reconcile.OccurrenceKeys(visits)
}

func (c calendarModel) update(msg tea.Msg) (calendarModel, tea.Cmd) {
	if c.formActive && c.form != nil {
		return c.updateForm(msg)
	}

	switch msg := msg.(type) {
	case calendarDataMsg:
		c.index = board.IndexVisits(msg.items)
		c.weekStart = msg.weekStart
		c.restoreSelection()
		return c, nil

	case tea.KeyMsg:
		if c.listFocus {
			return c.updateList(msg)
		}
		switch {
		case key.Matches(msg, keys.Left):
			c.move(-1)
		case key.Matches(msg, keys.Right):
			c.move(1)
		case key.Matches(msg, keys.Up):
			c.move(-7)
		case key.Matches(msg, keys.Down):
			c.move(7)
		case key.Matches(msg, keys.Today):
			c.cursor = c.today()
			c.listCursor, c.selectedKey = 0, ""
		case key.Matches(msg, keys.Enter):
			if visits, occ := c.day(); len(visits) > 0 {
				c.listFocus = true
				c.listCursor = 0
				c.selectedKey = occ[0]
			}
		case key.Matches(msg, keys.New):
			return c.showForm()
		}
	}
	return c, nil
}

func (c *calendarModel) move(days int) {
	c.cursor = c.cursor.AddDate(0, 0, days)
	c.listCursor, c.selectedKey = 0, ""
}

func (c *calendarModel) restoreSelection() {
	visits, occ := c.day()
	if len(visits) == 0 {
		c.listFocus = false
		c.listCursor, c.selectedKey = 0, ""
		return
	}
	for i, k := range occ {
		if k == c.selectedKey {
			c.listCursor = i
			return
		}
	}
	c.listCursor = min(c.listCursor, len(visits)-1)
	c.selectedKey = occ[c.listCursor]
}

func (c calendarModel) updateList(msg tea.KeyMsg) (calendarModel, tea.Cmd) {
	visits, occ := c.day()
	switch {
	case key.Matches(msg, keys.Back):
		c.listFocus = false
		return c, nil
	case key.Matches(msg, keys.Up):
		if c.listCursor > 0 {
			c.listCursor--
		}
	case key.Matches(msg, keys.Down):
		if c.listCursor < len(visits)-1 {
			c.listCursor++
		}
	case key.Matches(msg, keys.New):
		return c.showForm()
	case key.Matches(msg, keys.Delete):
		if c.listCursor < len(visits) {
			return c, c.deleteVisit(visits[c.listCursor])
		}
	}
	if c.listCursor < len(occ) {
		c.selectedKey = occ[c.listCursor]
	}
	return c, nil
}

func (c calendarModel) showForm() (calendarModel, tea.Cmd) {
	names := c.gyms.Names()
	*c.formGym = ""
	if len(names) > 0 {
		*c.formGym = names[0]
	}
	*c.formTime = ""
	*c.formUnsure = false

	options := make([]huh.Option[string], len(names))
	for i, n := range names {
		options[i] = huh.NewOption(n, n)
	}

	c.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Gym").Options(options...).Value(c.formGym),
			huh.NewInput().Title("Time (HH:MM, optional)").Value(c.formTime).Validate(validateTime),
			huh.NewConfirm().Title("Not sure yet?").Value(c.formUnsure),
		).Title("Visit on " + c.cursor.Format("Mon, Jan 2")),
	).WithShowHelp(true).WithShowErrors(true)

	c.formActive = true
	return c, c.form.Init()
}

func validateTime(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t := board.NormalizeTime(s)
	if _, err := time.Parse("15:04", t); err != nil || len(t) != 5 {
		return errors.New("use HH:MM")
	}
	return nil
}

func (c calendarModel) updateForm(msg tea.Msg) (calendarModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			c.formActive = false
			c.form = nil
			return c, nil
		}
	}

	form, cmd := c.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		c.form = f
	}

	if c.form.State == huh.StateCompleted {
		c.formActive = false
		return c, c.submit(board.VisitEvent{
			Date:   c.date(),
			Gym:    *c.formGym,
			Time:   *c.formTime,
			Unsure: *c.formUnsure,
		})
	}

	return c, cmd
}

func (c calendarModel) submit(draft board.VisitEvent) tea.Cmd {
	return func() tea.Msg {
		name, err := c.store.ClimberName()
		if err != nil {
			return mutationDoneMsg{err: fmt.Errorf("read climber name: %w", err)}
		}
		draft.Name = name
		v, err := c.visits.Submit(c.ctx, draft)
		if errors.Is(err, board.ErrNoName) {
			return mutationDoneMsg{err: errors.New("set your name in Settings first")}
		}
		if err != nil {
			return mutationDoneMsg{err: err}
		}
		return mutationDoneMsg{text: fmt.Sprintf("Visit saved for %s", v.Date)}
	}
}

func (c calendarModel) deleteVisit(v board.VisitEvent) tea.Cmd {
	return func() tea.Msg {
		if err := c.visits.Delete(c.ctx, v.ID); err != nil {
			return mutationDoneMsg{err: err}
		}
		return mutationDoneMsg{text: "Visit deleted"}
	}
}

func (c calendarModel) view() string {
	if c.width < 20 {
		return "Terminal too small"
	}

	contentWidth := c.width - 4

	if c.formActive && c.form != nil {
		title := titleStyle.Render("New Visit")
		return activePanelStyle.Width(contentWidth).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", c.form.View()),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		c.renderMonth(contentWidth),
		c.renderDay(contentWidth),
	)
}

func (c calendarModel) renderMonth(w int) string {
	first := time.Date(c.cursor.Year(), c.cursor.Month(), 1, 0, 0, 0, 0, board.Zone)
	title := titleStyle.Render(first.Format("January 2006"))

	var head []string
	for i := range 7 {
		wd := time.Weekday((int(c.weekStart) + i) % 7)
		head = append(head, dayStyle.Foreground(activePalette.muted).Render(wd.String()[:2]))
	}

	rows := []string{title, "", lipgloss.JoinHorizontal(lipgloss.Top, head...)}

	today := c.today()
	lead := (int(first.Weekday()) - int(c.weekStart) + 7) % 7
	var cells []string
	for range lead {
		cells = append(cells, dayStyle.Render(""))
	}
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		cells = append(cells, c.renderCell(d, today))
		if len(cells) == 7 {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
			cells = nil
		}
	}
	if len(cells) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	style := panelStyle
	if !c.listFocus {
		style = activePanelStyle
	}
	return style.Width(w).Render(strings.Join(rows, "\n"))
}

func (c calendarModel) renderCell(d, today time.Time) string {
	day := c.index.Day(d.Format("2006-01-02"))
	label := fmt.Sprintf("%d", d.Day())
	switch {
	case len(day.Sure) > 0:
		label += "•"
	case len(day.Unsure) > 0:
		label += "?"
	}

	switch {
	case d.Equal(c.cursor):
		return cursorDayStyle.Render(label)
	case d.Equal(today):
		return todayStyle.Render(label)
	case len(day.All) > 0:
		return busyDayStyle.Render(label)
	}
	return dayStyle.Render(label)
}

func (c calendarModel) renderDay(w int) string {
	title := titleStyle.Render(c.cursor.Format("Monday, January 2"))
	if gyms := c.index.Gyms(c.date(), 3); len(gyms) > 0 {
		title += mutedStyle.Render("  " + strings.Join(gyms, ", "))
	}

	visits, _ := c.day()
	if len(visits) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("Nobody is climbing yet. Press n to join."),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title}
	for i, v := range visits {
		cursor := "  "
		style := normalItemStyle
		if c.listFocus && i == c.listCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		at := v.Time
		if at == "" {
			at = "--:--"
		}
		line := style.Render(fmt.Sprintf("%s%s  %-18s %s", cursor, at, truncate(v.Name, 18), v.Gym))
		switch {
		case v.Pending:
			line += pendingStyle.Render("  saving…")
		case v.Unsure:
			line += unsureStyle.Render("  maybe")
		}
		rows = append(rows, line)
	}

	hint := "  enter: select  n: join  t: today"
	if c.listFocus {
		hint = "  d: delete  n: join  esc: back"
	}
	rows = append(rows, "", mutedStyle.Render(hint))

	style := panelStyle
	if c.listFocus {
		style = activePanelStyle
	}
	return style.Width(w).Render(strings.Join(rows, "\n"))
}
