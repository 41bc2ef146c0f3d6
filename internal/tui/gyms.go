package tui

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/cragboard/internal/board"
)

type gymsModel struct {
	ctx    context.Context
	gyms   *board.GymBoard
	width  int
	height int

	items       []board.GymEntry
	cursor      int
	viewingCard bool // true = viewing the selected gym's details

	formActive bool
	form       *huh.Form
	editingID  string // empty for a new gym

	// Details of the gym being edited. Lists and other values the text form
	// cannot show are carried over from here unchanged.
	editingDetails map[string]any

	// Form field pointers (survive value copies)
	formName    *string
	formIcon    *string
	formDetails *string
}

func newGymsModel(ctx context.Context, g *board.GymBoard) gymsModel {
	name, icon, details := "", "", ""
	return gymsModel{
		ctx:         ctx,
		gyms:        g,
		formName:    &name,
		formIcon:    &icon,
		formDetails: &details,
	}
}

func (g *gymsModel) setSize(w, h int) {
	g.width = w
	g.height = h
}

type gymsDataMsg struct {
	items []board.GymEntry
}

func (g gymsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return gymsDataMsg{items: g.gyms.Items()}
	}
}

func (g gymsModel) update(msg tea.Msg) (gymsModel, tea.Cmd) {
	if g.formActive && g.form != nil {
		return g.updateForm(msg)
	}

	switch msg := msg.(type) {
	case gymsDataMsg:
		g.items = msg.items
		if g.cursor >= len(g.items) {
			g.cursor = max(0, len(g.items)-1)
		}
		return g, nil

	case tea.KeyMsg:
		if g.viewingCard {
			switch {
			case key.Matches(msg, keys.Back):
				g.viewingCard = false
			case key.Matches(msg, keys.Edit), key.Matches(msg, keys.Enter):
				if g.cursor < len(g.items) {
					return g.showForm(&g.items[g.cursor])
				}
			}
			return g, nil
		}
		return g.updateList(msg)
	}
	return g, nil
}

func (g gymsModel) updateList(msg tea.KeyMsg) (gymsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if g.cursor > 0 {
			g.cursor--
		}
	case key.Matches(msg, keys.Down):
		if g.cursor < len(g.items)-1 {
			g.cursor++
		}
	case key.Matches(msg, keys.Enter):
		if len(g.items) > 0 {
			g.viewingCard = true
		}
	case key.Matches(msg, keys.New):
		return g.showForm(nil)
	case key.Matches(msg, keys.Edit):
		if len(g.items) > 0 {
			return g.showForm(&g.items[g.cursor])
		}
	}
	return g, nil
}

// showForm opens the gym form for gym, or for a new gym when gym is nil.
// Polling of the catalog is held off until the form closes.
func (g gymsModel) showForm(gym *board.GymEntry) (gymsModel, tea.Cmd) {
	if gym == nil {
		g.editingID = ""
		g.editingDetails = nil
		*g.formName, *g.formIcon, *g.formDetails = "", "", ""
	} else {
		g.editingID = gym.ID
		g.editingDetails = gym.Details
		*g.formName = gym.Name
		*g.formIcon = gym.Icon
		*g.formDetails = formatDetails(gym.Details)
	}

	g.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Gym Name").Value(g.formName),
			huh.NewInput().Title("Icon").Value(g.formIcon),
			huh.NewText().Title("Details (one section.field: value per line)").Value(g.formDetails),
		),
	).WithShowHelp(true).WithShowErrors(true)

	g.gyms.SetEditing(true)
	g.formActive = true
	return g, g.form.Init()
}

func (g gymsModel) updateForm(msg tea.Msg) (gymsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			g.formActive = false
			g.form = nil
			g.gyms.SetEditing(false)
			return g, nil
		}
	}

	form, cmd := g.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		g.form = f
	}

	if g.form.State == huh.StateCompleted {
		g.formActive = false
		g.gyms.SetEditing(false)
		if strings.TrimSpace(*g.formName) == "" {
			return g, nil
		}
		return g, g.save(g.entryFromForm())
	}

	return g, cmd
}

func (g gymsModel) save(entry board.GymEntry) tea.Cmd {
	return func() tea.Msg {
		saved, err := g.gyms.Save(g.ctx, entry)
		if err != nil {
			return mutationDoneMsg{err: err}
		}
		return mutationDoneMsg{text: "Saved " + saved.Name}
	}
}

// entryFromForm builds the gym the form describes.
func (g gymsModel) entryFromForm() board.GymEntry {
	entry := board.GymEntry{
		Name:    *g.formName,
		Icon:    *g.formIcon,
		Details: parseDetails(*g.formDetails, g.editingDetails),
	}
	entry.ID = g.editingID
	return entry
}

// formatDetails renders the text, number and boolean leaves of details as
// sorted "path: value" lines. Nested sections are joined with dots. Lists are
// not editable as text and are left out.
func formatDetails(details map[string]any) string {
	var lines []string
	walkDetails(details, "", func(path string, v any) {
		lines = append(lines, path+": "+leafText(v))
	})
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}

// parseDetails applies edited "path: value" lines on top of a deep copy of
// base. Leaves of base missing from text are removed, everything that
// formatDetails leaves out is kept as is. A value keeps the type of the leaf
// it replaces when it still parses as that type. Lines without a colon, empty
// paths and paths naming a list or section of base are dropped.
func parseDetails(text string, base map[string]any) map[string]any {
	out := copyDetails(base)
	pruneLeaves(out)

	for line := range strings.SplitSeq(text, "\n") {
		path, raw, ok := strings.Cut(line, ":")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			continue
		}
		raw = strings.TrimSpace(raw)
		value := any(raw)
		if old, found := lookupDetail(base, path); found {
			if !isLeaf(old) {
				continue
			}
			value = typedLike(old, raw)
		}
		if _, flat := base[path]; flat {
			out[path] = value
			continue
		}
		setLeaf(out, path, value)
	}
	return out
}

// listSummaries describes the list values formatDetails leaves out.
func listSummaries(details map[string]any) []string {
	var out []string
	var walk func(m map[string]any, prefix string)
	walk = func(m map[string]any, prefix string) {
		for k, v := range m {
			path := joinPath(prefix, k)
			switch t := v.(type) {
			case map[string]any:
				walk(t, path)
			case []any:
				out = append(out, fmt.Sprintf("%s: %d entries", path, len(t)))
			}
		}
	}
	walk(details, "")
	slices.Sort(out)
	return out
}

func walkDetails(m map[string]any, prefix string, fn func(path string, v any)) {
	for k, v := range m {
		path := joinPath(prefix, k)
		if sub, ok := v.(map[string]any); ok {
			walkDetails(sub, path, fn)
			continue
		}
		if isLeaf(v) {
			fn(path, v)
		}
	}
}

func joinPath(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}

func isLeaf(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, int, int64:
		return true
	}
	return false
}

func leafText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return fmt.Sprint(v)
}

func typedLike(old any, raw string) any {
	switch old.(type) {
	case nil:
		if raw == "" {
			return nil
		}
	case bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case float64, int, int64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func copyDetails(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyDetails(t)
	case []any:
		list := make([]any, len(t))
		for i, e := range t {
			list[i] = copyValue(e)
		}
		return list
	}
	return v
}

func pruneLeaves(m map[string]any) {
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			pruneLeaves(sub)
			continue
		}
		if isLeaf(v) {
			delete(m, k)
		}
	}
}

func lookupDetail(m map[string]any, path string) (any, bool) {
	if v, ok := m[path]; ok {
		return v, true
	}
	head, rest, ok := strings.Cut(path, ".")
	if !ok {
		return nil, false
	}
	sub, isMap := m[head].(map[string]any)
	if !isMap {
		return nil, false
	}
	return lookupDetail(sub, rest)
}

// setLeaf stores v at a dotted path, creating sections as needed. When a
// path segment already holds a non-section value the whole path is used as a
// flat key instead.
func setLeaf(m map[string]any, path string, v any) {
	cur := m
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, exists := cur[part]
		if !exists {
			sub := map[string]any{}
			cur[part] = sub
			cur = sub
			continue
		}
		sub, ok := next.(map[string]any)
		if !ok {
			m[path] = v
			return
		}
		cur = sub
	}
	cur[parts[len(parts)-1]] = v
}

func (g gymsModel) view() string {
	if g.formActive && g.form != nil {
		title := titleStyle.Render("New Gym")
		if g.editingID != "" {
			title = titleStyle.Render("Edit Gym")
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", g.form.View())
		return panelStyle.Width(g.width - 4).Render(content)
	}

	if g.viewingCard && g.cursor < len(g.items) {
		return g.renderCard()
	}
	return g.renderList()
}

func (g gymsModel) renderList() string {
	w := g.width - 4
	title := titleStyle.Render("Gyms")

	if len(g.items) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No gyms yet. Press n to add one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	header := mutedStyle.Render(fmt.Sprintf("  %-28s %-24s %s", "Name", "Icon", "Details"))
	rows = append(rows, header)

	for i, gym := range g.items {
		cursor := "  "
		style := normalItemStyle
		if i == g.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		row := style.Render(fmt.Sprintf("%s%-28s %-24s %d", cursor, truncate(gym.Name, 28), truncate(gym.Icon, 24), len(gym.Details)))
		if gym.Pending {
			row += pendingStyle.Render("  saving…")
		}
		rows = append(rows, row)
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  E: edit  enter: details"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (g gymsModel) renderCard() string {
	w := g.width - 4
	gym := g.items[g.cursor]
	title := titleStyle.Render(gym.Name)
	if gym.Icon != "" {
		title += mutedStyle.Render("  " + gym.Icon)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	if len(gym.Details) == 0 {
		rows = append(rows, mutedStyle.Render("No details yet. Press E to add some."))
	} else {
		lines := listSummaries(gym.Details)
		if text := formatDetails(gym.Details); text != "" {
			lines = append(strings.Split(text, "\n"), lines...)
		}
		for _, line := range lines {
			k, v, _ := strings.Cut(line, ":")
			rows = append(rows, fmt.Sprintf("  %s %s", lipgloss.NewStyle().Width(24).Render(k), highlightStyle.Render(strings.TrimSpace(v))))
		}
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  E: edit  esc: back"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
