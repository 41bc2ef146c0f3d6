package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/sadopc/cragboard/internal/store"
)

var settingLabels = map[string]string{
	store.SettingClimberName: "Climber name",
	store.SettingTheme:       "Theme",
	store.SettingWeekStart:   "Week starts on",
}

type settingsModel struct {
	store  *store.Store
	now    func() time.Time
	width  int
	height int

	settings   []store.Setting
	cache      []store.CacheEntry
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	climberName *string
	theme       *string
	weekStart   *string
}

func newSettingsModel(s *store.Store) settingsModel {
	name, theme, ws := "", "", ""
	return settingsModel{
		store:       s,
		now:         time.Now,
		climberName: &name,
		theme:       &theme,
		weekStart:   &ws,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []store.Setting
	cache    []store.CacheEntry
}

// settingsSavedMsg tells the other views that settings changed.
type settingsSavedMsg struct{}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, _ := s.store.GetAllSettings()
		cache, _ := s.store.ListState()
		return settingsDataMsg{settings: settings, cache: cache}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		s.cache = msg.cache
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.Edit):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.climberName = s.getVal(store.SettingClimberName, "")
	*s.theme = s.getVal(store.SettingTheme, "dark")
	*s.weekStart = s.getVal(store.SettingWeekStart, "monday")

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Your name").
				Description("Shown on your visits and chat messages").
				Value(s.climberName).
				Validate(validateName),
		).Title("Climber"),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Theme").
				Options(
					huh.NewOption("Dark", "dark"),
					huh.NewOption("Light", "light"),
				).Value(s.theme),
			huh.NewSelect[string]().Title("Week starts on").
				Options(
					huh.NewOption("Monday", "monday"),
					huh.NewOption("Sunday", "sunday"),
				).Value(s.weekStart),
		).Title("General"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func validateName(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("name is required")
	}
	return nil
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		if err := s.saveSettings(); err != nil {
			return s, func() tea.Msg {
				return statusMsg{text: fmt.Sprintf("Settings error: %v", err), isError: true}
			}
		}
		return s, tea.Batch(s.refresh(), func() tea.Msg { return settingsSavedMsg{} })
	}

	return s, cmd
}

func (s settingsModel) saveSettings() error {
	if err := s.store.SetClimberName(*s.climberName); err != nil {
		return err
	}
	if err := s.store.SetSetting(store.SettingTheme, *s.theme); err != nil {
		return err
	}
	return s.store.SetSetting(store.SettingWeekStart, *s.weekStart)
}

func (s settingsModel) getVal(k, fallback string) string {
	v, err := s.store.GetSetting(k)
	if err != nil {
		return fallback
	}
	return v
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		formView := s.form.View()
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", formView),
		)
	}

	title := titleStyle.Render("Settings")
	hint := mutedStyle.Render("Press enter to edit settings")

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(settingLabel(setting.Key))
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}

	if len(s.cache) > 0 {
		rows = append(rows, "", titleStyle.Render("Local cache"))
		now := s.now()
		for _, e := range s.cache {
			label := lipgloss.NewStyle().Width(24).Render(e.Key)
			rows = append(rows, fmt.Sprintf("  %s %s", label, mutedStyle.Render(fmt.Sprintf(
				"%d items, %s, saved %s", e.Items, humanize.Bytes(uint64(e.Bytes)), formatAgo(e.UpdatedAt, now),
			))))
		}
	}

	rows = append(rows, "")
	rows = append(rows, hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func settingLabel(k string) string {
	if l, ok := settingLabels[k]; ok {
		return l
	}
	return k
}

func formatSettingValue(k, v string) string {
	switch k {
	case store.SettingClimberName:
		if v == "" {
			return "(not set)"
		}
	case store.SettingTheme, store.SettingWeekStart:
		if v != "" {
			return strings.ToUpper(v[:1]) + v[1:]
		}
	}
	return v
}
