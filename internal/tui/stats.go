package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/cragboard/internal/board"
)

type statsMode int

const (
	statsMonthly statsMode = iota
	statsAllTime
)

var barColors = []string{"#6C63FF", "#2EC4B6", "#FF6B6B", "#F39C12", "#2ECC71", "#E74C3C", "#9B59B6", "#3498DB"}

type statsModel struct {
	visits *board.VisitBoard
	now    func() time.Time
	width  int
	height int

	mode   statsMode
	offset int // months back from the current one (0 = current)
	items  []board.VisitEvent
	counts []board.GymCount

	chart barchart.Model
}

func newStatsModel(v *board.VisitBoard) statsModel {
	return statsModel{
		visits: v,
		now:    time.Now,
		chart:  barchart.New(60, 12),
	}
}

func (s *statsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type statsDataMsg struct {
	items []board.VisitEvent
}

func (s statsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return statsDataMsg{items: s.visits.Items()}
	}
}

// month is the first day of the month being shown.
func (s statsModel) month() time.Time {
	now := s.now().In(board.Zone)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, board.Zone)
	return first.AddDate(0, -s.offset, 0)
}

func (s statsModel) prefix() string {
	if s.mode == statsAllTime {
		return ""
	}
	return s.month().Format("2006-01")
}

func (s statsModel) update(msg tea.Msg) (statsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case statsDataMsg:
		s.items = msg.items
		s.rebuild()
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			s.offset++
		case key.Matches(msg, keys.Right):
			if s.offset > 0 {
				s.offset--
			}
		case key.Matches(msg, keys.Tab):
			if s.mode == statsMonthly {
				s.mode = statsAllTime
			} else {
				s.mode = statsMonthly
			}
			s.offset = 0
		default:
			return s, nil
		}
		s.rebuild()
	}
	return s, nil
}

func (s *statsModel) rebuild() {
	s.counts = board.CountByGym(s.items, s.prefix())
	s.buildChart()
}

func (s *statsModel) buildChart() {
	chartWidth := s.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if s.height > 30 {
		chartHeight = 16
	}

	s.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	for i, c := range s.counts {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(barColors[i%len(barColors)]))
		bars = append(bars, barchart.BarData{
			Label: truncate(c.Gym, 8),
			Values: []barchart.BarValue{{
				Name:  c.Gym,
				Value: float64(c.Visits),
				Style: style,
			}},
		})
	}
	if len(bars) == 0 {
		bars = []barchart.BarData{{
			Label:  "",
			Values: []barchart.BarValue{{Name: "", Value: 0, Style: lipgloss.NewStyle().Foreground(activePalette.subtle)}},
		}}
	}

	s.chart.PushAll(bars)
	s.chart.Draw()
}

func (s statsModel) view() string {
	w := s.width - 4

	monthTab := inactiveTabStyle.Render("Month")
	allTab := inactiveTabStyle.Render("All time")
	label := mutedStyle.Render("every visit on record")
	if s.mode == statsMonthly {
		monthTab = activeTabStyle.Render("Month")
		label = mutedStyle.Render(s.month().Format("January 2006"))
	} else {
		allTab = activeTabStyle.Render("All time")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, monthTab, allTab)

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Visits per gym"), "  ", modeTabs, "  ", label,
	)

	nav := mutedStyle.Render("  ←/→: month  tab: switch mode")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", s.chart.View(), "", s.renderTable(w), "", nav,
		),
	)
}

func (s statsModel) renderTable(w int) string {
	if len(s.counts) == 0 {
		return mutedStyle.Render("  No visits for this period")
	}

	total := 0
	for _, c := range s.counts {
		total += c.Visits
	}

	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-28s %8s %8s", "Gym", "Visits", "Share")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 46))))

	for i, c := range s.counts {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(barColors[i%len(barColors)])).Render("●")
		share := float64(c.Visits) / float64(total) * 100
		rows = append(rows, fmt.Sprintf("  %s %s %8d %7.0f%%", dot, pad(truncate(c.Gym, 26), 26), c.Visits, share))
	}

	return strings.Join(rows, "\n")
}
