package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/cragboard/internal/board"
	"github.com/sadopc/cragboard/internal/store"
)

type chatModel struct {
	ctx    context.Context
	chat   *board.ChatBoard
	store  *store.Store
	now    func() time.Time
	width  int
	height int

	messages []board.ChatMessage
	hasMore  bool
	scroll   int // lines hidden below the bottom of the view

	input   textinput.Model
	typing  bool
	loading bool // an older page is being fetched
}

func newChatModel(ctx context.Context, c *board.ChatBoard, s *store.Store) chatModel {
	in := textinput.New()
	in.Placeholder = "Say something…"
	in.CharLimit = 1000
	in.Prompt = "> "
	return chatModel{
		ctx:   ctx,
		chat:  c,
		store: s,
		now:   time.Now,
		input: in,
	}
}

func (c *chatModel) setSize(w, h int) {
	c.width = w
	c.height = h
	c.input.Width = max(w-12, 10)
}

type chatDataMsg struct {
	messages []board.ChatMessage
	hasMore  bool
}

type chatOlderMsg struct {
	ok bool
}

func (c chatModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return chatDataMsg{messages: c.chat.Messages(), hasMore: c.chat.HasMore()}
	}
}

func (c chatModel) loadOlder() tea.Cmd {
	return func() tea.Msg {
		return chatOlderMsg{ok: c.chat.LoadOlder(c.ctx)}
	}
}

func (c chatModel) update(msg tea.Msg) (chatModel, tea.Cmd) {
	switch msg := msg.(type) {
	case chatDataMsg:
		c.messages = msg.messages
		c.hasMore = msg.hasMore
		return c, nil

	case chatOlderMsg:
		c.loading = false
		if !msg.ok {
			return c, func() tea.Msg {
				return statusMsg{text: "Could not load older messages", isError: true}
			}
		}
		return c, nil

	case tea.KeyMsg:
		if c.typing {
			return c.updateInput(msg)
		}
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.New):
			c.typing = true
			cmd := c.input.Focus()
			return c, cmd
		case key.Matches(msg, keys.Up):
			c.scroll++
		case key.Matches(msg, keys.Down):
			if c.scroll > 0 {
				c.scroll--
			}
		case key.Matches(msg, keys.Older):
			if c.hasMore && !c.loading {
				c.loading = true
				return c, c.loadOlder()
			}
		}
	}
	return c, nil
}

func (c chatModel) updateInput(msg tea.KeyMsg) (chatModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		c.typing = false
		c.input.Blur()
		return c, nil
	case "enter":
		text := strings.TrimSpace(c.input.Value())
		if text == "" {
			return c, nil
		}
		c.input.Reset()
		c.scroll = 0
		return c, c.send(text)
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c chatModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		author, err := c.store.ClimberName()
		if err != nil {
			return mutationDoneMsg{err: fmt.Errorf("read climber name: %w", err)}
		}
		_, err = c.chat.Send(c.ctx, author, text)
		if errors.Is(err, board.ErrNoName) {
			return mutationDoneMsg{err: errors.New("set your name in Settings first")}
		}
		if err != nil {
			return mutationDoneMsg{err: err}
		}
		return mutationDoneMsg{}
	}
}

func (c chatModel) view() string {
	w := c.width - 4

	title := titleStyle.Render("Chat")
	if c.hasMore {
		hint := "  o: older"
		if c.loading {
			hint = "  loading…"
		}
		title += mutedStyle.Render(hint)
	}

	var lines []string
	now := c.now()
	for _, m := range c.messages {
		lines = append(lines, c.renderMessage(m, now)...)
	}
	if len(lines) == 0 {
		lines = []string{mutedStyle.Render("No messages yet.")}
	}

	// title, blank, blank, input, hint + panel chrome
	visible := max(c.height-10, 3)
	end := max(len(lines)-c.scroll, min(visible, len(lines)))
	start := max(end-visible, 0)
	body := strings.Join(lines[start:end], "\n")

	input := mutedStyle.Render("  enter: write  ↑/↓: scroll")
	if c.typing {
		input = c.input.View()
	}

	style := panelStyle
	if c.typing {
		style = activePanelStyle
	}
	return style.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", input),
	)
}

func (c chatModel) renderMessage(m board.ChatMessage, now time.Time) []string {
	meta := mutedStyle.Render(" · " + formatAgo(m.Time(), now))
	if m.Pending {
		meta = pendingStyle.Render(" · sending…")
	}
	head := authorStyle.Render(m.Author) + meta

	var b strings.Builder
	parts := m.Parts
	if len(parts) == 0 {
		parts = []board.ChatPart{{Type: "text", Text: m.Text}}
	}
	for _, p := range parts {
		switch p.Type {
		case "link":
			text := p.Text
			if text == "" {
				text = p.Href
			}
			b.WriteString(highlightStyle.Underline(true).Render(text))
		case "mention":
			b.WriteString(accentStyle.Render(p.Text))
		default:
			b.WriteString(p.Text)
		}
	}

	text := lipgloss.NewStyle().Width(max(c.width-10, 10)).Render(b.String())
	out := []string{head}
	for line := range strings.SplitSeq(text, "\n") {
		out = append(out, "  "+line)
	}
	return out
}
