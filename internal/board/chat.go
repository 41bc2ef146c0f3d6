package board

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/sadopc/cragboard/internal/reconcile"
)

// ChatPart is one rendered fragment of a message.
type ChatPart struct {
	Type string `json:"type"` // text, link or mention
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// ChatMessage is a group chat message. Meta.ID is the message id; ids made
// by LocalID are sent to the server, which echoes them back.
type ChatMessage struct {
	reconcile.Meta
	Date   string     `json:"date"` // RFC3339
	Author string     `json:"author"`
	Text   string     `json:"text"`
	Parts  []ChatPart `json:"parts,omitempty"`
}

// ChatFingerprint is author|text.
func ChatFingerprint(m ChatMessage) string {
	return reconcile.Fingerprint(m.Author, m.Text)
}

// WithFingerprint returns a copy of m with its fingerprint stamped.
func (m ChatMessage) WithFingerprint() ChatMessage {
	m.Fingerprint = ChatFingerprint(m)
	return m
}

// Time parses Date. Unparsable dates sort first.
func (m ChatMessage) Time() time.Time {
	if t, ok := parseDateTime(m.Date); ok {
		return t
	}
	return time.Time{}
}

// ChatChunk is one page of the chat history.
type ChatChunk struct {
	Items      []ChatMessage
	NextOffset int
	HasMore    bool
	Total      int
}

// NormalizeChat converts decoded chat items into messages. Items without an
// author or text are skipped.
func NormalizeChat(raw []any) []ChatMessage {
	out := make([]ChatMessage, 0, len(raw))
	seen := make(map[string]int)
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		author, text := str(obj["author"]), str(obj["text"])
		if author == "" || text == "" {
			continue
		}
		m := ChatMessage{
			Date:   str(obj["date"]),
			Author: author,
			Text:   text,
			Parts:  ParseChatText(text),
		}
		m = m.WithFingerprint()
		m.ID = firstNonEmpty(obj["message_id"], obj["id"])
		if m.ID == "" {
			seen[m.Fingerprint+m.Date]++
			m.ID = stableID(m.Fingerprint+m.Date, seen[m.Fingerprint+m.Date])
		}
		out = append(out, m)
	}
	return out
}

// ParseChatText splits a message into parts. The sheet stores rich messages
// as a Python-style list, e.g. ['hi ', {'type': 'mention', 'text': '@ann'}];
// anything else is a single text part.
func ParseChatText(raw string) []ChatPart {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	plain := []ChatPart{{Type: "text", Text: raw}}
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return plain
	}

	normalized := strings.ReplaceAll(noneRe.ReplaceAllString(trimmed, "null"), "'", `"`)
	var parsed []any
	if err := json.Unmarshal([]byte(normalized), &parsed); err != nil {
		return plain
	}

	var parts []ChatPart
	for _, p := range parsed {
		switch v := p.(type) {
		case string:
			if v != "" {
				parts = append(parts, ChatPart{Type: "text", Text: v})
			}
		case map[string]any:
			text := str(v["text"])
			if text == "" {
				continue
			}
			switch strings.ToLower(str(v["type"])) {
			case "link":
				parts = append(parts, ChatPart{Type: "link", Text: text, Href: text})
			case "mention":
				parts = append(parts, ChatPart{Type: "mention", Text: text})
			default:
				parts = append(parts, ChatPart{Type: "text", Text: text})
			}
		}
	}
	if len(parts) == 0 {
		return plain
	}
	return parts
}

// SortChat orders messages by date, keeping the relative order of equal dates.
func SortChat(items []ChatMessage) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Time().Before(items[j].Time())
	})
}

// MergeChat reconciles the latest chat page with local state. A pending
// message resolves when the server returns its id. Confirmed messages older
// than the page (loaded from earlier pages) are kept. The result is sorted
// by date.
func MergeChat(server, current []ChatMessage, ttl time.Duration, now time.Time) []ChatMessage {
	serverIDs := make(map[string]struct{}, len(server))
	var earliest time.Time
	for i, m := range server {
		serverIDs[m.ID] = struct{}{}
		if t := m.Time(); i == 0 || t.Before(earliest) {
			earliest = t
		}
	}

	out := make([]ChatMessage, 0, len(server)+len(current))
	if len(server) > 0 {
		for _, m := range current {
			if m.Pending {
				continue
			}
			if _, ok := serverIDs[m.ID]; ok {
				continue
			}
			if m.Time().Before(earliest) {
				out = append(out, m)
			}
		}
	}
	out = append(out, server...)

	unresolved := reconcile.CollectUnresolved(current, server, ttl, now, func(m ChatMessage, _ []ChatMessage) bool {
		_, ok := serverIDs[m.ID]
		return ok
	})
	out = append(out, unresolved...)
	SortChat(out)
	return out
}

// TrimChat keeps the last limit messages.
func TrimChat(items []ChatMessage, limit int) []ChatMessage {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[len(items)-limit:]
}
