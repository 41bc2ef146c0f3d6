package board

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/cragboard/internal/reconcile"
)

type fakeChatAPI struct {
	mu      sync.Mutex
	history []ChatMessage // newest last
	fail    bool
	reject  bool
	calls   []int // requested offsets
}

func (f *fakeChatAPI) FetchChat(_ context.Context, offset, limit int) (ChatChunk, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, offset)
	if f.fail {
		return ChatChunk{}, false
	}
	total := len(f.history)
	end := max(total-offset, 0)
	start := max(end-limit, 0)
	items := append([]ChatMessage{}, f.history[start:end]...)
	return ChatChunk{Items: items, NextOffset: offset + len(items), HasMore: start > 0, Total: total}, true
}

func (f *fakeChatAPI) SendChat(_ context.Context, m ChatMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	echo := serverMessage(m.ID, m.Author, m.Text, m.Time().Add(time.Second))
	f.history = append(f.history, echo)
	return true
}

var chatT0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func serverMessage(id, author, text string, at time.Time) ChatMessage {
	m := ChatMessage{Date: at.UTC().Format(time.RFC3339), Author: author, Text: text, Parts: ParseChatText(text)}
	m = m.WithFingerprint()
	m.ID = id
	return m
}

func history(n int) []ChatMessage {
	out := make([]ChatMessage, n)
	for i := range out {
		out[i] = serverMessage(fmt.Sprintf("m%d", i+1), "Ann", fmt.Sprintf("msg %d", i+1), chatT0.Add(time.Duration(i)*time.Minute))
	}
	return out
}

func chatIDs(items []ChatMessage) []string {
	out := make([]string, len(items))
	for i, m := range items {
		out[i] = m.ID
	}
	return out
}

// ============================================================
// Parsing
// ============================================================

func TestParseChatText(t *testing.T) {
	assert.Nil(t, ParseChatText("  "))
	assert.Equal(t, []ChatPart{{Type: "text", Text: "hello"}}, ParseChatText("hello"))
	assert.Equal(t, []ChatPart{{Type: "text", Text: "[broken"}}, ParseChatText("[broken"))

	got := ParseChatText(`['see ', {'type': 'link', 'text': 'https://x.io'}, {'type': 'mention', 'text': '@bob', 'id': None}]`)
	assert.Equal(t, []ChatPart{
		{Type: "text", Text: "see "},
		{Type: "link", Text: "https://x.io", Href: "https://x.io"},
		{Type: "mention", Text: "@bob"},
	}, got)
}

func TestNormalizeChat(t *testing.T) {
	raw := []any{
		map[string]any{"message_id": "local-1-abcdef", "author": "Ann", "text": "hi", "date": "2024-05-01T09:00:00Z"},
		map[string]any{"id": float64(7), "author": "Bob", "text": "yo"},
		map[string]any{"author": "Cid", "text": "no id", "date": "2024-05-01T09:01:00Z"},
		map[string]any{"author": "", "text": "anonymous"},
	}
	got := NormalizeChat(raw)
	require.Len(t, got, 3)
	assert.Equal(t, "local-1-abcdef", got[0].ID)
	assert.Equal(t, "Ann|hi", got[0].Fingerprint)
	assert.Equal(t, "7", got[1].ID)
	assert.Equal(t, got[2].ID, NormalizeChat(raw)[2].ID)
}

// ============================================================
// Merge
// ============================================================

func TestMergeChat_ResolvesByID(t *testing.T) {
	now := chatT0.Add(10 * time.Minute)
	pending := serverMessage("local-1", "Ann", "hi", now)
	pending.Pending = true
	pending.OptimisticCreatedAt = now.UnixMilli()

	// Same text from someone's earlier message does not resolve it.
	server := []ChatMessage{serverMessage("m1", "Ann", "hi", chatT0)}
	got := MergeChat(server, []ChatMessage{pending}, DefaultChatTTL, now.Add(time.Second))
	assert.Equal(t, []string{"m1", "local-1"}, chatIDs(got))

	server = append(server, serverMessage("local-1", "Ann", "hi", now.Add(time.Second)))
	got = MergeChat(server, got, DefaultChatTTL, now.Add(2*time.Second))
	assert.Equal(t, []string{"m1", "local-1"}, chatIDs(got))
	assert.False(t, got[1].Pending)
}

func TestMergeChat_KeepsOlderHistory(t *testing.T) {
	all := history(5)
	current := all[:4]
	server := all[2:]

	got := MergeChat(server, current, DefaultChatTTL, chatT0.Add(time.Hour))
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, chatIDs(got))

	again := MergeChat(server, got, DefaultChatTTL, chatT0.Add(time.Hour))
	assert.True(t, reconcile.SameState(got, again))
}

func TestMergeChat_PendingExpires(t *testing.T) {
	now := chatT0
	pending := serverMessage("local-1", "Ann", "hi", now)
	pending.Pending = true
	pending.OptimisticCreatedAt = now.UnixMilli()

	assert.Len(t, MergeChat(nil, []ChatMessage{pending}, DefaultChatTTL, now.Add(59*time.Second)), 1)
	assert.Empty(t, MergeChat(nil, []ChatMessage{pending}, DefaultChatTTL, now.Add(60*time.Second)))
}

func TestTrimChat(t *testing.T) {
	items := history(5)
	assert.Equal(t, []string{"m4", "m5"}, chatIDs(TrimChat(items, 2)))
	assert.Len(t, TrimChat(items, 0), 5)
}

// ============================================================
// Chat board
// ============================================================

func TestChatBoard_InitialThenIncremental(t *testing.T) {
	api := &fakeChatAPI{history: history(5)}
	b := NewChatBoard(api, newMemCache[ChatMessage](), ChatOptions{BatchSize: 3})

	require.True(t, b.Refresh(context.Background()))
	assert.Equal(t, []string{"m3", "m4", "m5"}, chatIDs(b.Messages()))
	assert.Equal(t, 3, b.Offset())
	assert.True(t, b.HasMore())

	api.mu.Lock()
	api.history = append(api.history, serverMessage("m6", "Bob", "new", chatT0.Add(time.Hour)))
	api.mu.Unlock()

	require.True(t, b.Refresh(context.Background()))
	assert.Equal(t, []string{"m3", "m4", "m5", "m6"}, chatIDs(b.Messages()))
	assert.Equal(t, 4, b.Offset())
	assert.True(t, b.HasMore())

	require.True(t, b.LoadOlder(context.Background()))
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5", "m6"}, chatIDs(b.Messages()))
	assert.False(t, b.HasMore())
	assert.False(t, b.LoadOlder(context.Background()))
}

func TestChatBoard_SendResolves(t *testing.T) {
	clock := &fakeClock{now: chatT0.Add(time.Hour)}
	api := &fakeChatAPI{history: history(2)}
	b := NewChatBoard(api, nil, ChatOptions{Options: Options{Clock: clock.Now}})
	b.Refresh(context.Background())

	m, err := b.Send(context.Background(), "Ann", "  on my way ")
	require.NoError(t, err)
	assert.Equal(t, "on my way", m.Text)

	got := b.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, m.ID, got[2].ID)
	assert.False(t, got[2].Pending, "echo from the server resolves the optimistic message")
}

func TestChatBoard_SendFailureRollsBack(t *testing.T) {
	api := &fakeChatAPI{history: history(1), reject: true}
	cache := newMemCache[ChatMessage]()
	b := NewChatBoard(api, cache, ChatOptions{})
	b.Refresh(context.Background())

	_, err := b.Send(context.Background(), "Ann", "hello")
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, []string{"m1"}, chatIDs(b.Messages()))

	_, err = b.Send(context.Background(), "Ann", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = b.Send(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrNoName)
}

func TestChatBoard_CacheLimitAndRestore(t *testing.T) {
	api := &fakeChatAPI{history: history(5)}
	cache := newMemCache[ChatMessage]()
	b := NewChatBoard(api, cache, ChatOptions{CacheLimit: 2})
	b.Refresh(context.Background())

	cached, ok := cache.Load(ChatKey)
	require.True(t, ok)
	assert.Equal(t, []string{"m4", "m5"}, chatIDs(cached))

	restored := NewChatBoard(api, cache, ChatOptions{})
	assert.Equal(t, []string{"m4", "m5"}, chatIDs(restored.Messages()))
	assert.Equal(t, 2, restored.Offset())
	assert.True(t, restored.HasMore())
}

func TestChatBoard_FailedFetch(t *testing.T) {
	api := &fakeChatAPI{fail: true}
	b := NewChatBoard(api, nil, ChatOptions{})
	assert.False(t, b.Refresh(context.Background()))
	assert.Empty(t, b.Messages())
}
