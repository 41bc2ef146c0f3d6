package board

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sadopc/cragboard/internal/metrics"
	"github.com/sadopc/cragboard/internal/reconcile"
)

// Chat defaults.
const (
	DefaultChatTTL        = 60 * time.Second
	DefaultChatBatchSize  = 100
	DefaultChatCacheLimit = 200
)

// ChatAPI is the chat endpoint. Offset 0 is the newest page. FetchChat
// reports false on any failure.
type ChatAPI interface {
	FetchChat(ctx context.Context, offset, limit int) (ChatChunk, bool)
	SendChat(ctx context.Context, m ChatMessage) bool
}

// ChatOptions configure a ChatBoard.
type ChatOptions struct {
	Options
	BatchSize  int
	CacheLimit int
}

// ChatBoard is the group chat: the newest pages of messages plus the
// messages the user is sending.
type ChatBoard struct {
	notifier

	api   ChatAPI
	cache Cache[ChatMessage]
	opts  ChatOptions
	log   *slog.Logger

	mu      sync.Mutex
	items   []ChatMessage
	offset  int
	hasMore bool
	loaded  bool
	syncer  SyncFunc
}

// NewChatBoard creates the board and restores cached messages.
func NewChatBoard(api ChatAPI, cache Cache[ChatMessage], opts ChatOptions) *ChatBoard {
	opts.Options = opts.Options.withDefaults(DefaultChatTTL)
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultChatBatchSize
	}
	if opts.CacheLimit <= 0 {
		opts.CacheLimit = DefaultChatCacheLimit
	}
	b := &ChatBoard{
		api:   api,
		cache: cache,
		opts:  opts,
		log:   opts.Logger.With("entity", ChatKey),
		items: []ChatMessage{},
	}
	b.syncer = b.Refresh
	if cache != nil {
		if cached, ok := cache.Load(ChatKey); ok && len(cached) > 0 {
			SortChat(cached)
			b.items = cached
			b.offset = len(cached)
			b.hasMore = true
		}
	}
	return b
}

// SetSync replaces the post-send sync.
func (b *ChatBoard) SetSync(fn SyncFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		fn = b.Refresh
	}
	b.syncer = fn
}

// Messages returns a copy of the messages, oldest first.
func (b *ChatBoard) Messages() []ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// HasMore reports whether older pages remain on the server.
func (b *ChatBoard) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasMore
}

// Offset is how many server messages, counted from the newest, are loaded.
func (b *ChatBoard) Offset() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}

// Send appends a message optimistically and posts it. The local message id
// travels with the post so the server copy resolves it. On failure the
// message is removed and ErrSendFailed is returned.
func (b *ChatBoard) Send(ctx context.Context, author, text string) (ChatMessage, error) {
	author = strings.TrimSpace(author)
	if author == "" {
		return ChatMessage{}, ErrNoName
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	now := b.opts.Clock()
	m := ChatMessage{
		Date:   now.UTC().Format(time.RFC3339Nano),
		Author: author,
		Text:   text,
		Parts:  []ChatPart{{Type: "text", Text: text}},
	}
	m = m.WithFingerprint()
	m.ID = LocalID(now)
	m.Pending = true
	m.OptimisticCreatedAt = now.UnixMilli()

	b.mu.Lock()
	b.items = append(b.items, m)
	b.commitLocked()
	syncFn := b.syncer
	b.mu.Unlock()
	b.notify()

	ok := b.api.SendChat(ctx, m)
	metrics.Mutations.WithLabelValues(ChatKey, "send", result(ok)).Inc()
	if !ok {
		b.log.Warn("chat send failed, rolling back", "id", m.ID)
		b.mu.Lock()
		b.items = slices.DeleteFunc(b.items, func(it ChatMessage) bool { return it.ID == m.ID })
		b.commitLocked()
		b.mu.Unlock()
		b.notify()
		syncFn(ctx)
		return ChatMessage{}, ErrSendFailed
	}

	syncFn(ctx)
	return m, nil
}

// Refresh fetches the newest page. The first successful fetch replaces the
// messages outright; later ones are merged.
func (b *ChatBoard) Refresh(ctx context.Context) bool {
	start := time.Now()
	chunk, ok := b.api.FetchChat(ctx, 0, b.opts.BatchSize)
	metrics.FetchDuration.WithLabelValues(ChatKey).Observe(time.Since(start).Seconds())
	if !ok {
		b.log.Debug("chat fetch failed, keeping previous state")
		return false
	}
	b.Reconcile(chunk)
	return true
}

// Reconcile folds the newest page into the board and reports whether the
// messages changed.
func (b *ChatBoard) Reconcile(chunk ChatChunk) bool {
	now := b.opts.Clock()

	b.mu.Lock()
	var changed bool
	if !b.loaded {
		b.loaded = true
		next := slices.Clone(chunk.Items)
		SortChat(next)
		pending := reconcile.CollectUnresolved(b.items, next, b.opts.TTL, now, func(m ChatMessage, server []ChatMessage) bool {
			return slices.ContainsFunc(server, func(s ChatMessage) bool { return s.ID == m.ID })
		})
		next = append(next, pending...)
		changed = !reconcile.SameState(next, b.items)
		b.items = next
		b.offset = chunk.NextOffset
		b.hasMore = chunk.HasMore
	} else {
		known := make(map[string]struct{}, len(b.items))
		for _, m := range b.items {
			if !m.Pending {
				known[m.ID] = struct{}{}
			}
		}
		fresh := 0
		for _, m := range chunk.Items {
			if _, ok := known[m.ID]; !ok {
				fresh++
			}
		}
		next := MergeChat(chunk.Items, b.items, b.opts.TTL, now)
		changed = !reconcile.SameState(next, b.items)
		if changed {
			b.items = next
		}
		b.offset += fresh
		if chunk.Total > 0 {
			b.hasMore = b.offset < chunk.Total
		} else {
			b.hasMore = chunk.HasMore
		}
	}
	if changed {
		b.commitLocked()
	}
	b.mu.Unlock()

	metrics.Merges.WithLabelValues(ChatKey, metrics.Changed(changed)).Inc()
	if changed {
		b.notify()
	}
	return changed
}

// LoadOlder fetches the page after the loaded ones. It reports false when
// there is nothing more to load or the fetch failed.
func (b *ChatBoard) LoadOlder(ctx context.Context) bool {
	b.mu.Lock()
	if !b.hasMore {
		b.mu.Unlock()
		return false
	}
	offset := b.offset
	b.mu.Unlock()

	chunk, ok := b.api.FetchChat(ctx, offset, b.opts.BatchSize)
	if !ok {
		b.log.Debug("loading older chat failed", "offset", offset)
		return false
	}

	b.mu.Lock()
	seen := make(map[string]struct{}, len(b.items))
	for _, m := range b.items {
		seen[m.ID] = struct{}{}
	}
	next := make([]ChatMessage, 0, len(chunk.Items)+len(b.items))
	for _, m := range chunk.Items {
		if _, dup := seen[m.ID]; !dup {
			next = append(next, m)
		}
	}
	next = append(next, b.items...)
	SortChat(next)
	b.items = next
	b.offset = chunk.NextOffset
	b.hasMore = chunk.HasMore
	b.commitLocked()
	b.mu.Unlock()
	b.notify()
	return true
}

// commitLocked caches the newest messages only.
func (b *ChatBoard) commitLocked() {
	if b.cache != nil {
		b.cache.Save(ChatKey, TrimChat(b.items, b.opts.CacheLimit))
	}
	metrics.Items.WithLabelValues(ChatKey).Set(float64(len(b.items)))
	metrics.Pending.WithLabelValues(ChatKey).Set(float64(countPending(b.items)))
}
