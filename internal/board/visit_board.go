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

// VisitAPI is the visits endpoint. FetchVisits returns nil on any failure.
type VisitAPI interface {
	FetchVisits(ctx context.Context) []VisitEvent
	CreateVisit(ctx context.Context, v VisitEvent) bool
	DeleteVisit(ctx context.Context, row string) bool
}

// VisitBoard is the calendar state: every planned visit of the group.
type VisitBoard struct {
	notifier

	api   VisitAPI
	cache Cache[VisitEvent]
	opts  Options
	log   *slog.Logger

	mu     sync.Mutex
	items  []VisitEvent
	ledger *reconcile.ShadowLedger
	syncer SyncFunc
}

// NewVisitBoard creates the board and loads the cached visits, if any.
func NewVisitBoard(api VisitAPI, cache Cache[VisitEvent], opts Options) *VisitBoard {
	opts = opts.withDefaults(reconcile.DefaultShadowTTL)
	b := &VisitBoard{
		api:    api,
		cache:  cache,
		opts:   opts,
		log:    opts.Logger.With("entity", VisitsKey),
		ledger: reconcile.NewShadowLedger(opts.TTL),
		items:  []VisitEvent{},
	}
	b.syncer = b.Refresh
	if cache != nil {
		if cached, ok := cache.Load(VisitsKey); ok {
			b.items = cached
			b.log.Debug("loaded visits from cache", "count", len(cached))
		}
	}
	b.observe()
	return b
}

// SetSync replaces the post-mutation sync, normally with the poller's SyncAfter.
func (b *VisitBoard) SetSync(fn SyncFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		fn = b.Refresh
	}
	b.syncer = fn
}

// Items returns a copy of the current visits.
func (b *VisitBoard) Items() []VisitEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Index groups the current visits by date.
func (b *VisitBoard) Index() VisitIndex {
	return IndexVisits(b.Items())
}

// Submit adds a visit optimistically and sends it to the server. On failure
// the visit is rolled back and ErrSubmitFailed is returned. Either way a sync
// follows the round-trip.
func (b *VisitBoard) Submit(ctx context.Context, draft VisitEvent) (VisitEvent, error) {
	name, unsure := ParseUnsureName(draft.Name)
	if name == "" {
		return VisitEvent{}, ErrNoName
	}
	v := VisitEvent{
		Date:   NormalizeDate(draft.Date),
		Name:   name,
		Gym:    strings.TrimSpace(draft.Gym),
		Time:   NormalizeTime(draft.Time),
		Unsure: draft.Unsure || unsure,
	}
	if v.Date == "" {
		return VisitEvent{}, ErrInvalidVisit
	}

	now := b.opts.Clock()
	v = v.WithFingerprint()
	v.ID = LocalID(now)
	v.Pending = true
	v.OptimisticCreatedAt = now.UnixMilli()

	b.mu.Lock()
	b.items = append(b.items, v)
	b.commitLocked()
	syncFn := b.syncer
	b.mu.Unlock()
	b.notify()

	ok := b.api.CreateVisit(ctx, v)
	metrics.Mutations.WithLabelValues(VisitsKey, "create", result(ok)).Inc()
	if !ok {
		b.log.Warn("create visit failed, rolling back", "id", v.ID, "date", v.Date)
		b.mu.Lock()
		b.items = slices.DeleteFunc(b.items, func(it VisitEvent) bool { return it.ID == v.ID })
		b.commitLocked()
		b.mu.Unlock()
		b.notify()
		syncFn(ctx)
		return VisitEvent{}, ErrSubmitFailed
	}

	syncFn(ctx)
	return v, nil
}

// Delete removes a visit locally, shadows its fingerprint and asks the server
// to delete its row. Visits that never reached the server are only removed
// locally. If the server refuses, the visit is put back and ErrDeleteFailed is
// returned.
func (b *VisitBoard) Delete(ctx context.Context, id string) error {
	now := b.opts.Clock()

	b.mu.Lock()
	idx := slices.IndexFunc(b.items, func(it VisitEvent) bool { return it.ID == id })
	if idx < 0 {
		b.mu.Unlock()
		return nil
	}
	v := b.items[idx]
	b.items = slices.Delete(b.items, idx, idx+1)
	b.ledger.Record(v.Fingerprint, now)
	b.commitLocked()
	syncFn := b.syncer
	b.mu.Unlock()
	b.notify()

	// Only server rows can be deleted remotely. Ids made up locally or for
	// id-less server objects mean nothing to the server.
	row := v.Row
	if row == "" {
		return nil
	}

	ok := b.api.DeleteVisit(ctx, row)
	metrics.Mutations.WithLabelValues(VisitsKey, "delete", result(ok)).Inc()
	if !ok {
		b.log.Warn("delete visit failed, restoring", "id", v.ID, "row", row)
		b.mu.Lock()
		b.ledger.Forget(v.Fingerprint)
		b.items = slices.Insert(b.items, min(idx, len(b.items)), v)
		b.commitLocked()
		b.mu.Unlock()
		b.notify()
		syncFn(ctx)
		return ErrDeleteFailed
	}

	syncFn(ctx)
	return nil
}

// Refresh fetches a snapshot and reconciles it. It reports false when the
// fetch failed; the previous state is left untouched.
func (b *VisitBoard) Refresh(ctx context.Context) bool {
	start := time.Now()
	server := b.api.FetchVisits(ctx)
	metrics.FetchDuration.WithLabelValues(VisitsKey).Observe(time.Since(start).Seconds())
	if server == nil {
		b.log.Debug("visits fetch failed, keeping previous state")
		return false
	}
	b.Reconcile(server)
	return true
}

// Reconcile merges a server snapshot into the board. It reports whether the
// state changed; an unchanged merge writes nothing and notifies nobody.
func (b *VisitBoard) Reconcile(server []VisitEvent) bool {
	now := b.opts.Clock()

	b.mu.Lock()
	next := MergeVisits(server, b.items, b.ledger, b.opts.TTL, now)
	changed := !reconcile.SameState(next, b.items)
	if changed {
		b.items = next
		b.commitLocked()
	}
	b.mu.Unlock()

	metrics.Merges.WithLabelValues(VisitsKey, metrics.Changed(changed)).Inc()
	if changed {
		b.log.Debug("visits reconciled", "count", len(next))
		b.notify()
	}
	return changed
}

// commitLocked persists the current items. Callers hold b.mu.
func (b *VisitBoard) commitLocked() {
	if b.cache != nil {
		b.cache.Save(VisitsKey, b.items)
	}
	b.observeLocked()
}

func (b *VisitBoard) observe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observeLocked()
}

func (b *VisitBoard) observeLocked() {
	metrics.Items.WithLabelValues(VisitsKey).Set(float64(len(b.items)))
	metrics.Pending.WithLabelValues(VisitsKey).Set(float64(countPending(b.items)))
	metrics.Shadows.WithLabelValues(VisitsKey).Set(float64(b.ledger.Len()))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
