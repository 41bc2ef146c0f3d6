package board

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sadopc/cragboard/internal/metrics"
	"github.com/sadopc/cragboard/internal/reconcile"
)

// GymAPI is the gyms endpoint. FetchGyms returns nil on any failure.
type GymAPI interface {
	FetchGyms(ctx context.Context) []GymEntry
	SaveGym(ctx context.Context, g GymEntry) bool
}

// GymBoard is the gym catalog shared by the group.
type GymBoard struct {
	notifier

	api   GymAPI
	cache Cache[GymEntry]
	opts  Options
	log   *slog.Logger

	mu      sync.Mutex
	items   []GymEntry
	ledger  *reconcile.ShadowLedger
	editing bool
	syncer  SyncFunc
}

// NewGymBoard creates the board from the cache, or from the built-in catalog
// when nothing is cached.
func NewGymBoard(api GymAPI, cache Cache[GymEntry], opts Options) *GymBoard {
	opts = opts.withDefaults(reconcile.DefaultShadowTTL)
	b := &GymBoard{
		api:    api,
		cache:  cache,
		opts:   opts,
		log:    opts.Logger.With("entity", GymsKey),
		ledger: reconcile.NewShadowLedger(opts.TTL),
		items:  DefaultGyms(),
	}
	b.syncer = b.Refresh
	if cache != nil {
		if cached, ok := cache.Load(GymsKey); ok && len(cached) > 0 {
			b.items = cached
		}
	}
	return b
}

// SetSync replaces the post-mutation sync.
func (b *GymBoard) SetSync(fn SyncFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		fn = b.Refresh
	}
	b.syncer = fn
}

// Items returns a copy of the catalog.
func (b *GymBoard) Items() []GymEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Names lists gym names in catalog order.
func (b *GymBoard) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.items))
	for _, g := range b.items {
		out = append(out, g.Name)
	}
	return out
}

// Gym looks a gym up by id.
func (b *GymBoard) Gym(id string) (GymEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.items, func(g GymEntry) bool { return g.ID == id })
	if i < 0 {
		return GymEntry{}, false
	}
	return b.items[i], true
}

// Icon returns the icon of the gym with the given name.
func (b *GymBoard) Icon(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range b.items {
		if g.Name == name {
			return g.Icon
		}
	}
	return ""
}

// SetEditing marks whether the user is editing a gym. Polls are held off
// while editing so a snapshot cannot replace the form's source.
func (b *GymBoard) SetEditing(editing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.editing = editing
}

// Editing reports whether a gym edit is in progress.
func (b *GymBoard) Editing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editing
}

// Save applies an edit (or adds a gym when g.ID is empty) optimistically and
// sends it to the server. The edit shadows older server versions of the gym.
// On failure the local version is kept until it expires and ErrSaveFailed is
// returned.
func (b *GymBoard) Save(ctx context.Context, g GymEntry) (GymEntry, error) {
	g.Name = strings.TrimSpace(g.Name)
	g.Icon = strings.TrimSpace(g.Icon)
	if g.Name == "" {
		return GymEntry{}, ErrUnknownGym
	}
	if g.Details == nil {
		g.Details = map[string]any{}
	} else {
		g.Details = maps.Clone(g.Details)
	}

	now := b.opts.Clock()

	b.mu.Lock()
	if g.ID == "" {
		g.ID = g.Name
	} else if !slices.ContainsFunc(b.items, func(it GymEntry) bool { return it.ID == g.ID }) {
		b.mu.Unlock()
		return GymEntry{}, ErrUnknownGym
	}
	g = g.WithFingerprint()
	g.Pending = true
	g.OptimisticCreatedAt = now.UnixMilli()
	b.ledger.RecordEdit(g.ID, g.Fingerprint, now)

	if i := slices.IndexFunc(b.items, func(it GymEntry) bool { return it.ID == g.ID }); i >= 0 {
		b.items[i] = g
	} else {
		b.items = append(b.items, g)
	}
	b.commitLocked()
	syncFn := b.syncer
	b.mu.Unlock()
	b.notify()

	ok := b.api.SaveGym(ctx, g)
	metrics.Mutations.WithLabelValues(GymsKey, "save", result(ok)).Inc()
	syncFn(ctx)
	if !ok {
		b.log.Warn("save gym failed", "id", g.ID)
		return g, ErrSaveFailed
	}
	return g, nil
}

// Refresh fetches the catalog and reconciles it. An empty server catalog is
// replaced by the built-in one.
func (b *GymBoard) Refresh(ctx context.Context) bool {
	start := time.Now()
	server := b.api.FetchGyms(ctx)
	metrics.FetchDuration.WithLabelValues(GymsKey).Observe(time.Since(start).Seconds())
	if server == nil {
		b.log.Debug("gyms fetch failed, keeping previous state")
		return false
	}
	if len(server) == 0 {
		server = DefaultGyms()
	}
	b.Reconcile(server)
	return true
}

// Reconcile merges a catalog snapshot into the board and reports whether
// anything changed.
func (b *GymBoard) Reconcile(server []GymEntry) bool {
	now := b.opts.Clock()

	b.mu.Lock()
	next := MergeGyms(server, b.items, b.ledger, b.opts.TTL, now)
	changed := !reconcile.SameState(next, b.items)
	if changed {
		b.items = next
		b.commitLocked()
	}
	b.mu.Unlock()

	metrics.Merges.WithLabelValues(GymsKey, metrics.Changed(changed)).Inc()
	if changed {
		b.notify()
	}
	return changed
}

func (b *GymBoard) commitLocked() {
	if b.cache != nil {
		b.cache.Save(GymsKey, b.items)
	}
	metrics.Items.WithLabelValues(GymsKey).Set(float64(len(b.items)))
	metrics.Pending.WithLabelValues(GymsKey).Set(float64(countPending(b.items)))
	metrics.Shadows.WithLabelValues(GymsKey).Set(float64(b.ledger.Len()))
}
