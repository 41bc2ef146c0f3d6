// Package board holds the per-entity state containers of the climbing board:
// visits, gyms and chat. Each board owns its records, its shadow ledger and
// its cache slot, applies local mutations optimistically and folds server
// snapshots back in through the reconcilers.
package board

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Cache keys.
const (
	VisitsKey = "visits"
	GymsKey   = "gyms"
	ChatKey   = "chat"
)

// Cache persists a board's records between runs. Implementations swallow
// their own failures: Save may silently do nothing and Load reports a miss.
type Cache[T any] interface {
	Save(key string, items []T)
	Load(key string) ([]T, bool)
}

// Options are shared by all boards.
type Options struct {
	// TTL bounds optimistic records and shadows. Zero uses the entity default.
	TTL    time.Duration
	Clock  func() time.Time
	Logger *slog.Logger
}

func (o Options) withDefaults(ttl time.Duration) Options {
	if o.TTL <= 0 {
		o.TTL = ttl
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// SyncFunc fetches and reconciles one snapshot. Boards call it after every
// mutation round-trip; the poller installs its SyncAfter, which waits for a
// tick fetch in flight and then fetches again.
type SyncFunc func(ctx context.Context) bool

// notifier fans change signals out to subscribers. A subscriber that has not
// drained its previous signal does not get a second one.
type notifier struct {
	mu   sync.Mutex
	subs []chan struct{}
}

// Subscribe returns a channel that receives a value after every state change.
func (n *notifier) Subscribe() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan struct{}, 1)
	n.subs = append(n.subs, ch)
	return ch
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func countPending[T interface{ IsPending() bool }](items []T) int {
	n := 0
	for _, it := range items {
		if it.IsPending() {
			n++
		}
	}
	return n
}
