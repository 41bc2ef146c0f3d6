// Package poll runs the fixed-interval snapshot loops. Each entity gets its
// own Poller. At most one fetch per poller runs at a time: ticks that find a
// fetch in flight are dropped, syncs after a mutation wait for it.
package poll

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadopc/cragboard/internal/metrics"
)

// SyncFunc fetches and reconciles one snapshot, reporting false when the
// fetch failed.
type SyncFunc func(ctx context.Context) bool

// Poller calls a SyncFunc on a fixed interval. There is no backoff: a failed
// fetch is simply retried on the next tick.
type Poller struct {
	name     string
	interval time.Duration
	syncFn   SyncFunc
	gate     func() bool
	logger   *slog.Logger

	loading atomic.Bool
	slot    chan struct{} // holds a token while a fetch runs
	trigger chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastOK  time.Time
	failing int
}

// Option configures a Poller.
type Option func(*Poller)

// WithGate skips ticks while gate returns false. Explicit SyncNow and SyncAfter
// calls are not gated.
func WithGate(gate func() bool) Option {
	return func(p *Poller) { p.gate = gate }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// New creates a stopped poller for the named entity.
func New(name string, interval time.Duration, fn SyncFunc, opts ...Option) *Poller {
	p := &Poller{
		name:     name,
		interval: interval,
		syncFn:   fn,
		slot:     make(chan struct{}, 1),
		trigger:  make(chan struct{}, 1),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("poller", name)
	return p
}

// Name returns the entity name.
func (p *Poller) Name() string { return p.name }

// Start launches the loop. It syncs immediately, then on every tick. Starting
// a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop ends the loop and waits for it to exit. A fetch already in flight
// finishes first.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Loading reports whether a fetch is in flight.
func (p *Poller) Loading() bool { return p.loading.Load() }

// LastSuccess is when a fetch last succeeded.
func (p *Poller) LastSuccess() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOK
}

// Failing is the number of consecutive failed fetches.
func (p *Poller) Failing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failing
}

// Trigger asks a running loop for an out-of-band sync. Triggers coalesce.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// SyncNow fetches and reconciles right away unless a fetch is already in
// flight, in which case it returns false without waiting.
func (p *Poller) SyncNow(ctx context.Context) bool {
	select {
	case p.slot <- struct{}{}:
	default:
		metrics.Polls.WithLabelValues(p.name, "skipped").Inc()
		return false
	}
	return p.fetch(ctx)
}

// SyncAfter waits for a fetch in flight to finish and then fetches again, so
// the snapshot it reconciles was taken after the caller's mutation. It
// returns false if ctx ends while waiting.
func (p *Poller) SyncAfter(ctx context.Context) bool {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	return p.fetch(ctx)
}

// fetch runs the SyncFunc while holding the slot.
func (p *Poller) fetch(ctx context.Context) bool {
	p.loading.Store(true)
	defer func() {
		p.loading.Store(false)
		<-p.slot
	}()

	ok := p.syncFn(ctx)

	p.mu.Lock()
	if ok {
		p.lastOK = time.Now()
		p.failing = 0
	} else {
		p.failing++
	}
	failing := p.failing
	p.mu.Unlock()

	if ok {
		metrics.Polls.WithLabelValues(p.name, "ok").Inc()
	} else {
		metrics.Polls.WithLabelValues(p.name, "failed").Inc()
		p.logger.Debug("sync failed, retrying next tick", "consecutive", failing)
	}
	return ok
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug("poller started", "interval", p.interval)
	p.SyncNow(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller stopped")
			return
		case <-ticker.C:
			if p.gate != nil && !p.gate() {
				metrics.Polls.WithLabelValues(p.name, "gated").Inc()
				continue
			}
			p.SyncNow(ctx)
		case <-p.trigger:
			p.SyncNow(ctx)
		}
	}
}
