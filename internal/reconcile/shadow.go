package reconcile

import "time"

// DefaultShadowTTL is how long a deletion keeps vetoing server records.
const DefaultShadowTTL = 5 * time.Second

// Shadow is a time-boxed tombstone. ID is only set for edit shadows.
type Shadow struct {
	Fingerprint string `json:"fingerprint"`
	ID          string `json:"id,omitempty"`
	CreatedAt   int64  `json:"created_at"` // unix ms
}

// ShadowLedger remembers recent local deletes and edits so that a snapshot
// taken before the server caught up cannot undo them. It is not safe for
// concurrent use; the owning board guards it.
type ShadowLedger struct {
	ttl     time.Duration
	shadows []Shadow
}

// NewShadowLedger creates an empty ledger. A non-positive ttl falls back to
// DefaultShadowTTL.
func NewShadowLedger(ttl time.Duration) *ShadowLedger {
	if ttl <= 0 {
		ttl = DefaultShadowTTL
	}
	return &ShadowLedger{ttl: ttl}
}

// TTL returns the shadow lifetime.
func (l *ShadowLedger) TTL() time.Duration { return l.ttl }

// Record adds a deletion shadow for fingerprint.
func (l *ShadowLedger) Record(fingerprint string, now time.Time) {
	l.shadows = append(l.shadows, Shadow{Fingerprint: fingerprint, CreatedAt: now.UnixMilli()})
}

// RecordEdit adds an edit shadow: while fresh, server versions of id whose
// fingerprint differs from fingerprint are considered stale.
func (l *ShadowLedger) RecordEdit(id, fingerprint string, now time.Time) {
	l.shadows = append(l.shadows, Shadow{Fingerprint: fingerprint, ID: id, CreatedAt: now.UnixMilli()})
}

// Forget removes the most recent deletion shadow for fingerprint, used when
// the delete it protected was rolled back.
func (l *ShadowLedger) Forget(fingerprint string) {
	if l == nil {
		return
	}
	for i := len(l.shadows) - 1; i >= 0; i-- {
		if s := l.shadows[i]; s.ID == "" && s.Fingerprint == fingerprint {
			l.shadows = append(l.shadows[:i], l.shadows[i+1:]...)
			return
		}
	}
}

// Prune drops shadows that are ttl or older.
func (l *ShadowLedger) Prune(now time.Time) {
	if l == nil {
		return
	}
	kept := l.shadows[:0]
	for _, s := range l.shadows {
		if now.Sub(time.UnixMilli(s.CreatedAt)) < l.ttl {
			kept = append(kept, s)
		}
	}
	clear(l.shadows[len(kept):])
	l.shadows = kept
}

// IsShadowed reports whether a deletion shadow exists for fingerprint.
// Callers prune first.
func (l *ShadowLedger) IsShadowed(fingerprint string) bool {
	if l == nil {
		return false
	}
	for _, s := range l.shadows {
		if s.ID == "" && s.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// Vetoes reports whether an edit shadow marks the server version (id,
// fingerprint) as stale. The most recent edit for id wins.
func (l *ShadowLedger) Vetoes(id, fingerprint string) bool {
	if l == nil || id == "" {
		return false
	}
	for i := len(l.shadows) - 1; i >= 0; i-- {
		s := l.shadows[i]
		if s.ID == id {
			return s.Fingerprint != fingerprint
		}
	}
	return false
}

// Len returns the number of shadows currently held.
func (l *ShadowLedger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.shadows)
}

// Shadows returns a copy of the held shadows.
func (l *ShadowLedger) Shadows() []Shadow {
	if l == nil {
		return nil
	}
	out := make([]Shadow, len(l.shadows))
	copy(out, l.shadows)
	return out
}
