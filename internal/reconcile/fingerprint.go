// Package reconcile merges server snapshots with optimistic local state.
//
// The backend behind the board only offers a full-list GET and a
// fire-and-forget POST, so every write is applied locally first and later
// confirmed (or not) by a snapshot. The pieces here are pure and
// allocation-light: fingerprints decide identity across writes, the tracker
// keeps unconfirmed items alive for a TTL, and the shadow ledger stops a
// stale snapshot from bringing back something that was just deleted.
package reconcile

import "strings"

// Separator joins canonical field values inside a fingerprint.
const Separator = "|"

// Fingerprint joins canonical field values into a content key. Two records
// with the same semantic fields yield the same fingerprint regardless of
// their ids.
func Fingerprint(values ...string) string {
	return strings.Join(values, Separator)
}

// Flag renders a boolean field the way fingerprints expect it.
func Flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Meta carries the bookkeeping every reconciled record needs. Entities embed
// it next to their semantic fields.
type Meta struct {
	ID                  string `json:"id"`
	Fingerprint         string `json:"fingerprint"`
	Pending             bool   `json:"pending,omitempty"`
	OptimisticCreatedAt int64  `json:"optimistic_created_at,omitempty"` // unix ms
}

// ItemID returns the record id.
func (m Meta) ItemID() string { return m.ID }

// ItemFingerprint returns the fingerprint of the record's semantic fields.
func (m Meta) ItemFingerprint() string { return m.Fingerprint }

// IsPending reports whether the record is a local change the server has not
// confirmed yet.
func (m Meta) IsPending() bool { return m.Pending }

// PendingSince is when the pending record was created, in unix ms.
func (m Meta) PendingSince() int64 { return m.OptimisticCreatedAt }

// Item is the view of a record the reconciler works with.
type Item interface {
	ItemID() string
	ItemFingerprint() string
	IsPending() bool
	PendingSince() int64
}
