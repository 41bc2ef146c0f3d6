package reconcile

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Merge combines a fresh server snapshot with the current local state.
//
// Server records whose fingerprint is shadowed are dropped. Pending local
// records survive when they are still fresh and no remaining server record
// shares their fingerprint. Server records come first, then the still
// pending local ones. Merge never fails; with an empty ledger and no pending
// items the result is the server snapshot itself.
func Merge[T Item](server, current []T, ledger *ShadowLedger, ttl time.Duration, now time.Time) []T {
	ledger.Prune(now)

	filtered := make([]T, 0, len(server))
	for _, item := range server {
		if ledger.IsShadowed(item.ItemFingerprint()) {
			continue
		}
		filtered = append(filtered, item)
	}

	serverPrints := FingerprintSet(filtered)
	unresolved := CollectUnresolved(current, filtered, ttl, now, func(item T, _ []T) bool {
		_, ok := serverPrints[item.ItemFingerprint()]
		return ok
	})

	return append(filtered, unresolved...)
}

// FingerprintSet indexes the fingerprints present in items.
func FingerprintSet[T Item](items []T) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item.ItemFingerprint()] = struct{}{}
	}
	return set
}

// SameState reports whether two states serialize identically. Empty and nil
// states are equal. A serialization error counts as a difference so the
// caller falls back to applying the new state.
func SameState[T any](a, b []T) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// OccurrenceKeys assigns every item a key of the form "fingerprint|n", where n
// is the 1-based occurrence of that fingerprint so far. UIs use it to tell
// apart records with identical content.
func OccurrenceKeys[T Item](items []T) []string {
	seen := make(map[string]int, len(items))
	keys := make([]string, len(items))
	for i, item := range items {
		fp := item.ItemFingerprint()
		seen[fp]++
		keys[i] = fp + Separator + strconv.Itoa(seen[fp])
	}
	return keys
}
