package reconcile

import "time"

// Resolver reports whether an optimistic item already has a server
// counterpart in the snapshot.
type Resolver[T Item] func(item T, server []T) bool

// IsPendingFresh reports whether item is pending, stamped, and younger than ttl.
func IsPendingFresh[T Item](item T, ttl time.Duration, now time.Time) bool {
	if !item.IsPending() {
		return false
	}
	created := item.PendingSince()
	if created == 0 {
		return false
	}
	return now.Sub(time.UnixMilli(created)) < ttl
}

// CollectUnresolved returns the optimistic items of current that are still
// fresh and have no counterpart in server. A nil resolver treats every item
// as unresolved. The result is never nil.
func CollectUnresolved[T Item](current, server []T, ttl time.Duration, now time.Time, isResolved Resolver[T]) []T {
	out := make([]T, 0)
	if len(current) == 0 {
		return out
	}
	for _, item := range current {
		if !IsPendingFresh(item, ttl, now) {
			continue
		}
		if isResolved != nil && isResolved(item, server) {
			continue
		}
		out = append(out, item)
	}
	return out
}
