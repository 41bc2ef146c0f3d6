package board

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sadopc/cragboard/internal/reconcile"
)

// GymEntry is a gym card with free-form details edited by the group.
type GymEntry struct {
	reconcile.Meta
	Name    string         `json:"name"` // required
	Icon    string         `json:"icon"`
	Details map[string]any `json:"details"`
}

// GymFingerprint is id|name|icon|details, with details in canonical JSON
// (object keys sorted), so key order never changes the fingerprint.
func GymFingerprint(g GymEntry) string {
	id := g.ID
	if id == "" {
		id = g.Name
	}
	details := g.Details
	if details == nil {
		details = map[string]any{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		b = []byte("{}")
	}
	return reconcile.Fingerprint(id, g.Name, g.Icon, string(b))
}

// WithFingerprint returns a copy of g with its fingerprint stamped.
func (g GymEntry) WithFingerprint() GymEntry {
	g.Fingerprint = GymFingerprint(g)
	return g
}

// NormalizeGyms converts a decoded gyms payload into records. Entries
// without an id or name are skipped; the id falls back to the name.
func NormalizeGyms(raw []any) []GymEntry {
	out := make([]GymEntry, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id := strings.TrimSpace(firstNonEmpty(obj["id"], obj["name"]))
		name := strings.TrimSpace(str(obj["name"]))
		if name == "" {
			name = id
		}
		if id == "" {
			id = name
		}
		if id == "" || name == "" {
			continue
		}
		details, _ := obj["details"].(map[string]any)
		if details == nil {
			details = map[string]any{}
		}
		g := GymEntry{
			Meta:    reconcile.Meta{ID: id, Pending: Truthy(obj["pending"])},
			Name:    name,
			Icon:    strings.TrimSpace(str(obj["icon"])),
			Details: details,
		}
		for _, k := range []string{"optimistic_created_at", "optimisticCreatedAt"} {
			if ts, ok := obj[k].(float64); ok {
				g.OptimisticCreatedAt = int64(ts)
				break
			}
		}
		out = append(out, g.WithFingerprint())
	}
	return out
}

// DefaultGymIcons is the built-in catalog used until the server answers.
var DefaultGymIcons = []struct{ Name, Icon string }{
	{"Bigwall Динамо", "icons/bigwall.png"},
	{"Bigwall Гавань", "icons/bigwall.png"},
	{"Bigwall Ривьера", "icons/bigwall.png"},
	{"ClimbLab Бутырская", "icons/climblab.jpg"},
	{"ClimbLab Аминьевская", "icons/climblab.jpg"},
	{"Tengu's Мичуринский", "icons/tengus.png"},
	{"Tengu's Южная", "icons/tengus.png"},
	{"Limestone", "icons/limestone.png"},
	{"Rockzona", "icons/rockzona.png"},
	{"Tokyo", "icons/tokyo.png"},
	{"ЦСКА", "icons/cska.png"},
}

// DefaultGyms returns the built-in catalog as gym records.
func DefaultGyms() []GymEntry {
	out := make([]GymEntry, 0, len(DefaultGymIcons))
	for _, d := range DefaultGymIcons {
		g := GymEntry{Meta: reconcile.Meta{ID: d.Name}, Name: d.Name, Icon: d.Icon, Details: map[string]any{}}
		out = append(out, g.WithFingerprint())
	}
	return out
}

// MergeGyms reconciles a gyms snapshot with local state. Gyms are keyed by
// id: a fresh edit shadow hides server versions that predate the local edit,
// and unconfirmed local edits replace the server row with the same id.
func MergeGyms(server, current []GymEntry, ledger *reconcile.ShadowLedger, ttl time.Duration, now time.Time) []GymEntry {
	ledger.Prune(now)

	out := make([]GymEntry, 0, len(server))
	pos := make(map[string]int, len(server))
	put := func(g GymEntry) {
		if i, ok := pos[g.ID]; ok {
			out[i] = g
			return
		}
		pos[g.ID] = len(out)
		out = append(out, g)
	}

	for _, g := range server {
		if ledger.Vetoes(g.ID, g.Fingerprint) {
			continue
		}
		put(g)
	}

	unresolved := reconcile.CollectUnresolved(current, out, ttl, now, func(g GymEntry, _ []GymEntry) bool {
		i, ok := pos[g.ID]
		return ok && out[i].Fingerprint == g.Fingerprint
	})
	for _, g := range unresolved {
		put(g.WithFingerprint())
	}
	return out
}
