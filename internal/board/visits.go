package board

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sadopc/cragboard/internal/reconcile"
)

// UnsureMark is appended to a climber's name on the sheet when the visit is
// tentative.
const UnsureMark = " (?)"

// VisitEvent is one climber's planned gym visit.
type VisitEvent struct {
	reconcile.Meta
	Date   string `json:"date"` // YYYY-MM-DD, required
	Name   string `json:"name"` // required
	Gym    string `json:"gym"`
	Time   string `json:"time"` // HH:MM
	Unsure bool   `json:"unsure"`
	Row    string `json:"row,omitempty"` // sheet row, empty until the server assigns one
}

// VisitFingerprint is date|name|gym|time|unsure.
func VisitFingerprint(v VisitEvent) string {
	return reconcile.Fingerprint(v.Date, v.Name, v.Gym, v.Time, reconcile.Flag(v.Unsure))
}

// WithFingerprint returns a copy of v with its fingerprint stamped.
func (v VisitEvent) WithFingerprint() VisitEvent {
	v.Fingerprint = VisitFingerprint(v)
	return v
}

// SheetName is the name as written to the sheet, carrying the unsure mark.
func (v VisitEvent) SheetName() string {
	if v.Unsure {
		return v.Name + UnsureMark
	}
	return v.Name
}

// ParseUnsureName splits a sheet name into the climber name and the unsure
// flag encoded by UnsureMark.
func ParseUnsureName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", false
	}
	if !strings.HasSuffix(name, UnsureMark) {
		return name, false
	}
	return strings.TrimSpace(strings.TrimSuffix(name, UnsureMark)), true
}

// NormalizeVisits converts a decoded visits payload into records. The sheet
// returns either a list of objects or a list of rows
// [date, name, gym, time, unsure]; rows get their 1-based index as row id.
// Anything unusable is skipped.
func NormalizeVisits(raw []any) []VisitEvent {
	out := make([]VisitEvent, 0, len(raw))
	if len(raw) == 0 {
		return out
	}
	if _, isRow := raw[0].([]any); isRow {
		return normalizeVisitRows(raw)
	}

	seen := make(map[string]int)
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok || str(obj["date"]) == "" || str(obj["name"]) == "" {
			continue
		}
		name, unsureFromName := ParseUnsureName(str(obj["name"]))
		v := VisitEvent{
			Date:   NormalizeDate(obj["date"]),
			Name:   name,
			Gym:    strings.TrimSpace(str(obj["gym"])),
			Time:   NormalizeTime(obj["time"]),
			Unsure: Truthy(obj["unsure"]) || unsureFromName,
			Row:    firstNonEmpty(obj["row"], obj["id"]),
		}
		v = v.WithFingerprint()
		v.ID = firstNonEmpty(obj["id"], obj["row"])
		if v.ID == "" {
			seen[v.Fingerprint]++
			v.ID = stableID(v.Fingerprint, seen[v.Fingerprint])
		}
		if v.Date == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func normalizeVisitRows(raw []any) []VisitEvent {
	out := make([]VisitEvent, 0, len(raw))
	for i, entry := range raw {
		row, ok := entry.([]any)
		if !ok || len(row) < 4 {
			continue
		}
		var unsure any
		if len(row) > 4 {
			unsure = row[4]
		}
		name, unsureFromName := ParseUnsureName(str(row[1]))
		sourceRow := strconv.Itoa(i + 1)
		v := VisitEvent{
			Meta:   reconcile.Meta{ID: sourceRow},
			Date:   NormalizeDate(row[0]),
			Name:   name,
			Gym:    str(row[2]),
			Time:   NormalizeTime(row[3]),
			Unsure: Truthy(unsure) || unsureFromName,
			Row:    sourceRow,
		}
		if v.Date == "" || v.Name == "" {
			continue
		}
		out = append(out, v.WithFingerprint())
	}
	return out
}

// MergeVisits reconciles a visits snapshot with local state.
func MergeVisits(server, current []VisitEvent, ledger *reconcile.ShadowLedger, ttl time.Duration, now time.Time) []VisitEvent {
	return reconcile.Merge(server, current, ledger, ttl, now)
}

// DayVisits is the visits of one date split by certainty.
type DayVisits struct {
	All    []VisitEvent
	Sure   []VisitEvent
	Unsure []VisitEvent
}

// Ordered lists sure visits before unsure ones, the order the day list uses.
func (d DayVisits) Ordered() []VisitEvent {
	out := make([]VisitEvent, 0, len(d.All))
	out = append(out, d.Sure...)
	return append(out, d.Unsure...)
}

// VisitIndex groups visits by date.
type VisitIndex map[string][]VisitEvent

// IndexVisits builds a VisitIndex preserving the order of items.
func IndexVisits(items []VisitEvent) VisitIndex {
	idx := make(VisitIndex)
	for _, v := range items {
		idx[v.Date] = append(idx[v.Date], v)
	}
	return idx
}

// Day returns the visits on date.
func (idx VisitIndex) Day(date string) DayVisits {
	all := idx[date]
	d := DayVisits{All: all}
	for _, v := range all {
		if v.Unsure {
			d.Unsure = append(d.Unsure, v)
		} else {
			d.Sure = append(d.Sure, v)
		}
	}
	return d
}

// Gyms returns up to limit distinct gyms among the sure visits of date, in
// first-seen order. A non-positive limit means no limit.
func (idx VisitIndex) Gyms(date string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range idx.Day(date).Sure {
		g := strings.TrimSpace(v.Gym)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// CountByGym counts sure visits per gym for dates with the given prefix
// (for example "2024-05" for a month). Result is sorted by count, then name.
func CountByGym(items []VisitEvent, datePrefix string) []GymCount {
	counts := make(map[string]int)
	for _, v := range items {
		if v.Unsure || !strings.HasPrefix(v.Date, datePrefix) || v.Gym == "" {
			continue
		}
		counts[v.Gym]++
	}
	out := make([]GymCount, 0, len(counts))
	for gym, n := range counts {
		out = append(out, GymCount{Gym: gym, Visits: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Visits != out[j].Visits {
			return out[i].Visits > out[j].Visits
		}
		return out[i].Gym < out[j].Gym
	})
	return out
}

// GymCount is one row of CountByGym.
type GymCount struct {
	Gym    string
	Visits int
}
