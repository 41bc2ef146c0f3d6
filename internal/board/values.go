package board

import (
	"encoding/json"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Zone is the wall clock the group schedules in. Server datetimes are
// shifted into it before being cut into dates and times.
var Zone = time.FixedZone("UTC+3", 3*60*60)

var (
	isoDateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	longTimeRe  = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
	shortTimeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
	zoneRe      = regexp.MustCompile(`[zZ]|[+-]\d{2}:?\d{2}`)
	isoTimeRe   = regexp.MustCompile(`T(\d{2}:\d{2})`)
	plainTimeRe = regexp.MustCompile(`\b(\d{2}:\d{2})(?::\d{2})?\b`)
	noneRe      = regexp.MustCompile(`\bNone\b`)
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC1123Z,
	time.RFC1123,
}

var looseDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/1/2",
	"02.01.2006",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 02 2006",
}

func looksLikeDateTime(raw string) bool {
	return strings.Contains(raw, "T") || zoneRe.MatchString(raw)
}

func parseDateTime(raw string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, Zone); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate turns whatever the sheet returns into YYYY-MM-DD, or "".
func NormalizeDate(input any) string {
	raw := strings.TrimSpace(str(input))
	if raw == "" {
		return ""
	}
	if isoDateRe.MatchString(raw) {
		return raw
	}
	if looksLikeDateTime(raw) {
		if t, ok := parseDateTime(raw); ok {
			return t.In(Zone).Format("2006-01-02")
		}
	}
	for _, layout := range looseDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, Zone); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// NormalizeTime turns whatever the sheet returns into HH:MM. Unrecognized
// values pass through unchanged.
func NormalizeTime(input any) string {
	raw := strings.TrimSpace(str(input))
	if raw == "" {
		return ""
	}
	if longTimeRe.MatchString(raw) {
		return raw[:5]
	}
	if shortTimeRe.MatchString(raw) {
		return raw
	}
	if looksLikeDateTime(raw) {
		if t, ok := parseDateTime(raw); ok {
			return t.In(Zone).Format("15:04")
		}
	}
	if m := isoTimeRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := plainTimeRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

// Truthy accepts the flag spellings people type into the sheet.
func Truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	switch strings.ToLower(strings.TrimSpace(str(v))) {
	case "true", "1", "yes", "да":
		return true
	}
	return false
}

// str coerces a decoded JSON value into its display string.
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// firstNonEmpty returns the first value that coerces to a non-empty string.
func firstNonEmpty(values ...any) string {
	for _, v := range values {
		if s := strings.TrimSpace(str(v)); s != "" && s != "0" && s != "false" {
			return s
		}
	}
	return ""
}

// stableID derives a deterministic id for a server record that came without
// one, so repeated polls of the same snapshot stay byte-identical.
func stableID(fingerprint string, occurrence int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fingerprint+"|"+strconv.Itoa(occurrence))).String()
}

// LocalID generates a temporary id for an optimistic record:
// local-<unix ms>-<6 base36 chars>.
func LocalID(now time.Time) string {
	suffix := strconv.FormatInt(rand.Int64N(36*36*36*36*36*36), 36)
	for len(suffix) < 6 {
		suffix = "0" + suffix
	}
	return "local-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}
