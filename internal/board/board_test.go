package board

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/cragboard/internal/reconcile"
)

// ============================================================
// Test doubles
// ============================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memCache[T any] struct {
	mu    sync.Mutex
	data  map[string][]T
	saves int
}

func newMemCache[T any]() *memCache[T] {
	return &memCache[T]{data: make(map[string][]T)}
}

func (c *memCache[T]) Save(key string, items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]T(nil), items...)
	c.saves++
}

func (c *memCache[T]) Load(key string) ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.data[key]
	return items, ok
}

func (c *memCache[T]) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

type fakeVisitAPI struct {
	mu        sync.Mutex
	snapshot  []VisitEvent
	fail      bool // fetch fails
	rejectAll bool // mutations fail
	nextRow   int
	deleted   []string
}

func (f *fakeVisitAPI) FetchVisits(context.Context) []VisitEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil
	}
	return append([]VisitEvent{}, f.snapshot...)
}

func (f *fakeVisitAPI) CreateVisit(_ context.Context, v VisitEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectAll {
		return false
	}
	f.nextRow++
	row := strconv.Itoa(100 + f.nextRow)
	f.snapshot = append(f.snapshot, serverVisit(row, v.Date, v.Name, v.Gym, v.Time, v.Unsure))
	return true
}

func (f *fakeVisitAPI) DeleteVisit(_ context.Context, row string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectAll {
		return false
	}
	f.deleted = append(f.deleted, row)
	return true
}

func (f *fakeVisitAPI) set(items ...VisitEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = items
}

func serverVisit(row, date, name, gym, at string, unsure bool) VisitEvent {
	v := VisitEvent{Date: date, Name: name, Gym: gym, Time: at, Unsure: unsure, Row: row}
	v = v.WithFingerprint()
	v.ID = row
	return v
}

func newTestVisitBoard(t *testing.T) (*VisitBoard, *fakeVisitAPI, *memCache[VisitEvent], *fakeClock) {
	t.Helper()
	api := &fakeVisitAPI{}
	cache := newMemCache[VisitEvent]()
	clock := newFakeClock()
	b := NewVisitBoard(api, cache, Options{Clock: clock.Now})
	return b, api, cache, clock
}

// ============================================================
// Normalization
// ============================================================

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"2024-05-01", "2024-05-01"},
		{"2024-04-30T21:00:00.000Z", "2024-05-01"},
		{"2024-05-01T10:00:00+03:00", "2024-05-01"},
		{"01.05.2024", "2024-05-01"},
		{"2024/5/1", "2024-05-01"},
		{"", ""},
		{nil, ""},
		{"garbage", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDate(tt.in), "input %v", tt.in)
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"19:00", "19:00"},
		{"19:00:00", "19:00"},
		{"1899-12-30T16:00:00.000Z", "19:00"},
		{"at 18:30 maybe", "18:30"},
		{"", ""},
		{"evening", "evening"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTime(tt.in), "input %v", tt.in)
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, "true", "1", "yes", "Да", float64(1)} {
		assert.True(t, Truthy(v), "%v", v)
	}
	for _, v := range []any{false, nil, "", "0", "no", float64(0)} {
		assert.False(t, Truthy(v), "%v", v)
	}
}

func TestParseUnsureName(t *testing.T) {
	name, unsure := ParseUnsureName("  Ann (?) ")
	assert.Equal(t, "Ann", name)
	assert.True(t, unsure)

	name, unsure = ParseUnsureName("Bob")
	assert.Equal(t, "Bob", name)
	assert.False(t, unsure)
}

func TestNormalizeVisits_Objects(t *testing.T) {
	raw := []any{
		map[string]any{"date": "2024-05-01", "name": "Ann (?)", "gym": " Tokyo ", "time": "19:00:00", "row": float64(7)},
		map[string]any{"date": "2024-05-02", "name": "Bob", "gym": "Limestone", "unsure": "да"},
		map[string]any{"date": "", "name": "Nobody"},
		"not an object",
	}
	got := NormalizeVisits(raw)
	require.Len(t, got, 2)

	assert.Equal(t, "7", got[0].ID)
	assert.Equal(t, "7", got[0].Row)
	assert.Equal(t, "Ann", got[0].Name)
	assert.True(t, got[0].Unsure)
	assert.Equal(t, "Tokyo", got[0].Gym)
	assert.Equal(t, "19:00", got[0].Time)
	assert.Equal(t, "2024-05-01|Ann|Tokyo|19:00|1", got[0].Fingerprint)

	assert.True(t, got[1].Unsure)
	assert.NotEmpty(t, got[1].ID, "missing ids are derived")
}

func TestNormalizeVisits_StableFallbackIDs(t *testing.T) {
	raw := []any{
		map[string]any{"date": "2024-05-01", "name": "Ann"},
		map[string]any{"date": "2024-05-01", "name": "Ann"},
	}
	first := NormalizeVisits(raw)
	second := NormalizeVisits(raw)
	require.Len(t, first, 2)
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.True(t, reconcile.SameState(first, second))
}

func TestNormalizeVisits_Rows(t *testing.T) {
	raw := []any{
		[]any{"2024-05-01", "Ann", "Tokyo", "19:00", false},
		[]any{"2024-05-02", "Bob (?)", "Rockzona", "18:00"},
		[]any{"2024-05-03"},
	}
	got := NormalizeVisits(raw)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].Row)
	assert.True(t, got[1].Unsure)
	assert.Equal(t, "Bob", got[1].Name)
}

func TestFingerprintIndependentOfKeyOrder(t *testing.T) {
	a := NormalizeVisits([]any{map[string]any{"date": "2024-05-01", "name": "Ann", "gym": "Tokyo", "time": "19:00"}})
	b := NormalizeVisits([]any{map[string]any{"time": "19:00", "gym": "Tokyo", "name": "Ann", "date": "2024-05-01"}})
	assert.Equal(t, a[0].Fingerprint, b[0].Fingerprint)
	assert.Equal(t, VisitFingerprint(a[0]), VisitFingerprint(a[0]))
}

func TestLocalID(t *testing.T) {
	now := time.UnixMilli(1714564800000)
	id := LocalID(now)
	assert.Regexp(t, `^local-1714564800000-[0-9a-z]{6}$`, id)
	assert.True(t, strings.HasPrefix(id, "local-"), id)
}

// ============================================================
// Visit board
// ============================================================

func TestVisitBoard_CreateScenario(t *testing.T) {
	b, api, _, _ := newTestVisitBoard(t)
	api.mu.Lock()
	api.fail = true
	api.mu.Unlock()

	ch := b.Subscribe()
	v, err := b.Submit(context.Background(), VisitEvent{Date: "2024-05-01", Name: "Ann", Gym: "Tokyo", Time: "19:00"})
	require.NoError(t, err)
	assert.True(t, v.Pending)
	assert.True(t, strings.HasPrefix(v.ID, "local-"), v.ID)

	items := b.Items()
	require.Len(t, items, 1, "optimistic record is shown while the fetch fails")
	assert.True(t, items[0].Pending)
	select {
	case <-ch:
	default:
		t.Fatal("expected a change notification")
	}

	api.mu.Lock()
	api.fail = false
	api.mu.Unlock()
	require.True(t, b.Refresh(context.Background()))

	items = b.Items()
	require.Len(t, items, 1, "server version replaces the optimistic one")
	assert.Equal(t, "101", items[0].ID)
	assert.False(t, items[0].Pending)
	assert.Equal(t, v.Fingerprint, items[0].Fingerprint)
}

func TestVisitBoard_SubmitSyncsAfterRoundTrip(t *testing.T) {
	b, _, _, _ := newTestVisitBoard(t)
	_, err := b.Submit(context.Background(), VisitEvent{Date: "2024-05-01", Name: "Ann"})
	require.NoError(t, err)

	items := b.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "101", items[0].ID)
}

func TestVisitBoard_SubmitValidation(t *testing.T) {
	b, _, _, _ := newTestVisitBoard(t)

	_, err := b.Submit(context.Background(), VisitEvent{Date: "2024-05-01", Name: "  "})
	assert.ErrorIs(t, err, ErrNoName)

	_, err = b.Submit(context.Background(), VisitEvent{Date: "someday", Name: "Ann"})
	assert.ErrorIs(t, err, ErrInvalidVisit)
	assert.Empty(t, b.Items())
}

func TestVisitBoard_SubmitFailureRollsBack(t *testing.T) {
	b, api, cache, _ := newTestVisitBoard(t)
	api.rejectAll = true

	_, err := b.Submit(context.Background(), VisitEvent{Date: "2024-05-01", Name: "Ann"})
	require.True(t, errors.Is(err, ErrSubmitFailed))
	assert.Empty(t, b.Items())

	cached, ok := cache.Load(VisitsKey)
	require.True(t, ok)
	assert.Empty(t, cached, "cache is rewritten after rollback")
}

func TestVisitBoard_DeleteThenStalePoll(t *testing.T) {
	b, api, _, clock := newTestVisitBoard(t)
	f := serverVisit("3", "2024-05-01", "Ann", "Tokyo", "19:00", false)
	api.set(f)
	require.True(t, b.Refresh(context.Background()))
	require.Len(t, b.Items(), 1)

	// The server keeps returning the row for a while.
	require.NoError(t, b.Delete(context.Background(), "3"))
	assert.Equal(t, []string{"3"}, api.deleted)
	assert.Empty(t, b.Items())

	clock.Advance(2 * time.Second)
	b.Refresh(context.Background())
	assert.Empty(t, b.Items(), "fresh shadow vetoes the stale row")

	// Past the shadow TTL a lagging server re-admits the row. This is the
	// accepted cost of a TTL shorter than the poll interval.
	clock.Advance(4 * time.Second)
	b.Refresh(context.Background())
	require.Len(t, b.Items(), 1)

	api.set()
	b.Refresh(context.Background())
	assert.Empty(t, b.Items())
}

func TestVisitBoard_DeleteFailureRestores(t *testing.T) {
	b, api, _, _ := newTestVisitBoard(t)
	api.set(
		serverVisit("1", "2024-05-01", "Ann", "", "", false),
		serverVisit("2", "2024-05-02", "Bob", "", "", false),
	)
	b.Refresh(context.Background())

	api.mu.Lock()
	api.rejectAll = true
	api.mu.Unlock()

	err := b.Delete(context.Background(), "1")
	require.ErrorIs(t, err, ErrDeleteFailed)
	assert.Equal(t, []string{"1", "2"}, visitIDs(b.Items()))
	assert.Zero(t, b.ledger.Len(), "shadow of the failed delete is dropped")
}

func TestVisitBoard_DeletePendingIsLocalOnly(t *testing.T) {
	b, api, _, _ := newTestVisitBoard(t)
	api.fail = true
	v, err := b.Submit(context.Background(), VisitEvent{Date: "2024-05-01", Name: "Ann"})
	require.NoError(t, err)

	require.NoError(t, b.Delete(context.Background(), v.ID))
	assert.Empty(t, b.Items())
	assert.Empty(t, api.deleted)

	require.NoError(t, b.Delete(context.Background(), "missing"))
}

func TestVisitBoard_DeleteWithoutServerRowIsLocalOnly(t *testing.T) {
	b, api, _, _ := newTestVisitBoard(t)
	server := NormalizeVisits([]any{
		map[string]any{"date": "2024-05-01", "name": "Ann", "gym": "Tokyo", "time": "19:00"},
	})
	require.Len(t, server, 1)
	require.Empty(t, server[0].Row)
	api.set(server...)
	require.True(t, b.Refresh(context.Background()))

	require.NoError(t, b.Delete(context.Background(), server[0].ID))
	assert.Empty(t, api.deleted, "no delete is sent without a server row")
	assert.Empty(t, b.Items())

	b.Refresh(context.Background())
	assert.Empty(t, b.Items(), "shadow still vetoes the stale object")
}

func TestVisitBoard_DuplicateFingerprints(t *testing.T) {
	b, api, _, _ := newTestVisitBoard(t)
	api.fail = true
	draft := VisitEvent{Date: "2024-05-01", Name: "Ann", Gym: "Tokyo", Time: "19:00"}

	first, err := b.Submit(context.Background(), draft)
	require.NoError(t, err)
	second, err := b.Submit(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.ID, second.ID)

	b.Reconcile([]VisitEvent{
		serverVisit("10", "2024-05-01", "Ann", "Tokyo", "19:00", false),
		serverVisit("11", "2024-05-01", "Ann", "Tokyo", "19:00", false),
	})
	items := b.Items()
	assert.Equal(t, []string{"10", "11"}, visitIDs(items))
	assert.Equal(t, []string{first.Fingerprint + "|1", first.Fingerprint + "|2"}, reconcile.OccurrenceKeys(items))
}

func TestVisitBoard_UnchangedMergeIsSilent(t *testing.T) {
	b, api, cache, _ := newTestVisitBoard(t)
	api.set(serverVisit("1", "2024-05-01", "Ann", "", "", false))
	require.True(t, b.Reconcile(api.FetchVisits(context.Background())))
	saves := cache.Saves()

	ch := b.Subscribe()
	assert.False(t, b.Reconcile(api.FetchVisits(context.Background())))
	assert.Equal(t, saves, cache.Saves())
	select {
	case <-ch:
		t.Fatal("unchanged merge must not notify")
	default:
	}
}

func TestVisitBoard_FailedFetchKeepsState(t *testing.T) {
	b, api, _, _ := newTestVisitBoard(t)
	api.set(serverVisit("1", "2024-05-01", "Ann", "", "", false))
	b.Refresh(context.Background())

	api.fail = true
	assert.False(t, b.Refresh(context.Background()))
	assert.Len(t, b.Items(), 1)
}

func TestVisitBoard_LoadsCache(t *testing.T) {
	cache := newMemCache[VisitEvent]()
	cache.Save(VisitsKey, []VisitEvent{serverVisit("5", "2024-05-01", "Ann", "", "", false)})

	b := NewVisitBoard(&fakeVisitAPI{}, cache, Options{})
	assert.Equal(t, []string{"5"}, visitIDs(b.Items()))
}

func TestVisitIndex(t *testing.T) {
	items := []VisitEvent{
		serverVisit("1", "2024-05-01", "Ann", "Tokyo", "", true),
		serverVisit("2", "2024-05-01", "Bob", "Tokyo", "", false),
		serverVisit("3", "2024-05-01", "Cid", "Rockzona", "", false),
		serverVisit("4", "2024-05-02", "Dee", "Limestone", "", false),
	}
	idx := IndexVisits(items)
	day := idx.Day("2024-05-01")
	assert.Len(t, day.All, 3)
	assert.Equal(t, []string{"2", "3", "1"}, visitIDs(day.Ordered()))
	assert.Equal(t, []string{"Tokyo", "Rockzona"}, idx.Gyms("2024-05-01", 0))
	assert.Equal(t, []string{"Tokyo"}, idx.Gyms("2024-05-01", 1))
	assert.Empty(t, idx.Day("2024-06-01").All)

	counts := CountByGym(items, "2024-05")
	assert.Equal(t, []GymCount{{"Limestone", 1}, {"Rockzona", 1}, {"Tokyo", 1}}, counts)
}

func visitIDs(items []VisitEvent) []string {
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = v.ID
	}
	return out
}
