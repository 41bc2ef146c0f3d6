package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/cragboard/internal/reconcile"
)

type fakeGymAPI struct {
	mu       sync.Mutex
	snapshot []GymEntry
	fail     bool
	reject   bool
	saved    []GymEntry
}

func (f *fakeGymAPI) FetchGyms(context.Context) []GymEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil
	}
	return append([]GymEntry{}, f.snapshot...)
}

func (f *fakeGymAPI) SaveGym(_ context.Context, g GymEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.saved = append(f.saved, g)
	return true
}

func serverGym(id, name, icon string, details map[string]any) GymEntry {
	if details == nil {
		details = map[string]any{}
	}
	g := GymEntry{Meta: reconcile.Meta{ID: id}, Name: name, Icon: icon, Details: details}
	return g.WithFingerprint()
}

func TestGymFingerprint_DetailsKeyOrder(t *testing.T) {
	a := NormalizeGyms([]any{map[string]any{"id": "tokyo", "name": "Tokyo", "details": map[string]any{"a": "1", "b": "2"}}})
	b := NormalizeGyms([]any{map[string]any{"name": "Tokyo", "details": map[string]any{"b": "2", "a": "1"}, "id": "tokyo"}})
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Fingerprint, b[0].Fingerprint)
	assert.Equal(t, `tokyo|Tokyo||{"a":"1","b":"2"}`, a[0].Fingerprint)
}

func TestNormalizeGyms(t *testing.T) {
	got := NormalizeGyms([]any{
		map[string]any{"name": " Rockzona ", "icon": "icons/rockzona.png"},
		map[string]any{"id": "x"},
		map[string]any{"icon": "nothing"},
		map[string]any{"id": "t", "name": "Tokyo", "pending": true, "optimisticCreatedAt": float64(42)},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "Rockzona", got[0].ID)
	assert.Equal(t, "x", got[1].Name)
	assert.NotNil(t, got[1].Details)
	assert.True(t, got[2].Pending)
	assert.Equal(t, int64(42), got[2].OptimisticCreatedAt)
}

func TestMergeGyms_EditShadowVetoesStaleVersion(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Second
	ledger := reconcile.NewShadowLedger(ttl)

	edited := serverGym("tokyo", "Tokyo", "icons/tokyo.png", map[string]any{"grade": "7a"})
	edited.Pending = true
	edited.OptimisticCreatedAt = now.UnixMilli()
	ledger.RecordEdit(edited.ID, edited.Fingerprint, now)

	stale := serverGym("tokyo", "Tokyo", "icons/tokyo.png", nil)
	other := serverGym("cska", "ЦСКА", "icons/cska.png", nil)

	got := MergeGyms([]GymEntry{stale, other}, []GymEntry{edited}, ledger, ttl, now.Add(time.Second))
	require.Len(t, got, 2)
	assert.Equal(t, "cska", got[0].ID)
	assert.Equal(t, "tokyo", got[1].ID)
	assert.Equal(t, "7a", got[1].Details["grade"])
	assert.True(t, got[1].Pending)

	confirmed := serverGym("tokyo", "Tokyo", "icons/tokyo.png", map[string]any{"grade": "7a"})
	got = MergeGyms([]GymEntry{confirmed, other}, got, ledger, ttl, now.Add(2*time.Second))
	require.Len(t, got, 2)
	assert.Equal(t, "tokyo", got[0].ID, "server order once confirmed")
	assert.False(t, got[0].Pending)
}

func TestMergeGyms_PendingReplacesInPlace(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	server := []GymEntry{
		serverGym("a", "A", "", nil),
		serverGym("b", "B", "", nil),
	}
	local := serverGym("a", "A", "new.png", nil)
	local.Pending = true
	local.OptimisticCreatedAt = now.UnixMilli()

	got := MergeGyms(server, []GymEntry{local}, nil, 5*time.Second, now)
	require.Len(t, got, 2)
	assert.Equal(t, "new.png", got[0].Icon)

	got = MergeGyms(server, []GymEntry{local}, nil, 5*time.Second, now.Add(5*time.Second))
	assert.Equal(t, "", got[0].Icon, "expired edit gives way to the server")
}

func TestGymBoard_DefaultsAndEmptyServer(t *testing.T) {
	api := &fakeGymAPI{}
	b := NewGymBoard(api, newMemCache[GymEntry](), Options{})
	assert.Len(t, b.Items(), len(DefaultGymIcons))

	require.True(t, b.Refresh(context.Background()))
	assert.Len(t, b.Items(), len(DefaultGymIcons), "empty catalog falls back to the defaults")
	assert.Equal(t, "icons/tokyo.png", b.Icon("Tokyo"))
}

func TestGymBoard_SaveShadowsStaleSnapshot(t *testing.T) {
	clock := newFakeClock()
	api := &fakeGymAPI{snapshot: []GymEntry{serverGym("tokyo", "Tokyo", "icons/tokyo.png", nil)}}
	b := NewGymBoard(api, newMemCache[GymEntry](), Options{Clock: clock.Now})
	require.True(t, b.Refresh(context.Background()))
	require.Equal(t, []string{"Tokyo"}, b.Names())

	saved, err := b.Save(context.Background(), GymEntry{
		Meta:    reconcile.Meta{ID: "tokyo"},
		Name:    "Tokyo",
		Icon:    "icons/tokyo.png",
		Details: map[string]any{"note": "new boulders"},
	})
	require.NoError(t, err)
	require.Len(t, api.saved, 1)
	assert.Equal(t, saved.Fingerprint, api.saved[0].Fingerprint)

	// The sync after saving saw the old row; the edit must survive it.
	g, ok := b.Gym("tokyo")
	require.True(t, ok)
	assert.Equal(t, "new boulders", g.Details["note"])
	assert.True(t, g.Pending)

	api.mu.Lock()
	api.snapshot = []GymEntry{serverGym("tokyo", "Tokyo", "icons/tokyo.png", map[string]any{"note": "new boulders"})}
	api.mu.Unlock()
	clock.Advance(time.Second)
	b.Refresh(context.Background())

	g, _ = b.Gym("tokyo")
	assert.False(t, g.Pending)
	assert.Equal(t, "new boulders", g.Details["note"])
}

func TestGymBoard_SaveFailureKeepsLocalVersion(t *testing.T) {
	clock := newFakeClock()
	api := &fakeGymAPI{snapshot: []GymEntry{serverGym("rz", "Rockzona", "", nil)}, reject: true}
	b := NewGymBoard(api, nil, Options{Clock: clock.Now})
	b.Refresh(context.Background())

	_, err := b.Save(context.Background(), GymEntry{Meta: reconcile.Meta{ID: "rz"}, Name: "Rockzona", Icon: "rz.png"})
	require.ErrorIs(t, err, ErrSaveFailed)
	g, _ := b.Gym("rz")
	assert.Equal(t, "rz.png", g.Icon)

	clock.Advance(6 * time.Second)
	b.Refresh(context.Background())
	g, _ = b.Gym("rz")
	assert.Equal(t, "", g.Icon, "unconfirmed edit expires")
}

func TestGymBoard_SaveValidation(t *testing.T) {
	b := NewGymBoard(&fakeGymAPI{}, nil, Options{})

	_, err := b.Save(context.Background(), GymEntry{Name: " "})
	assert.ErrorIs(t, err, ErrUnknownGym)

	_, err = b.Save(context.Background(), GymEntry{Meta: reconcile.Meta{ID: "nope"}, Name: "Nope"})
	assert.ErrorIs(t, err, ErrUnknownGym)

	added, err := b.Save(context.Background(), GymEntry{Name: "New Wall"})
	require.NoError(t, err)
	assert.Equal(t, "New Wall", added.ID)
}

func TestGymBoard_Editing(t *testing.T) {
	b := NewGymBoard(&fakeGymAPI{}, nil, Options{})
	assert.False(t, b.Editing())
	b.SetEditing(true)
	assert.True(t, b.Editing())
}
