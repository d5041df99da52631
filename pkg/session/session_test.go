package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/driver/drivertest"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func snapshotAt(t time.Time) Snapshot {
	return Snapshot{
		Cookies:        []driver.Cookie{{Name: "user-token", Value: "abc", Domain: ".example.ua", Path: "/", Expires: -1}},
		LocalStorage:   map[string]string{"lang": "uk"},
		SessionStorage: map[string]string{"tab": "live"},
		Timestamp:      t.UnixMilli(),
	}
}

func TestFilterCookies(t *testing.T) {
	cookies := []driver.Cookie{
		{Name: "PHPSESSION", Domain: "www.example.ua"},
		{Name: "auth-token", Domain: ".example.ua"},
		{Name: "user-token-v2", Domain: "api.example.ua"},
		{Name: "_ga", Domain: ".example.ua"},
		{Name: "session_id", Domain: ".tracker.com"},
	}

	t.Run("fragments only", func(t *testing.T) {
		got := FilterCookies(cookies, DefaultCookieFragments, "")
		names := cookieNames(got)
		assert.Equal(t, []string{"auth-token", "user-token-v2", "session_id"}, names)
	})

	t.Run("scoped to site", func(t *testing.T) {
		got := FilterCookies(cookies, DefaultCookieFragments, "www.example.ua")
		assert.Equal(t, []string{"auth-token", "user-token-v2"}, cookieNames(got))
	})

	t.Run("case sensitive fragments", func(t *testing.T) {
		got := FilterCookies(cookies, []string{"SESSION"}, "")
		assert.Equal(t, []string{"PHPSESSION"}, cookieNames(got))
	})

	t.Run("localhost has no public suffix", func(t *testing.T) {
		got := FilterCookies([]driver.Cookie{{Name: "session", Domain: "localhost"}}, DefaultCookieFragments, "localhost")
		assert.Len(t, got, 1)
	})
}

func cookieNames(cs []driver.Cookie) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

func TestSnapshotJSONShape(t *testing.T) {
	data, err := snapshotAt(now).Marshal()
	require.NoError(t, err)

	s := string(data)
	for _, key := range []string{`"cookies"`, `"localStorage"`, `"sessionStorage"`, `"timestamp": 1717243200000`} {
		assert.Contains(t, s, key)
	}

	empty, err := Snapshot{Timestamp: 1}.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"cookies": []`)
	assert.Contains(t, string(empty), `"localStorage": {}`)
}

func TestUnmarshalRejectsMissingTimestamp(t *testing.T) {
	_, err := Unmarshal([]byte(`{"cookies":[],"localStorage":{},"sessionStorage":{}}`))
	assert.ErrorContains(t, err, "missing timestamp")

	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestRestoreTTL(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"one hour old", time.Hour, true},
		{"just captured", 0, true},
		{"just under ttl", DefaultTTL - time.Millisecond, true},
		{"exactly ttl", DefaultTTL, false},
		{"25 hours old", 25 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), "user.json"))
			require.NoError(t, store.Save(context.Background(), snapshotAt(now.Add(-tt.age))))

			cache := NewCache(store, WithClock(fixedClock))
			_, ok := cache.Restore(context.Background())
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRestoreTTLProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ageMS := rapid.Int64Range(0, int64(72*time.Hour/time.Millisecond)).Draw(t, "age")
		ttlMS := rapid.Int64Range(1, int64(48*time.Hour/time.Millisecond)).Draw(t, "ttl")
		age := time.Duration(ageMS) * time.Millisecond
		ttl := time.Duration(ttlMS) * time.Millisecond

		store := &memStore{snap: snapshotAt(now.Add(-age))}
		cache := NewCache(store, WithClock(fixedClock), WithTTL(ttl))

		_, ok := cache.Restore(context.Background())
		if ok != (age < ttl) {
			t.Fatalf("age %s ttl %s: restore=%v", age, ttl, ok)
		}
	})
}

func TestRestoreMissesAreNotErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		cache := NewCache(NewFileStore(filepath.Join(dir, "absent.json")))
		_, ok := cache.Restore(context.Background())
		assert.False(t, ok)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.json")
		require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0600))
		cache := NewCache(NewFileStore(path))
		_, ok := cache.Restore(context.Background())
		assert.False(t, ok)
	})

	t.Run("store error", func(t *testing.T) {
		cache := NewCache(&memStore{err: errors.New("disk gone")})
		_, ok := cache.Restore(context.Background())
		assert.False(t, ok)
	})
}

func TestFileStoreOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "user.json")
	store := NewFileStore(path)
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	first := snapshotAt(now.Add(-time.Hour))
	second := snapshotAt(now)
	second.LocalStorage = map[string]string{"only": "second"}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), "qa-account")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Save(ctx, snapshotAt(now.Add(-2*time.Hour))))
	replacement := snapshotAt(now)
	require.NoError(t, store.Save(ctx, replacement))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, replacement, got)

	cache := NewCache(store, WithClock(fixedClock))
	_, ok := cache.Restore(ctx)
	assert.True(t, ok)
}

func TestSQLiteStoreProfilesAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	a, err := OpenSQLiteStore(path, "a")
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Save(ctx, snapshotAt(now)))

	b, err := OpenSQLiteStore(path, "b")
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestCapture(t *testing.T) {
	bc := drivertest.NewContext()
	bc.SetCookies(
		driver.Cookie{Name: "auth-token", Value: "secret", Domain: ".example.ua"},
		driver.Cookie{Name: "_ga", Value: "x", Domain: ".example.ua"},
	)
	page := bc.NewFakePage()
	page.EvalFunc = drivertest.StorageEval(map[string]string{"user": "42"}, map[string]string{"s": "1"})

	cache := NewCache(NewFileStore(filepath.Join(t.TempDir(), "s.json")), WithClock(fixedClock))
	snap, err := cache.Capture(context.Background(), page)

	require.NoError(t, err)
	assert.Equal(t, []string{"auth-token"}, cookieNames(snap.Cookies))
	assert.Equal(t, map[string]string{"user": "42"}, snap.LocalStorage)
	assert.Equal(t, map[string]string{"s": "1"}, snap.SessionStorage)
	assert.Equal(t, now.UnixMilli(), snap.Timestamp)
}

func TestCaptureSurfacesStorageFailure(t *testing.T) {
	page := drivertest.NewContext().NewFakePage()
	page.EvalFunc = func(string, any) (any, error) { return nil, errors.New("execution context destroyed") }

	_, err := NewCache(&memStore{}).Capture(context.Background(), page)
	assert.ErrorContains(t, err, "execution context destroyed")
}

func TestApply(t *testing.T) {
	bc := drivertest.NewContext()
	cache := NewCache(&memStore{}, WithClock(fixedClock))

	snap := snapshotAt(now.Add(-time.Hour))
	snap.LocalStorage["quote"] = `it's "quoted"`
	require.NoError(t, cache.Apply(context.Background(), snap, bc))

	assert.True(t, bc.HasCookie("user-token"))
	require.Len(t, bc.InitScripts, 1)
	script := bc.InitScripts[0]
	assert.True(t, strings.HasPrefix(script, "(() => {"))
	assert.Contains(t, script, `"lang":"uk"`)
	assert.Contains(t, script, `"tab":"live"`)
	assert.Contains(t, script, `it's \"quoted\"`)
}

func TestApplyRefusesExpired(t *testing.T) {
	bc := drivertest.NewContext()
	cache := NewCache(&memStore{}, WithClock(fixedClock))

	err := cache.Apply(context.Background(), snapshotAt(now.Add(-25*time.Hour)), bc)
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, bc.HasCookie("user-token"))
	assert.Empty(t, bc.InitScripts)
}

func TestApplyWithoutStorageSkipsScript(t *testing.T) {
	bc := drivertest.NewContext()
	cache := NewCache(&memStore{}, WithClock(fixedClock))

	snap := snapshotAt(now)
	snap.LocalStorage, snap.SessionStorage = nil, nil
	require.NoError(t, cache.Apply(context.Background(), snap, bc))
	assert.Empty(t, bc.InitScripts)
}

func TestDecodeStorage(t *testing.T) {
	local, sess, err := decodeStorage(map[string]any{
		"localStorage":   map[string]any{"a": "1", "n": 2.0, "nil": nil},
		"sessionStorage": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "n": "2", "nil": ""}, local)
	assert.Empty(t, sess)

	_, _, err = decodeStorage("nope")
	assert.Error(t, err)
}

type memStore struct {
	snap  Snapshot
	err   error
	saved []Snapshot
}

func (m *memStore) Load(context.Context) (Snapshot, error) {
	if m.err != nil {
		return Snapshot{}, m.err
	}
	if m.snap.Timestamp == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return m.snap, nil
}

func (m *memStore) Save(_ context.Context, s Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, s)
	m.snap = s
	return nil
}
