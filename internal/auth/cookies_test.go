package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, now time.Time) *CookieStore {
	t.Helper()
	cs := NewCookieStore(filepath.Join(t.TempDir(), "nested", "session.json"), "pterodactyl_session")
	cs.now = func() time.Time { return now }
	return cs
}

func TestCookieStore_SavePicksSessionCookie(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cs := newTestStore(t, now)

	expires := now.Add(2 * time.Hour)
	err := cs.Save([]*network.Cookie{
		{Name: "XSRF-TOKEN", Value: "xsrf"},
		{Name: "pterodactyl_session", Value: "abc", Expires: float64(expires.Unix())},
	})
	require.NoError(t, err)

	info, err := os.Stat(cs.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", stored.Cookie.Value)
	assert.True(t, stored.CapturedAt.Equal(now))
	assert.True(t, stored.ExpiresAt.Equal(expires))

	c, ok := cs.Session()
	require.True(t, ok)
	assert.Equal(t, "abc", c.Value)
}

func TestCookieStore_SaveWithoutSessionCookie(t *testing.T) {
	cs := newTestStore(t, time.Now())

	err := cs.Save([]*network.Cookie{{Name: "XSRF-TOKEN", Value: "xsrf"}})
	assert.ErrorIs(t, err, ErrNoSessionCookie)

	err = cs.Save([]*network.Cookie{{Name: "pterodactyl_session", Value: ""}})
	assert.ErrorIs(t, err, ErrNoSessionCookie)

	_, statErr := os.Stat(cs.path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestCookieStore_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cs := newTestStore(t, now)

	require.NoError(t, cs.Save([]*network.Cookie{
		{Name: "pterodactyl_session", Value: "abc", Expires: float64(now.Add(time.Minute).Unix())},
	}))
	assert.True(t, cs.IsValid())

	cs.now = func() time.Time { return now.Add(time.Hour) }
	assert.False(t, cs.IsValid())
}

func TestCookieStore_BrowserSessionCookieNeverExpires(t *testing.T) {
	now := time.Now()
	cs := newTestStore(t, now)

	require.NoError(t, cs.Save([]*network.Cookie{{Name: "pterodactyl_session", Value: "abc"}}))

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.IsZero())

	cs.now = func() time.Time { return now.AddDate(1, 0, 0) }
	assert.True(t, cs.IsValid())
}

func TestCookieStore_ClearAndLoadMissing(t *testing.T) {
	cs := newTestStore(t, time.Now())

	_, err := cs.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, cs.IsValid())
	assert.NoError(t, cs.Clear(), "clearing a missing session is a no-op")

	require.NoError(t, cs.Save([]*network.Cookie{{Name: "pterodactyl_session", Value: "abc"}}))
	require.NoError(t, cs.Clear())
	assert.False(t, cs.IsValid())
}

func TestCookieStore_LoadCorrupt(t *testing.T) {
	cs := newTestStore(t, time.Now())
	require.NoError(t, os.MkdirAll(filepath.Dir(cs.path), 0700))

	require.NoError(t, os.WriteFile(cs.path, []byte("{not json"), 0600))
	_, err := cs.Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(cs.path, []byte(`{"captured_at":"2026-01-01T00:00:00Z"}`), 0600))
	_, err = cs.Load()
	assert.ErrorIs(t, err, ErrNoSessionCookie)
}

func TestCookieStore_RoundTripKeepsAttributes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cs := newTestStore(t, now)

	// Cookies read back from the browser carry enum fields that may be
	// empty; none of them may break loading.
	expires := float64(now.Add(time.Hour).Unix())
	require.NoError(t, cs.Save([]*network.Cookie{{
		Name:     "pterodactyl_session",
		Value:    "abc",
		Domain:   ".panel.godlike.host",
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   true,
		SameSite: network.CookieSameSiteLax,
	}}))

	data, err := os.ReadFile(cs.path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "priority")

	c, ok := cs.Session()
	require.True(t, ok)
	assert.Equal(t, SavedCookie{
		Name:     "pterodactyl_session",
		Value:    "abc",
		Domain:   ".panel.godlike.host",
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   true,
	}, *c)
}
