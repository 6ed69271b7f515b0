package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/panelrenew/panelrenew/internal/config"
)

// ErrNoSessionCookie is returned when the browser jar lacks the panel cookie.
var ErrNoSessionCookie = errors.New("session cookie not present")

// CookieStore persists the panel session cookie between runs
type CookieStore struct {
	path string
	name string
	now  func() time.Time
}

// SavedCookie is the subset of a browser cookie needed to restore a session.
// network.Cookie itself does not survive a JSON round trip when its enum
// fields are empty.
type SavedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// StoredSession represents the persisted cookie data
type StoredSession struct {
	Cookie     *SavedCookie `json:"cookie"`
	CapturedAt time.Time    `json:"captured_at"`
	// ExpiresAt is zero for browser-session cookies.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCookieStore creates a cookie store at path for the cookie called name
func NewCookieStore(path, name string) *CookieStore {
	return &CookieStore{path: path, name: name, now: time.Now}
}

// SessionCookieParam describes the panel session cookie carrying value, in
// the form the browser expects for injection.
func SessionCookieParam(panel config.PanelConfig, value string) *network.CookieParam {
	return &network.CookieParam{
		Name:     panel.CookieName,
		Value:    value,
		Domain:   panel.CookieDomain,
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: network.CookieSameSiteLax,
	}
}

// DefaultCookieStorePath returns the default path for cookie storage
func DefaultCookieStorePath() (string, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "session.json"), nil
}

// Save picks the session cookie out of cookies and persists it
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	var session *network.Cookie
	for _, c := range cookies {
		if c.Name == cs.name && c.Value != "" {
			session = c
			break
		}
	}
	if session == nil {
		return fmt.Errorf("%w: %s", ErrNoSessionCookie, cs.name)
	}

	stored := StoredSession{
		Cookie: &SavedCookie{
			Name:     session.Name,
			Value:    session.Value,
			Domain:   session.Domain,
			Path:     session.Path,
			Expires:  session.Expires,
			HTTPOnly: session.HTTPOnly,
			Secure:   session.Secure,
		},
		CapturedAt: cs.now(),
	}
	if session.Expires > 0 {
		stored.ExpiresAt = time.Unix(int64(session.Expires), 0)
	}

	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cs.path, data, 0600)
}

// Load retrieves the session from disk
func (cs *CookieStore) Load() (*StoredSession, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	if stored.Cookie == nil || stored.Cookie.Value == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSessionCookie, cs.path)
	}

	return &stored, nil
}

// Session returns the stored cookie if it has not expired
func (cs *CookieStore) Session() (*SavedCookie, bool) {
	stored, err := cs.Load()
	if err != nil {
		return nil, false
	}
	if !stored.ExpiresAt.IsZero() && cs.now().After(stored.ExpiresAt) {
		return nil, false
	}
	return stored.Cookie, true
}

// IsValid checks if a usable session is stored
func (cs *CookieStore) IsValid() bool {
	_, ok := cs.Session()
	return ok
}

// Clear removes the stored session
func (cs *CookieStore) Clear() error {
	if err := os.Remove(cs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
