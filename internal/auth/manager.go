package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/browser"
	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/poll"
	"github.com/panelrenew/panelrenew/internal/types"
)

// ErrLoginFailed is returned when every strategy has been exhausted.
var ErrLoginFailed = errors.New("login failed")

// Manager handles panel authentication
type Manager struct {
	cfg        *config.Config
	store      *CookieStore
	logger     *zap.Logger
	strategies []Strategy
}

// NewManager creates a new auth manager. store may be nil, in which case
// sessions are neither restored nor persisted.
func NewManager(cfg *config.Config, store *CookieStore, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger.Named("auth"),
	}
	// The order is the contract: cheapest and least intrusive first.
	m.strategies = []Strategy{
		&cookieStrategy{m: m},
		&authorizationStrategy{m: m},
		&credentialsStrategy{m: m},
	}
	return m
}

// IsAuthenticated checks if we have a stored session that has not expired
func (m *Manager) IsAuthenticated() bool {
	return m.store != nil && m.store.IsValid()
}

// Login walks the strategy chain in order and stops at the first one that
// leaves page on the server URL. The returned result lists every attempt,
// including on failure.
func (m *Manager) Login(ctx context.Context, page browser.Page) (*types.LoginResult, error) {
	result := &types.LoginResult{}
	var failures []string

	for _, s := range m.strategies {
		logger := m.logger.With(zap.String("strategy", string(s.Name())))
		start := time.Now()

		err := s.Attempt(ctx, page)
		if err == nil {
			var ok bool
			ok, err = m.verify(ctx, page)
			if err == nil && !ok {
				err = fmt.Errorf("not on %s after login", m.cfg.Panel.ServerPath())
			}
		}

		attempt := types.LoginAttempt{Strategy: s.Name(), Duration: time.Since(start)}

		switch {
		case err == nil:
			attempt.Status = types.AttemptSucceeded
			result.Attempts = append(result.Attempts, attempt)
			result.Strategy = s.Name()
			logger.Info("Logged in", zap.Duration("duration", attempt.Duration))
			m.persist(ctx, page)
			return result, nil

		case errors.Is(err, ErrNotApplicable):
			attempt.Status = types.AttemptSkipped
			result.Attempts = append(result.Attempts, attempt)
			logger.Debug("Strategy skipped")

		default:
			attempt.Status = types.AttemptFailed
			attempt.Error = err.Error()
			result.Attempts = append(result.Attempts, attempt)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, fmt.Errorf("%w: %s: %w", ErrLoginFailed, s.Name(), ctxErr)
			}
			logger.Warn("Strategy failed", zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(failures) == 0 {
		return result, fmt.Errorf("%w: no cookie or credentials configured", ErrLoginFailed)
	}
	return result, fmt.Errorf("%w: %s", ErrLoginFailed, strings.Join(failures, "; "))
}

// Logout clears the stored session
func (m *Manager) Logout() error {
	if m.store == nil {
		return nil
	}
	return m.store.Clear()
}

// verify reports whether page shows the server page without an
// authorization prompt, navigating there once if needed.
func (m *Manager) verify(ctx context.Context, page browser.Page) (bool, error) {
	if ok, err := m.authenticated(ctx, page); err != nil || ok {
		return ok, err
	}

	if err := page.Navigate(ctx, m.cfg.Panel.ServerURL()); err != nil {
		return false, err
	}

	login := m.cfg.Login
	ok, err := poll.Until(ctx, login.NavigationPolls, login.NavigationInterval, func(ctx context.Context, _ int) (bool, error) {
		return m.authenticated(ctx, page)
	})
	if err != nil && ctx.Err() != nil {
		return false, err
	}
	return ok, nil
}

func (m *Manager) authenticated(ctx context.Context, page browser.Page) (bool, error) {
	loc, err := page.Location(ctx)
	if err != nil {
		return false, err
	}
	if !m.onServerPage(loc) {
		return false, nil
	}
	n, err := page.Count(ctx, m.authorizationPrompt())
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// onServerPage reports whether loc is the server URL or a page below it.
func (m *Manager) onServerPage(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	base, err := url.Parse(m.cfg.Panel.BaseURL)
	if err == nil && base.Host != "" && !strings.EqualFold(u.Host, base.Host) {
		return false
	}

	path := strings.TrimRight(u.Path, "/")
	serverPath := m.cfg.Panel.ServerPath()
	return path == serverPath || strings.HasPrefix(path, serverPath+"/")
}

func (m *Manager) openServer(ctx context.Context, page browser.Page) error {
	if err := page.Navigate(ctx, m.cfg.Panel.ServerURL()); err != nil {
		return err
	}
	return poll.Sleep(ctx, m.cfg.Login.SettleDelay)
}

func (m *Manager) authorizationPrompt() string {
	return browser.TextXPath("span", m.cfg.Selectors.AuthorizationText)
}

// persist saves the live session cookie for the next run. Failures only
// cost the next run a full login, so they are logged and ignored.
func (m *Manager) persist(ctx context.Context, page browser.Page) {
	if m.store == nil || !m.cfg.Login.PersistSession {
		return
	}
	cookies, err := page.Cookies(ctx)
	if err != nil {
		m.logger.Warn("Could not read cookies for persistence", zap.Error(err))
		return
	}
	if err := m.store.Save(cookies); err != nil {
		m.logger.Warn("Could not persist session cookie", zap.Error(err))
		return
	}
	m.logger.Debug("Session cookie persisted")
}
