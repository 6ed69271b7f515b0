package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/browser"
	"github.com/panelrenew/panelrenew/internal/poll"
	"github.com/panelrenew/panelrenew/internal/types"
)

var (
	// ErrNotApplicable means the strategy has nothing to work with
	// (no cookie, no credentials, no prompt) and was skipped.
	ErrNotApplicable = errors.New("strategy not applicable")

	ErrAuthorizationRequired = errors.New("authorization prompt still showing")
	ErrAuthorizationTimeout  = errors.New("authorization did not complete")
	ErrCredentialsRejected   = errors.New("login form did not navigate away")
)

// Strategy is one way of establishing a panel session.
type Strategy interface {
	Name() types.StrategyName
	// Attempt drives page towards a logged-in state. It returns
	// ErrNotApplicable when it has nothing to try.
	Attempt(ctx context.Context, page browser.Page) error
}

// cookieStrategy restores a session from PTERODACTYL_COOKIE or the cookie
// persisted by the previous successful login.
type cookieStrategy struct {
	m *Manager
}

func (s *cookieStrategy) Name() types.StrategyName { return types.StrategyCookie }

func (s *cookieStrategy) Attempt(ctx context.Context, page browser.Page) error {
	param := s.cookieParam()
	if param == nil {
		return ErrNotApplicable
	}

	if err := page.SetCookies(ctx, param); err != nil {
		return fmt.Errorf("failed to inject session cookie: %w", err)
	}
	if err := s.m.openServer(ctx, page); err != nil {
		return err
	}

	n, err := page.Count(ctx, s.m.authorizationPrompt())
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrAuthorizationRequired
	}
	return nil
}

func (s *cookieStrategy) cookieParam() *network.CookieParam {
	if v := s.m.cfg.Credentials.Cookie; v != "" {
		return SessionCookieParam(s.m.cfg.Panel, v)
	}

	if s.m.store == nil {
		return nil
	}
	stored, ok := s.m.store.Session()
	if !ok {
		return nil
	}
	s.m.logger.Debug("Using persisted session cookie")
	param := SessionCookieParam(s.m.cfg.Panel, stored.Value)
	if stored.Domain != "" {
		param.Domain = stored.Domain
	}
	if stored.Expires > 0 {
		exp := cdp.TimeSinceEpoch(time.Unix(int64(stored.Expires), 0))
		param.Expires = &exp
	}
	return param
}

// authorizationStrategy completes the delegated-login confirmation page by
// clicking its button and waiting for the prompt to go away.
type authorizationStrategy struct {
	m *Manager
}

func (s *authorizationStrategy) Name() types.StrategyName { return types.StrategyAuthorization }

func (s *authorizationStrategy) Attempt(ctx context.Context, page browser.Page) error {
	loc, err := page.Location(ctx)
	if err != nil || !s.m.onServerPage(loc) {
		if err := s.m.openServer(ctx, page); err != nil {
			return err
		}
	}

	prompt := s.m.authorizationPrompt()
	n, err := page.Count(ctx, prompt)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotApplicable
	}

	s.m.logger.Info("Authorization prompt detected, confirming")
	if err := page.Click(ctx, browser.AncestorButton(prompt)); err != nil {
		return err
	}

	login := s.m.cfg.Login
	done, err := poll.Until(ctx, login.AuthorizationPolls, login.AuthorizationInterval, func(ctx context.Context, attempt int) (bool, error) {
		n, err := page.Count(ctx, prompt)
		if err != nil {
			return false, err
		}
		s.m.logger.Debug("Waiting for authorization", zap.Int("attempt", attempt), zap.Int("prompts", n))
		return n == 0, nil
	})
	if err != nil && ctx.Err() != nil {
		return err
	}
	if !done {
		return fmt.Errorf("%w after %d checks", ErrAuthorizationTimeout, login.AuthorizationPolls)
	}
	return nil
}

// credentialsStrategy fills in the email/password form.
type credentialsStrategy struct {
	m *Manager
}

func (s *credentialsStrategy) Name() types.StrategyName { return types.StrategyCredentials }

func (s *credentialsStrategy) Attempt(ctx context.Context, page browser.Page) error {
	creds := s.m.cfg.Credentials
	if creds.Email == "" || creds.Password == "" {
		return ErrNotApplicable
	}

	panel := s.m.cfg.Panel
	sel := s.m.cfg.Selectors

	if err := page.Navigate(ctx, panel.LoginURL()); err != nil {
		return err
	}
	if err := poll.Sleep(ctx, s.m.cfg.Login.SettleDelay); err != nil {
		return err
	}

	// Some panel themes default to the OAuth tab.
	tab := browser.TextXPath("a", sel.LoginTabText)
	if n, err := page.Count(ctx, tab); err == nil && n > 0 {
		if err := page.Click(ctx, tab); err != nil {
			return err
		}
	}

	if err := page.Fill(ctx, sel.UsernameInput, creds.Email); err != nil {
		return err
	}
	if err := page.Fill(ctx, sel.PasswordInput, creds.Password); err != nil {
		return err
	}
	if err := page.Click(ctx, sel.SubmitButton); err != nil {
		return err
	}

	login := s.m.cfg.Login
	left, err := poll.Until(ctx, login.NavigationPolls, login.NavigationInterval, func(ctx context.Context, _ int) (bool, error) {
		loc, err := page.Location(ctx)
		if err != nil {
			return false, err
		}
		return !samePath(loc, panel.LoginURL()), nil
	})
	if err != nil && ctx.Err() != nil {
		return err
	}
	if !left {
		return ErrCredentialsRejected
	}
	return nil
}

func samePath(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.TrimRight(ua.Path, "/") == strings.TrimRight(ub.Path, "/")
}
