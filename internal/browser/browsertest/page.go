// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// PNG is the payload returned by Screenshot unless overridden.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// ErrNoNode is returned when clicking or filling a selector with no matches.
var ErrNoNode = errors.New("no node matches selector")

// Page is a scriptable fake. Elements maps selectors to their match count;
// hooks mutate the page to emulate navigation and UI reactions.
type Page struct {
	mu sync.Mutex

	URL      string
	Elements map[string]int
	Filled   map[string]string
	Jar      []*network.CookieParam

	Navigations []string
	Clicks      []string
	CountCalls  map[string]int

	// OnNavigate replaces the default "URL = target" behaviour when set.
	OnNavigate func(p *Page, url string)
	// OnClick hooks run after a successful click on the selector.
	OnClick map[string]func(p *Page)
	// OnCount hooks run before Count answers for the selector.
	OnCount map[string]func(p *Page, calls int)

	NavigateErr   error
	ScreenshotErr error
	Shot          []byte
}

// New returns an empty page at about:blank.
func New() *Page {
	return &Page{
		URL:        "about:blank",
		Elements:   map[string]int{},
		Filled:     map[string]string{},
		CountCalls: map[string]int{},
		OnClick:    map[string]func(p *Page){},
		OnCount:    map[string]func(p *Page, calls int){},
	}
}

// Show sets the match count for sel. Hooks may call it while the page lock
// is held, so it does not lock.
func (p *Page) Show(sel string, n int) {
	p.Elements[sel] = n
}

// Hide removes sel from the page.
func (p *Page) Hide(sel string) {
	delete(p.Elements, sel)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.Navigations = append(p.Navigations, url)
	if p.OnNavigate != nil {
		p.OnNavigate(p, url)
		return nil
	}
	p.URL = url
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URL, nil
}

func (p *Page) Count(ctx context.Context, sel string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CountCalls[sel]++
	if hook, ok := p.OnCount[sel]; ok {
		hook(p, p.CountCalls[sel])
	}
	return p.Elements[sel], nil
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Elements[sel] == 0 {
		return fmt.Errorf("click %s: %w", sel, ErrNoNode)
	}
	p.Clicks = append(p.Clicks, sel)
	if hook, ok := p.OnClick[sel]; ok {
		hook(p)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Elements[sel] == 0 {
		return fmt.Errorf("fill %s: %w", sel, ErrNoNode)
	}
	p.Filled[sel] = value
	return nil
}

func (p *Page) SetCookies(ctx context.Context, cookies ...*network.CookieParam) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Jar = append(p.Jar, cookies...)
	return nil
}

func (p *Page) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cookies := make([]*network.Cookie, 0, len(p.Jar))
	for _, c := range p.Jar {
		cookie := &network.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if c.Expires != nil {
			cookie.Expires = float64(c.Expires.Time().Unix())
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	if p.Shot != nil {
		return p.Shot, nil
	}
	return PNG, nil
}

// ClickCount returns how many times sel was clicked.
func (p *Page) ClickCount(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Clicks {
		if c == sel {
			n++
		}
	}
	return n
}
