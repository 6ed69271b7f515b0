package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Page is the slice of browser behaviour the panel steps need. Selectors may
// be CSS selectors or XPath expressions.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	// Count returns the number of nodes matching sel without waiting.
	Count(ctx context.Context, sel string) (int, error)
	Click(ctx context.Context, sel string) error
	Fill(ctx context.Context, sel, value string) error
	SetCookies(ctx context.Context, cookies ...*network.CookieParam) error
	Cookies(ctx context.Context) ([]*network.Cookie, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// TextXPath matches tag elements whose normalized text contains text.
func TextXPath(tag, text string) string {
	return fmt.Sprintf(`//%s[contains(normalize-space(.), %s)]`, tag, xpathLiteral(text))
}

// AncestorButton selects the closest button enclosing the nodes matched by
// the XPath expression xpath.
func AncestorButton(xpath string) string {
	return xpath + "/ancestor-or-self::button[1]"
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}

// Tab is a single chromedp browser tab.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Launch starts a browser and opens a tab. The browser lives until Close is
// called or parent is cancelled.
func Launch(parent context.Context, opts Options) (*Tab, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, AllocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser. Doing it here with the long-lived
	// context keeps per-operation cancellation from tearing the browser down.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Tab{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}, nil
}

// Close shuts the browser down.
func (t *Tab) Close() {
	t.cancel()
}

// run executes actions on the tab, bounded by ctx.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (t *Tab) Location(ctx context.Context) (string, error) {
	var url string
	err := t.run(ctx, chromedp.Location(&url))
	return url, err
}

func (t *Tab) Count(ctx context.Context, sel string) (int, error) {
	var nodes []*cdp.Node
	if err := t.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (t *Tab) Click(ctx context.Context, sel string) error {
	if err := t.run(ctx, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", sel, err)
	}
	return nil
}

func (t *Tab) Fill(ctx context.Context, sel, value string) error {
	err := t.run(ctx,
		chromedp.WaitVisible(sel, chromedp.BySearch),
		chromedp.Clear(sel, chromedp.BySearch),
		chromedp.SendKeys(sel, value, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", sel, err)
	}
	return nil
}

func (t *Tab) SetCookies(ctx context.Context, cookies ...*network.CookieParam) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(cookies).Do(ctx)
	}))
}

func (t *Tab) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	return cookies, err
}

// screenshotQuality must stay at 100: chromedp encodes anything lower as
// JPEG, and screenshots are stored and mailed as PNG.
const screenshotQuality = 100

func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}
