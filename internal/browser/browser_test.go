package browser_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelrenew/panelrenew/internal/browser"
	"github.com/panelrenew/panelrenew/internal/browser/browsertest"
)

func TestTextXPath(t *testing.T) {
	assert.Equal(t, `//span[contains(normalize-space(.), "Authorization")]`, browser.TextXPath("span", "Authorization"))
	assert.Equal(t, `//a[contains(normalize-space(.), 'say "hi"')]`, browser.TextXPath("a", `say "hi"`))
	assert.Equal(t,
		`//b[contains(normalize-space(.), concat("it's ", '"', "x", '"', ""))]`,
		browser.TextXPath("b", `it's "x"`))
}

func TestAncestorButton(t *testing.T) {
	assert.Equal(t,
		`//span[contains(normalize-space(.), "Authorization")]/ancestor-or-self::button[1]`,
		browser.AncestorButton(browser.TextXPath("span", "Authorization")))
}

func TestRecorder_Capture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	rec := browser.NewRecorder(dir)
	page := browsertest.New()

	first, err := rec.Capture(context.Background(), page, "login")
	require.NoError(t, err)
	second, err := rec.Capture(context.Background(), page, "claim/after ad")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "01-login.png"), first)
	assert.Equal(t, filepath.Join(dir, "02-claim_after_ad.png"), second)
	assert.Equal(t, []string{first, second}, rec.Paths())
	assert.Equal(t, dir, rec.Dir())

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, browsertest.PNG, data)
}

func TestRecorder_CaptureError(t *testing.T) {
	rec := browser.NewRecorder(t.TempDir())
	page := browsertest.New()
	page.ScreenshotErr = errors.New("target closed")

	_, err := rec.Capture(context.Background(), page, "error")
	assert.Error(t, err)
	assert.Empty(t, rec.Paths())
}

func TestAllocatorOptions(t *testing.T) {
	base := len(browser.AllocatorOptions(browser.Options{}))
	full := browser.AllocatorOptions(browser.Options{
		Headless:     true,
		ExecPath:     "/usr/bin/chromium",
		WindowWidth:  1280,
		WindowHeight: 720,
		UserAgent:    "panelrenew-test",
	})
	assert.Equal(t, base+4, len(full))
}
