package panel

import (
	"github.com/panelrenew/panelrenew/internal/browser"
	"github.com/panelrenew/panelrenew/internal/config"
)

// Panel controls are located by their visible text because the panel theme
// ships without stable ids. Update the texts in the selectors config when
// the UI changes.

// AddTimeButton matches the button that extends the server lease.
func AddTimeButton(sel config.SelectorsConfig) string {
	return browser.TextXPath("button", sel.AddTimeText)
}

// AdGateButton matches the advertisement confirmation shown after Add time.
func AdGateButton(sel config.SelectorsConfig) string {
	return browser.TextXPath("button", sel.AdGateText)
}
