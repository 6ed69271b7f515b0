// Package browser provides the chromedp-backed page used by every panel step.
package browser

import "github.com/chromedp/chromedp"

// Options configures the browser process.
type Options struct {
	Headless     bool
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	UserAgent    string
}

// AllocatorOptions returns chromedp allocator options for opts.
// All browser instances should use this to ensure consistent configuration.
func AllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-extensions", true),
	)

	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("disable-gpu", true))
	}

	return allocOpts
}
