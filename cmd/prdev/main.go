// Command prdev is a dev CLI for panelrenew maintenance and debugging tasks.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	pkgbrowser "github.com/pkg/browser"

	"github.com/panelrenew/panelrenew/internal/auth"
	"github.com/panelrenew/panelrenew/internal/browser"
	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/panel"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "probe":
		target := ""
		if len(os.Args) > 2 {
			target = os.Args[2]
		}
		runProbe(target)
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: prdev open <config|cache>")
			os.Exit(1)
		}
		runOpen(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: prdev <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  probe [url]   Open url (default: the server page) in a visible browser")
	fmt.Println("                and report how many nodes each panel selector matches")
	fmt.Println("  open config   Open config file in default editor")
	fmt.Println("  open cache    Open cache directory in file explorer")
}

// selectors lists every lookup the login and claim steps perform.
func selectors(cfg *config.Config) [][2]string {
	sel := cfg.Selectors
	prompt := browser.TextXPath("span", sel.AuthorizationText)
	return [][2]string{
		{"authorization prompt", prompt},
		{"authorization button", browser.AncestorButton(prompt)},
		{"login tab", browser.TextXPath("a", sel.LoginTabText)},
		{"username input", sel.UsernameInput},
		{"password input", sel.PasswordInput},
		{"submit button", sel.SubmitButton},
		{"add time button", panel.AddTimeButton(sel)},
		{"ad gate button", panel.AdGateButton(sel)},
	}
}

func runProbe(target string) {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if target == "" {
		if cfg.Panel.ServerID == "" {
			log.Fatal("No url given and no server id configured")
		}
		target = cfg.Panel.ServerURL()
	}

	ctx := context.Background()
	tab, err := browser.Launch(ctx, browser.Options{
		Headless:     false, // visible so the page can be inspected by hand
		ExecPath:     cfg.Browser.ExecPath,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		UserAgent:    cfg.Browser.UserAgent,
	})
	if err != nil {
		log.Fatalf("Failed to launch browser: %v", err)
	}
	defer tab.Close()

	if cfg.Credentials.Cookie != "" {
		// Reuse the session so authenticated pages can be probed.
		err := tab.SetCookies(ctx, auth.SessionCookieParam(cfg.Panel, cfg.Credentials.Cookie))
		if err != nil {
			log.Printf("Failed to inject session cookie: %v", err)
		}
	}

	if err := tab.Navigate(ctx, target); err != nil {
		log.Fatalf("Failed to navigate: %v", err)
	}

	in := bufio.NewReader(os.Stdin)
	for {
		probe(ctx, tab, cfg)
		fmt.Print("Press Enter to probe again, q to quit: ")
		line, err := in.ReadString('\n')
		if err != nil || strings.TrimSpace(line) == "q" {
			break
		}
	}

	log.Println("Done.")
}

func probe(ctx context.Context, page browser.Page, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	loc, err := page.Location(ctx)
	if err != nil {
		log.Printf("Failed to read location: %v", err)
	}
	fmt.Printf("\n%s\n", loc)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, s := range selectors(cfg) {
		n, err := page.Count(ctx, s[1])
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t%s\n", s[0], err, s[1])
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", s[0], n, s[1])
	}
	w.Flush()
}

func runOpen(target string) {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "cache":
		path, err = config.CacheDir()
	default:
		fmt.Printf("Unknown target: %s\n", target)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Failed to get path: %v", err)
	}

	if err := pkgbrowser.OpenFile(path); err != nil {
		log.Fatalf("Failed to open: %v", err)
	}
}
