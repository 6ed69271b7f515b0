package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/archive"
	"github.com/panelrenew/panelrenew/internal/auth"
	"github.com/panelrenew/panelrenew/internal/browser"
	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/panel"
	"github.com/panelrenew/panelrenew/internal/report"
	"github.com/panelrenew/panelrenew/internal/types"
)

// ErrWatchdog wraps the error of a run that hit its wall-clock limit.
var ErrWatchdog = errors.New("run exceeded its time limit")

const (
	// screenshotTimeout bounds the diagnostic capture after a failure, which
	// may run after the run context has expired.
	screenshotTimeout = 15 * time.Second
	// finishTimeout bounds archiving, notifications and bookkeeping.
	finishTimeout = 2 * time.Minute
)

// Session is a browser tab owned by a single run.
type Session interface {
	browser.Page
	Close()
}

// Launcher starts a browser for one run.
type Launcher func(ctx context.Context, opts browser.Options) (Session, error)

// ChromeLauncher launches a local Chrome through chromedp.
func ChromeLauncher(ctx context.Context, opts browser.Options) (Session, error) {
	tab, err := browser.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

// Publisher uploads a zipped run to a release host.
type Publisher interface {
	Publish(ctx context.Context, zipPath string, run *types.RunResult) (*archive.Publication, error)
}

// Notifier delivers run reports.
type Notifier interface {
	Notify(ctx context.Context, r *report.Report) error
}

// RunStore records finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *types.RunResult) error
}

// Deps are the optional collaborators of an App. Nil fields disable the
// corresponding step.
type Deps struct {
	Launch    Launcher
	Cookies   *auth.CookieStore
	Publisher Publisher
	Notifier  Notifier
	Store     RunStore
}

// App holds the application state.
type App struct {
	mu     sync.RWMutex
	logger *zap.Logger
	deps   Deps
	now    func() time.Time

	// Mutable fields - use getSnapshot() for concurrent access.
	config  *config.Config
	auth    *auth.Manager
	claimer *panel.Claimer
	reports *report.Builder
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config  *config.Config
	auth    *auth.Manager
	claimer *panel.Claimer
	reports *report.Builder
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:  a.config,
		auth:    a.auth,
		claimer: a.claimer,
		reports: a.reports,
	}
}

// New creates a new App instance.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) (*App, error) {
	if deps.Launch == nil {
		deps.Launch = ChromeLauncher
	}
	a := &App{
		logger: logger.Named("app"),
		deps:   deps,
		now:    time.Now,
	}
	if err := a.ReloadConfig(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// ReloadConfig swaps in cfg for subsequent runs. A run in progress keeps
// the configuration it started with.
func (a *App) ReloadConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	reports, err := report.New(cfg.Panel.ServerURL())
	if err != nil {
		return err
	}

	authManager := auth.NewManager(cfg, a.deps.Cookies, a.logger)
	claimer := panel.NewClaimer(cfg, a.logger)

	a.mu.Lock()
	a.config = cfg
	a.auth = authManager
	a.claimer = claimer
	a.reports = reports
	a.mu.Unlock()

	a.logger.Debug("Configuration loaded", zap.String("server", cfg.Panel.ServerURL()))
	return nil
}

// IsAuthenticated reports whether a persisted panel session is available.
func (a *App) IsAuthenticated() bool {
	return a.getSnapshot().auth.IsAuthenticated()
}

// Logout clears the persisted panel session.
func (a *App) Logout() error {
	if err := a.getSnapshot().auth.Logout(); err != nil {
		a.logger.Error("Logout failed", zap.Error(err))
		return err
	}
	a.logger.Info("Logout successful - session cleared")
	return nil
}

// Login runs only the login chain, persisting the session on success.
func (a *App) Login(ctx context.Context) (*types.LoginResult, error) {
	s := a.getSnapshot()

	ctx, cancel := context.WithTimeout(ctx, s.config.Run.Timeout)
	defer cancel()

	page, err := a.deps.Launch(context.WithoutCancel(ctx), browserOptions(s.config))
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer page.Close()

	res, err := s.auth.Login(ctx, page)
	if err != nil {
		rec := browser.NewRecorder(a.runDir(s.config, a.now()))
		return res, a.fail(ctx, rec, page, err)
	}
	return res, nil
}

// Run performs one complete claim run: login, claim, evidence and
// reporting. The returned error is non-nil only for failed runs; "not
// available" is a successful run with that outcome.
func (a *App) Run(ctx context.Context) (*types.RunResult, error) {
	s := a.getSnapshot()
	run := &types.RunResult{
		StartedAt: a.now(),
		Outcome:   types.OutcomeFailed,
	}
	logger := a.logger.With(zap.Time("started", run.StartedAt))
	logger.Info("Run started", zap.String("server", s.config.Panel.ServerURL()))

	runCtx, cancel := context.WithTimeout(ctx, s.config.Run.Timeout)
	defer cancel()

	rec := browser.NewRecorder(a.runDir(s.config, run.StartedAt))
	err := a.execute(runCtx, s, rec, run)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w (%s): %w", ErrWatchdog, s.config.Run.Timeout, err)
	}

	run.FinishedAt = a.now()
	run.Screenshots = rec.Paths()
	logger = logger.With(zap.String("screenshots", rec.Dir()))
	if err != nil {
		run.Outcome = types.OutcomeFailed
		run.Error = err.Error()
		logger.Error("Run failed", zap.Error(err), zap.Duration("duration", run.Duration()))
	} else {
		logger.Info("Run finished", zap.String("outcome", string(run.Outcome)), zap.Duration("duration", run.Duration()))
	}

	a.finish(ctx, s, run)
	return run, err
}

func (a *App) execute(ctx context.Context, s snapshot, rec *browser.Recorder, run *types.RunResult) error {
	// The browser must outlive ctx so a failure can still be photographed.
	page, err := a.deps.Launch(context.WithoutCancel(ctx), browserOptions(s.config))
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer page.Close()

	login, err := s.auth.Login(ctx, page)
	run.Login = login
	if err != nil {
		return a.fail(ctx, rec, page, err)
	}
	a.capture(ctx, rec, page, "login")

	claim, err := s.claimer.Claim(ctx, page)
	run.Claim = &claim
	if err != nil {
		return a.fail(ctx, rec, page, fmt.Errorf("claim failed: %w", err))
	}
	run.Outcome = claim.Outcome
	a.capture(ctx, rec, page, "claim")
	return nil
}

// fail writes the error screenshot and returns err unchanged.
func (a *App) fail(ctx context.Context, rec *browser.Recorder, page browser.Page, err error) error {
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()
	a.capture(shotCtx, rec, page, "error")
	return err
}

func (a *App) capture(ctx context.Context, rec *browser.Recorder, page browser.Page, name string) {
	path, err := rec.Capture(ctx, page, name)
	if err != nil {
		a.logger.Warn("Screenshot failed", zap.String("name", name), zap.Error(err))
		return
	}
	a.logger.Info("Screenshot saved", zap.String("path", path))
}

// finish archives, reports and records run. Nothing here changes the
// outcome; failures are logged.
func (a *App) finish(ctx context.Context, s snapshot, run *types.RunResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if len(run.Screenshots) > 0 {
		zipPath := filepath.Join(s.config.Run.ArchiveDir, "panelrenew-"+stamp(run.StartedAt)+".zip")
		if err := archive.Zip(zipPath, run.Screenshots); err != nil {
			a.logger.Warn("Could not archive screenshots", zap.Error(err))
		} else {
			run.ArchivePath = zipPath
			a.publish(ctx, run)
		}
	}

	if a.deps.Notifier != nil {
		r, err := s.reports.Build(run)
		if err != nil {
			a.logger.Warn("Could not build report", zap.Error(err))
		} else if err := a.deps.Notifier.Notify(ctx, r); err != nil {
			a.logger.Warn("Notification incomplete", zap.Error(err))
		}
	}

	if a.deps.Store != nil {
		if err := a.deps.Store.SaveRun(ctx, run); err != nil {
			a.logger.Warn("Could not record run", zap.Error(err))
		}
	}
}

func (a *App) publish(ctx context.Context, run *types.RunResult) {
	if a.deps.Publisher == nil {
		return
	}
	pub, err := a.deps.Publisher.Publish(ctx, run.ArchivePath, run)
	if err != nil {
		a.logger.Warn("Could not publish screenshots", zap.Error(err))
		return
	}
	run.AssetURL = pub.AssetURL
	a.logger.Info("Screenshots published", zap.String("release", pub.ReleaseURL), zap.String("asset", pub.AssetURL))
}

func (a *App) runDir(cfg *config.Config, started time.Time) string {
	return filepath.Join(cfg.Run.ScreenshotDir, stamp(started))
}

func stamp(t time.Time) string {
	return t.UTC().Format("20060102-150405")
}

func browserOptions(cfg *config.Config) browser.Options {
	return browser.Options{
		Headless:     cfg.Browser.Headless,
		ExecPath:     cfg.Browser.ExecPath,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		UserAgent:    cfg.Browser.UserAgent,
	}
}
