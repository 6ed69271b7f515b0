package cli

import (
	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/app"
	"github.com/panelrenew/panelrenew/internal/archive"
	"github.com/panelrenew/panelrenew/internal/auth"
	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/notifier"
	"github.com/panelrenew/panelrenew/internal/store"
)

// buildApp assembles an App with every collaborator cfg enables. Optional
// collaborators that fail to initialise are logged and left out. The
// returned func releases resources.
func buildApp(cfg *config.Config, logger *zap.Logger) (*app.App, func(), error) {
	deps := app.Deps{}
	cleanup := func() {}

	if cfg.Login.PersistSession {
		path, err := auth.DefaultCookieStorePath()
		if err != nil {
			logger.Warn("Session persistence disabled", zap.Error(err))
		} else {
			deps.Cookies = auth.NewCookieStore(path, cfg.Panel.CookieName)
		}
	}

	if cfg.Archive.Enabled {
		pub, err := archive.NewPublisher(cfg.Archive, logger)
		if err != nil {
			return nil, cleanup, err
		}
		deps.Publisher = pub
	}

	n, err := notifier.NewFromConfig(cfg.Notify, logger)
	if err != nil {
		logger.Warn("Notifications disabled", zap.Error(err))
	} else if n.Enabled() {
		deps.Notifier = n
	}

	if s, err := openStore(cfg); err != nil {
		logger.Warn("Run history disabled", zap.Error(err))
	} else {
		deps.Store = s
		cleanup = func() { s.Close() }
	}

	a, err := app.New(cfg, logger, deps)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return a, cleanup, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	return store.New(path)
}
