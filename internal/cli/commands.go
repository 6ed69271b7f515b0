package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/observability"
	"github.com/panelrenew/panelrenew/internal/scheduler"
	"github.com/panelrenew/panelrenew/internal/store"
	"github.com/panelrenew/panelrenew/internal/types"
)

// openFile opens a path with the desktop's default handler.
var openFile = browser.OpenFile

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in and claim extra server time once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			a, cleanup, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := a.Run(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", run.Outcome)
			if run.AssetURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "screenshots: %s\n", run.AssetURL)
			}
			return err
		},
	}
}

func newDaemonCmd() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Claim on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			ctx := cmd.Context()

			a, cleanup, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			sched, err := scheduler.New(ctx, cfg.Schedule.Timezone, logger,
				// Leave room for the post-run reporting after the watchdog.
				scheduler.WithJobTimeout(cfg.Run.Timeout+5*time.Minute))
			if err != nil {
				return err
			}

			job := func(ctx context.Context) error {
				_, err := a.Run(ctx)
				return err
			}
			if err := reschedule(sched, cfg.Schedule.Cron, job); err != nil {
				return err
			}

			if runNow {
				if err := sched.RunNow("claim", job); err != nil {
					logger.Warn("Initial run failed", zap.Error(err))
				}
			}
			sched.Start()
			for _, j := range sched.ListJobs() {
				logger.Info("Next run", zap.String("job", j.Name), zap.Time("at", j.NextRun))
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			for {
				select {
				case <-ctx.Done():
					// A signal is the normal way to stop the daemon.
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					if err := sched.Stop(stopCtx); err != nil {
						logger.Warn("Scheduler did not stop cleanly", zap.Error(err))
					}
					return nil
				case <-hup:
					next := reloadConfig(cmd, a, logger)
					if next == nil || next.Schedule.Cron == cfg.Schedule.Cron {
						continue
					}
					if err := reschedule(sched, next.Schedule.Cron, job); err != nil {
						logger.Error("Schedule unchanged", zap.Error(err))
						continue
					}
					cfg = next
				}
			}
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "run once immediately before waiting for the schedule")
	return cmd
}

type reloader interface {
	ReloadConfig(cfg *config.Config) error
}

// reloadConfig re-reads the config file and hands it to a. It returns nil
// when the previous configuration stays in effect.
func reloadConfig(cmd *cobra.Command, a reloader, logger *zap.Logger) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err == nil {
		err = a.ReloadConfig(cfg)
	}
	if err != nil {
		logger.Error("Config reload failed, keeping previous configuration", zap.Error(err))
		return nil
	}
	logger.Info("Configuration reloaded")
	return cfg
}

type claimScheduler interface {
	AddClaimJob(schedule string, job scheduler.Job) error
	RemoveJob(name string)
}

// reschedule points the claim job at schedule. An empty schedule pauses
// scheduled claims.
func reschedule(s claimScheduler, schedule string, job scheduler.Job) error {
	if schedule == "" {
		s.RemoveJob("claim")
		return nil
	}
	return s.AddClaimJob(schedule, job)
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Establish and persist a panel session without claiming",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			a, cleanup, err := buildApp(cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.Login(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in via %s\n", res.Strategy)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted panel session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			a, cleanup, err := buildApp(cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			had := a.IsAuthenticated()
			if err := a.Logout(); err != nil {
				return err
			}
			if had {
				fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no valid session was stored")
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			runs, err := s.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tOUTCOME\tLOGIN\tDURATION\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID,
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.Outcome,
					dash(string(r.LoginStrategy())),
					r.Duration().Round(time.Second),
					dash(truncate(r.Error, 60)),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			last, err := s.LastOutcome(ctx, types.OutcomeClaimed)
			switch {
			case err == nil:
				fmt.Fprintf(out, "\nlast claim: %s (%s ago)\n",
					last.StartedAt.Local().Format("2006-01-02 15:04"),
					time.Since(last.StartedAt).Round(time.Minute))
			case errors.Is(err, store.ErrNotFound):
				fmt.Fprintln(out, "\nlast claim: never")
			default:
				return err
			}

			counts, err := s.CountSince(ctx, time.Now().AddDate(0, 0, -7))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "last 7 days: %d claimed, %d not available, %d failed\n",
				counts[types.OutcomeClaimed], counts[types.OutcomeNotAvailable], counts[types.OutcomeFailed])
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|cache|screenshots>",
		Short:     "Open the config file, cache directory or screenshot directory",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config", "cache", "screenshots"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				err  error
			)
			switch args[0] {
			case "config":
				path, err = configPath(cmd)
				if err == nil {
					err = ensureConfigFile(path)
				}
			case "cache":
				path, err = config.CacheDir()
				if err == nil {
					err = os.MkdirAll(path, 0700)
				}
			case "screenshots":
				var cfg *config.Config
				cfg, err = configFrom(cmd)
				if err == nil {
					path, err = filepath.Abs(cfg.Run.ScreenshotDir)
				}
			default:
				return fmt.Errorf("unknown target: %s", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to get path: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return openFile(path)
		},
	}
}

// ensureConfigFile writes the default config on first use so there is
// something to edit.
func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return config.Default().SaveTo(path)
}

// configPath is the --config flag when given, else the default location.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return filepath.Abs(path)
	}
	return config.ConfigPath()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
