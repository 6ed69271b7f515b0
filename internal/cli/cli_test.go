package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/panelrenew/panelrenew/internal/auth"
	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/scheduler"
	"github.com/panelrenew/panelrenew/internal/store"
	"github.com/panelrenew/panelrenew/internal/types"
)

// isolate points every user directory and panel variable at test-owned
// values and returns a config file path with a throwaway store.
func isolate(t *testing.T, serverID string) (cfgPath, dbPath string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	for _, k := range []string{
		"PTERODACTYL_COOKIE", "PTERODACTYL_EMAIL", "PTERODACTYL_PASSWORD",
		"PTERODACTYL_SERVER_ID", "PANEL_BASE_URL", "GITHUB_TOKEN", "GITHUB_REPOSITORY",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "PANELRENEW_HEADLESS", "PANELRENEW_TIMEOUT",
	} {
		t.Setenv(k, "")
	}

	dbPath = filepath.Join(home, "runs.db")
	cfgPath = filepath.Join(home, "panelrenew.toml")
	body := fmt.Sprintf("[panel]\nserver_id = %q\n\n[store]\npath = %q\n\n[logger]\nlevel = \"error\"\n", serverID, dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0600))
	return cfgPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func stubOpen(t *testing.T) *[]string {
	t.Helper()
	var opened []string
	orig := openFile
	openFile = func(path string) error {
		opened = append(opened, path)
		return nil
	}
	t.Cleanup(func() { openFile = orig })
	return &opened
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestOpenConfigCreatesDefault(t *testing.T) {
	isolate(t, "abc")
	opened := stubOpen(t)

	out, err := execute(t, "open", "config")
	require.NoError(t, err)

	want, err := config.ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, []string{want}, *opened)
	assert.Contains(t, out, want)
	assert.FileExists(t, want)
}

func TestOpenConfigUsesFlagPath(t *testing.T) {
	cfgPath, _ := isolate(t, "abc")
	opened := stubOpen(t)

	_, err := execute(t, "--config", cfgPath, "open", "config")
	require.NoError(t, err)
	assert.Equal(t, []string{cfgPath}, *opened)

	body, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), `server_id = "abc"`, "an existing file is left alone")

	fresh := filepath.Join(t.TempDir(), "other", "panelrenew.toml")
	_, err = execute(t, "--config", fresh, "open", "config")
	require.NoError(t, err)
	assert.Equal(t, fresh, (*opened)[1])
	assert.FileExists(t, fresh)

	defaultPath, err := config.ConfigPath()
	require.NoError(t, err)
	assert.NoFileExists(t, defaultPath)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	got := truncate("Ошибка входа: неверный пароль", 10)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "Ошибка ...", got)
	assert.Equal(t, 10, utf8.RuneCountInString(got))
}

func TestOpenScreenshots(t *testing.T) {
	cfgPath, _ := isolate(t, "abc")
	opened := stubOpen(t)

	_, err := execute(t, "--config", cfgPath, "open", "screenshots")
	require.NoError(t, err)
	require.Len(t, *opened, 1)
	assert.True(t, filepath.IsAbs((*opened)[0]))
	assert.Equal(t, "screenshots", filepath.Base((*opened)[0]))
}

func TestOpenUnknownTarget(t *testing.T) {
	cfgPath, _ := isolate(t, "abc")
	opened := stubOpen(t)

	_, err := execute(t, "--config", cfgPath, "open", "desktop")
	assert.ErrorContains(t, err, "unknown target")
	assert.Empty(t, *opened)
}

func TestHistory(t *testing.T) {
	cfgPath, dbPath := isolate(t, "abc")

	out, err := execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")

	s, err := store.New(dbPath)
	require.NoError(t, err)
	start := time.Now().Add(-2 * time.Hour)
	require.NoError(t, s.SaveRun(context.Background(), &types.RunResult{
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Outcome:    types.OutcomeClaimed,
		Login:      &types.LoginResult{Strategy: types.StrategyCredentials},
	}))
	require.NoError(t, s.SaveRun(context.Background(), &types.RunResult{
		StartedAt: start.Add(time.Hour),
		Outcome:   types.OutcomeFailed,
		Error:     "login failed: no cookie or credentials configured",
	}))
	require.NoError(t, s.Close())

	out, err = execute(t, "--config", cfgPath, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "credentials")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "last claim:")
	assert.NotContains(t, out, "never")
	assert.Contains(t, out, "last 7 days: 1 claimed, 0 not available, 1 failed")
}

func TestLogoutReportsStoredSession(t *testing.T) {
	cfgPath, _ := isolate(t, "abc")

	out, err := execute(t, "--config", cfgPath, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "no valid session was stored")

	sessionPath, err := auth.DefaultCookieStorePath()
	require.NoError(t, err)
	cs := auth.NewCookieStore(sessionPath, "pterodactyl_session")
	require.NoError(t, cs.Save([]*network.Cookie{{Name: "pterodactyl_session", Value: "abc"}}))

	out, err = execute(t, "--config", cfgPath, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "session cleared")
	assert.NoFileExists(t, sessionPath)
}

func TestReschedule(t *testing.T) {
	s, err := scheduler.New(context.Background(), "UTC", zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	noop := func(context.Context) error { return nil }
	require.NoError(t, reschedule(s, "0 * * * *", noop))
	require.NoError(t, reschedule(s, "15 * * * *", noop))
	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 15, jobs[0].NextRun.Minute())

	assert.Error(t, reschedule(s, "not a schedule", noop))
	assert.Len(t, s.ListJobs(), 1, "a bad schedule keeps the current job")

	require.NoError(t, reschedule(s, "", noop))
	assert.Empty(t, s.ListJobs())
}

func TestRunRequiresServerID(t *testing.T) {
	cfgPath, _ := isolate(t, "")

	_, err := execute(t, "--config", cfgPath, "run")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestMalformedConfigFile(t *testing.T) {
	cfgPath, _ := isolate(t, "abc")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[panel\n"), 0600))

	_, err := execute(t, "--config", cfgPath, "history")
	assert.ErrorContains(t, err, "failed to decode")
}

func TestFlagsOverrideConfig(t *testing.T) {
	o := &rootOptions{}
	cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().BoolVar(&o.headful, "headful", false, "")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "")
	require.NoError(t, cmd.ParseFlags([]string{"--headful", "--log-level", "DEBUG"}))

	cfg := config.Default()
	cfg.Run.Timeout = 3 * time.Minute
	o.apply(cmd, cfg)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 3*time.Minute, cfg.Run.Timeout, "unset flags leave the config alone")
}
