package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ErrInvalid is returned by Validate for unusable configurations.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Version     int               `toml:"version"`
	Panel       PanelConfig       `toml:"panel"`
	Credentials CredentialsConfig `toml:"credentials"`
	Login       LoginConfig       `toml:"login"`
	Claim       ClaimConfig       `toml:"claim"`
	Selectors   SelectorsConfig   `toml:"selectors"`
	Browser     BrowserConfig     `toml:"browser"`
	Run         RunConfig         `toml:"run"`
	Archive     ArchiveConfig     `toml:"archive"`
	Notify      NotifyConfig      `toml:"notify"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Logger      LoggerConfig      `toml:"logger"`
	Store       StoreConfig       `toml:"store"`
}

type PanelConfig struct {
	BaseURL      string `toml:"base_url"`
	ServerID     string `toml:"server_id"`
	LoginPath    string `toml:"login_path"`
	CookieName   string `toml:"cookie_name"`
	CookieDomain string `toml:"cookie_domain"`
}

// ServerURL is the authenticated page of the managed server.
func (p PanelConfig) ServerURL() string {
	return strings.TrimRight(p.BaseURL, "/") + p.ServerPath()
}

// ServerPath is the URL path that identifies a logged-in session.
func (p PanelConfig) ServerPath() string {
	return "/server/" + p.ServerID
}

func (p PanelConfig) LoginURL() string {
	return strings.TrimRight(p.BaseURL, "/") + p.LoginPath
}

// CredentialsConfig is normally supplied through the environment only.
type CredentialsConfig struct {
	Cookie   string `toml:"cookie"`
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

type LoginConfig struct {
	SettleDelay           time.Duration `toml:"settle_delay"`
	AuthorizationPolls    int           `toml:"authorization_polls"`
	AuthorizationInterval time.Duration `toml:"authorization_interval"`
	NavigationPolls       int           `toml:"navigation_polls"`
	NavigationInterval    time.Duration `toml:"navigation_interval"`
	PersistSession        bool          `toml:"persist_session"`
}

type ClaimConfig struct {
	Polls          int           `toml:"polls"`
	Interval       time.Duration `toml:"interval"`
	AdGatePolls    int           `toml:"ad_gate_polls"`
	AdGateInterval time.Duration `toml:"ad_gate_interval"`
	Cooldown       time.Duration `toml:"cooldown"`
}

// SelectorsConfig holds the visible texts and CSS selectors used to find
// panel controls. These change whenever the panel UI is redesigned.
type SelectorsConfig struct {
	AuthorizationText string `toml:"authorization_text"`
	LoginTabText      string `toml:"login_tab_text"`
	UsernameInput     string `toml:"username_input"`
	PasswordInput     string `toml:"password_input"`
	SubmitButton      string `toml:"submit_button"`
	AddTimeText       string `toml:"add_time_text"`
	AdGateText        string `toml:"ad_gate_text"`
}

type BrowserConfig struct {
	Headless     bool   `toml:"headless"`
	ExecPath     string `toml:"exec_path"`
	WindowWidth  int    `toml:"window_width"`
	WindowHeight int    `toml:"window_height"`
	UserAgent    string `toml:"user_agent"`
}

type RunConfig struct {
	Timeout       time.Duration `toml:"timeout"`
	ScreenshotDir string        `toml:"screenshot_dir"`
	ArchiveDir    string        `toml:"archive_dir"`
}

type ArchiveConfig struct {
	Enabled    bool   `toml:"enabled"`
	Repository string `toml:"repository"`
	Token      string `toml:"token"`
	APIURL     string `toml:"api_url"`
	UploadURL  string `toml:"upload_url"`
}

// Owner and Name split Repository ("owner/name").
func (a ArchiveConfig) Owner() string {
	owner, _, _ := strings.Cut(a.Repository, "/")
	return owner
}

func (a ArchiveConfig) Name() string {
	_, name, _ := strings.Cut(a.Repository, "/")
	return name
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
	Email    EmailConfig    `toml:"email"`
}

type TelegramConfig struct {
	Token       string `toml:"token"`
	ChatID      int64  `toml:"chat_id"`
	APIEndpoint string `toml:"api_endpoint"`
}

func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

type EmailConfig struct {
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && e.ToAddr != ""
}

type ScheduleConfig struct {
	// Cron is empty to pause scheduled claims.
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

type LoggerConfig struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"`
	ServiceName string `toml:"service_name"`
	LogFile     string `toml:"log_file"`
	MaxSize     int    `toml:"max_size"`
	MaxBackups  int    `toml:"max_backups"`
	MaxAge      int    `toml:"max_age"`
	Compress    bool   `toml:"compress"`
	AddSource   bool   `toml:"add_source"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Panel: PanelConfig{
			BaseURL:      "https://panel.godlike.host",
			LoginPath:    "/auth/login",
			CookieName:   "pterodactyl_session",
			CookieDomain: ".panel.godlike.host",
		},
		Login: LoginConfig{
			SettleDelay:           3 * time.Second,
			AuthorizationPolls:    18,
			AuthorizationInterval: 5 * time.Second,
			NavigationPolls:       15,
			NavigationInterval:    2 * time.Second,
			PersistSession:        true,
		},
		Claim: ClaimConfig{
			Polls:          12,
			Interval:       5 * time.Second,
			AdGatePolls:    12,
			AdGateInterval: 2500 * time.Millisecond,
			Cooldown:       35 * time.Second,
		},
		Selectors: SelectorsConfig{
			AuthorizationText: "Authorization",
			LoginTabText:      "Through login/password",
			UsernameInput:     `input[name="username"]`,
			PasswordInput:     `input[name="password"]`,
			SubmitButton:      `button[type="submit"]`,
			AddTimeText:       "Add time",
			AdGateText:        "Watch advertisement",
		},
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Run: RunConfig{
			Timeout:       8 * time.Minute,
			ScreenshotDir: "screenshots",
			ArchiveDir:    ".",
		},
		Notify: NotifyConfig{
			Email: EmailConfig{SMTPPort: 587},
		},
		Schedule: ScheduleConfig{
			Cron:     "0 * * * *",
			Timezone: "UTC",
		},
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "panelrenew",
			MaxSize:     20,
			MaxBackups:  3,
			MaxAge:      14,
			Compress:    true,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "panelrenew"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "panelrenew"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load builds the effective configuration: defaults, then the TOML file at
// path (the default config path when empty), then .env and the process
// environment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PTERODACTYL_COOKIE", &c.Credentials.Cookie)
	str("PTERODACTYL_EMAIL", &c.Credentials.Email)
	str("PTERODACTYL_PASSWORD", &c.Credentials.Password)
	str("PTERODACTYL_SERVER_ID", &c.Panel.ServerID)
	str("PANEL_BASE_URL", &c.Panel.BaseURL)
	str("GITHUB_TOKEN", &c.Archive.Token)
	str("GITHUB_REPOSITORY", &c.Archive.Repository)
	str("TELEGRAM_BOT_TOKEN", &c.Notify.Telegram.Token)

	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TELEGRAM_CHAT_ID: %v", ErrInvalid, err)
		}
		c.Notify.Telegram.ChatID = id
	}

	if v, ok := lookup("PANELRENEW_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: PANELRENEW_HEADLESS: %v", ErrInvalid, err)
		}
		c.Browser.Headless = b
	}

	if v, ok := lookup("PANELRENEW_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: PANELRENEW_TIMEOUT: %v", ErrInvalid, err)
		}
		c.Run.Timeout = d
	}

	// Uploading evidence is opt-in through the config file, but a CI job that
	// exports a token and a repository clearly wants it.
	if c.Archive.Token != "" && c.Archive.Repository != "" {
		c.Archive.Enabled = true
	}

	return nil
}

// Validate reports the first problem that would make a run impossible.
func (c *Config) Validate() error {
	if c.Panel.ServerID == "" {
		return fmt.Errorf("%w: panel server id is required (PTERODACTYL_SERVER_ID)", ErrInvalid)
	}
	u, err := url.Parse(c.Panel.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: panel base url %q", ErrInvalid, c.Panel.BaseURL)
	}
	if c.Run.Timeout <= 0 {
		return fmt.Errorf("%w: run timeout must be positive", ErrInvalid)
	}
	if c.Login.AuthorizationPolls < 1 || c.Login.NavigationPolls < 1 || c.Claim.Polls < 1 || c.Claim.AdGatePolls < 1 {
		return fmt.Errorf("%w: poll counts must be at least 1", ErrInvalid)
	}
	if c.Archive.Enabled && (c.Archive.Owner() == "" || c.Archive.Name() == "") {
		return fmt.Errorf("%w: archive repository must be owner/name, got %q", ErrInvalid, c.Archive.Repository)
	}
	return nil
}

// StorePath returns the sqlite path, defaulting into the cache directory.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// SaveTo writes config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	// Secrets stay in the environment.
	out := *c
	out.Credentials = CredentialsConfig{}
	out.Archive.Token = ""
	out.Notify.Telegram.Token = ""
	out.Notify.Email.SMTPPass = ""

	encoder := toml.NewEncoder(f)
	return encoder.Encode(out)
}
