package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SMTPConfig holds outbound mail settings for change notifications.
// Notifications are disabled when Host is empty.
type SMTPConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

// Enabled reports whether enough is configured to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != "" && s.To != ""
}

// Config holds application configuration.
type Config struct {
	// SnapshotDir holds one file per tracked URL plus the registry record.
	// Empty means <baseDir>/diff.
	SnapshotDir string `json:"snapshot_dir,omitempty"`

	// Schedule is the cron expression used by the daemon command.
	Schedule string `json:"schedule,omitempty"`

	// FetchTimeoutSeconds bounds a single HTTP fetch.
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds,omitempty"`

	// UserAgent sent with every fetch.
	UserAgent string `json:"user_agent,omitempty"`

	// Proxy is an explicit proxy URL. Empty means HTTPS_PROXY/HTTP_PROXY from the environment.
	Proxy string `json:"proxy,omitempty"`

	// MaxBodyBytes caps the response body read per fetch.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty"`

	// Selector is an optional CSS selector; when set, only the text of matching
	// elements of an HTML response is tracked.
	Selector string `json:"selector,omitempty"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `json:"log_level,omitempty"`

	// LockStaleMinutes is the age after which a leftover run lock is broken.
	LockStaleMinutes int `json:"lock_stale_minutes,omitempty"`

	// SMTP configures change notification mail.
	SMTP SMTPConfig `json:"smtp"`

	// AllowedPaths is an allowlist of directories for watchlist export/import.
	// Paths outside <baseDir>/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export/import.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits open connections to the history database. 0 means sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule:            "0 * * * *",
		FetchTimeoutSeconds: 30,
		UserAgent:           "sitediff/1.0",
		MaxBodyBytes:        10 * 1024 * 1024,
		LogLevel:            "info",
		LockStaleMinutes:    120,
		SMTP:                SMTPConfig{Port: 587},
	}
}

// FetchTimeout returns FetchTimeoutSeconds as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// LockStaleAfter returns LockStaleMinutes as a duration.
func (c *Config) LockStaleAfter() time.Duration {
	return time.Duration(c.LockStaleMinutes) * time.Minute
}

// ResolveSnapshotDir returns the snapshot directory for the given base directory.
func (c *Config) ResolveSnapshotDir(baseDir string) string {
	if c.SnapshotDir == "" {
		return filepath.Join(baseDir, "diff")
	}
	if filepath.IsAbs(c.SnapshotDir) {
		return filepath.Clean(c.SnapshotDir)
	}
	return filepath.Join(baseDir, c.SnapshotDir)
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.sitediff.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.SnapshotDir = pickString(overlay.SnapshotDir, base.SnapshotDir)
	result.Schedule = pickString(overlay.Schedule, base.Schedule)
	result.UserAgent = pickString(overlay.UserAgent, base.UserAgent)
	result.Proxy = pickString(overlay.Proxy, base.Proxy)
	result.Selector = pickString(overlay.Selector, base.Selector)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	result.FetchTimeoutSeconds = pickInt(overlay.FetchTimeoutSeconds, base.FetchTimeoutSeconds)
	result.LockStaleMinutes = pickInt(overlay.LockStaleMinutes, base.LockStaleMinutes)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)

	result.MaxBodyBytes = overlay.MaxBodyBytes
	if result.MaxBodyBytes == 0 {
		result.MaxBodyBytes = base.MaxBodyBytes
	}

	result.SMTP = SMTPConfig{
		Host:     pickString(overlay.SMTP.Host, base.SMTP.Host),
		Port:     pickInt(overlay.SMTP.Port, base.SMTP.Port),
		Username: pickString(overlay.SMTP.Username, base.SMTP.Username),
		Password: pickString(overlay.SMTP.Password, base.SMTP.Password),
		From:     pickString(overlay.SMTP.From, base.SMTP.From),
		To:       pickString(overlay.SMTP.To, base.SMTP.To),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
