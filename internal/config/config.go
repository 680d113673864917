package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Plex contains the media server and plex.tv connection settings.
type Plex struct {
	URL                       string `toml:"url"`
	OwnerName                 string `toml:"owner_name"`
	OwnerToken                string `toml:"owner_token"`
	ClientIdentifier          string `toml:"client_identifier"`
	DeviceName                string `toml:"device_name"`
	PlexTVURL                 string `toml:"plextv_url"`
	RequestTimeoutSeconds     int    `toml:"request_timeout_seconds"`
	MetadataRequestsPerSecond int    `toml:"metadata_requests_per_second"`
}

// Run controls when sync runs happen and how updates are applied.
type Run struct {
	DryRun                bool   `toml:"dry_run"`
	PartialRunOnStart     bool   `toml:"partial_run_on_start"`
	CleanRunOnStart       bool   `toml:"clean_run_on_start"`
	PartialRunCron        string `toml:"partial_run_cron"`
	SkipInaccessibleItems bool   `toml:"skip_inaccessible_items"`
	MaxAttempts           int    `toml:"max_attempts"`
	RetryBackoffSeconds   int    `toml:"retry_backoff_seconds"`
	PacingMillis          int    `toml:"pacing_millis"`
}

// Audit contains the per-run file and database locations.
type Audit struct {
	Dir           string `toml:"dir"`
	DatabasePath  string `toml:"database_path"`
	RetentionDays int    `toml:"retention_days"`
}

// Summary toggles per-part viewer summaries.
type Summary struct {
	Human bool `toml:"human"`
	JSON  bool `toml:"json"`
}

// API contains the daemon HTTP listener settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications configures ntfy alerts for finished and aborted runs.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	OnRunCompleted        bool   `toml:"on_run_completed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Defaulter.
//
// Configuration sections by subsystem:
//   - Plex: server URL, owner credentials, plex.tv lookup
//   - Run: startup and scheduled runs, retry and pacing
//   - Audit: run files and the audit database
//   - Summary: per-part viewer summaries
//   - API: daemon listener and bearer token
//   - Notifications: ntfy alerts
//   - Logging: log format, level, and retention
//
// Track rules live in a separate YAML document at RulesPath.
type Config struct {
	RulesPath     string            `toml:"rules_path"`
	Plex          Plex              `toml:"plex"`
	Run           Run               `toml:"run"`
	Audit         Audit             `toml:"audit"`
	Summary       Summary           `toml:"summary"`
	API           API               `toml:"api"`
	Notifications Notifications     `toml:"notifications"`
	Logging       Logging           `toml:"logging"`
	ManagedUsers  map[string]string `toml:"managed_users"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("defaulter.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the audit directory and, when configured, the
// log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Audit.Dir, filepath.Dir(c.Audit.DatabasePath), c.Logging.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout is the per-request HTTP timeout for Plex calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Plex.RequestTimeoutSeconds) * time.Second
}

// RetryBackoff is the wait between update attempts and library fetch retries.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Run.RetryBackoffSeconds) * time.Second
}

// Pacing is the delay after each update request.
func (c *Config) Pacing() time.Duration {
	return time.Duration(c.Run.PacingMillis) * time.Millisecond
}

// NotificationTimeout bounds one ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// LockPath is the single-instance lock file for the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Audit.Dir, "defaulter.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
