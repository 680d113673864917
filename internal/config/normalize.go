package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizePlex()
	c.normalizeRun()
	if err := c.normalizeAudit(); err != nil {
		return err
	}
	c.normalizeSummary()
	c.normalizeAPI()
	c.normalizeNotifications()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	var err error
	if strings.TrimSpace(c.RulesPath) == "" {
		c.RulesPath = defaultRulesPath
	}
	if c.RulesPath, err = expandPath(strings.TrimSpace(c.RulesPath)); err != nil {
		return fmt.Errorf("rules_path: %w", err)
	}
	c.normalizeManagedUsers()
	return nil
}

func (c *Config) normalizePlex() {
	lookupString(&c.Plex.URL, "PLEX_SERVER_URL")
	lookupString(&c.Plex.OwnerName, "PLEX_OWNER_NAME")
	lookupString(&c.Plex.OwnerToken, "PLEX_OWNER_TOKEN")
	lookupString(&c.Plex.ClientIdentifier, "PLEX_CLIENT_IDENTIFIER")
	c.Plex.URL = strings.TrimRight(strings.TrimSpace(c.Plex.URL), "/")
	c.Plex.OwnerName = strings.TrimSpace(c.Plex.OwnerName)
	c.Plex.OwnerToken = strings.TrimSpace(c.Plex.OwnerToken)
	c.Plex.ClientIdentifier = strings.TrimSpace(c.Plex.ClientIdentifier)
	c.Plex.DeviceName = strings.TrimSpace(c.Plex.DeviceName)
	if c.Plex.DeviceName == "" {
		c.Plex.DeviceName = defaultDeviceName
	}
	c.Plex.PlexTVURL = strings.TrimRight(strings.TrimSpace(c.Plex.PlexTVURL), "/")
	if c.Plex.PlexTVURL == "" {
		c.Plex.PlexTVURL = defaultPlexTVURL
	}
	if c.Plex.RequestTimeoutSeconds <= 0 {
		c.Plex.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Plex.MetadataRequestsPerSecond < 0 {
		c.Plex.MetadataRequestsPerSecond = 0
	}
}

func (c *Config) normalizeRun() {
	lookupBool(&c.Run.DryRun, "DRY_RUN")
	lookupBool(&c.Run.SkipInaccessibleItems, "SKIP_INACCESSIBLE_ITEMS")
	c.Run.PartialRunCron = strings.TrimSpace(c.Run.PartialRunCron)
	if c.Run.MaxAttempts <= 0 {
		c.Run.MaxAttempts = defaultMaxAttempts
	}
	if c.Run.RetryBackoffSeconds < 0 {
		c.Run.RetryBackoffSeconds = 0
	}
	if c.Run.PacingMillis < 0 {
		c.Run.PacingMillis = 0
	}
}

func (c *Config) normalizeAudit() error {
	lookupString(&c.Audit.Dir, "AUDIT_DIR")
	if strings.TrimSpace(c.Audit.Dir) == "" {
		c.Audit.Dir = defaultAuditDir
	}
	var err error
	if c.Audit.Dir, err = expandPath(strings.TrimSpace(c.Audit.Dir)); err != nil {
		return fmt.Errorf("audit.dir: %w", err)
	}
	if strings.TrimSpace(c.Audit.DatabasePath) == "" {
		c.Audit.DatabasePath = filepath.Join(c.Audit.Dir, defaultAuditDatabase)
	}
	if c.Audit.DatabasePath, err = expandPath(strings.TrimSpace(c.Audit.DatabasePath)); err != nil {
		return fmt.Errorf("audit.database_path: %w", err)
	}
	if c.Audit.RetentionDays < 0 {
		c.Audit.RetentionDays = 0
	}
	return nil
}

func (c *Config) normalizeSummary() {
	lookupBool(&c.Summary.Human, "LOG_USER_SUMMARY")
	lookupBool(&c.Summary.JSON, "LOG_JSON_USER_SUMMARY")
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		port := defaultAPIPort
		if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
			port = strings.TrimSpace(value)
		}
		c.API.Bind = "0.0.0.0:" + port
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	var err error
	if c.Logging.Dir, err = expandPath(strings.TrimSpace(c.Logging.Dir)); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeManagedUsers() {
	if len(c.ManagedUsers) == 0 {
		return
	}
	cleaned := make(map[string]string, len(c.ManagedUsers))
	for name, token := range c.ManagedUsers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cleaned[name] = strings.TrimSpace(token)
	}
	c.ManagedUsers = cleaned
}

// lookupString fills an empty field from the environment.
func lookupString(dst *string, env string) {
	if strings.TrimSpace(*dst) != "" {
		return
	}
	if value, ok := os.LookupEnv(env); ok {
		*dst = strings.TrimSpace(value)
	}
}

// lookupBool lets a recognizable environment value override the file.
func lookupBool(dst *bool, env string) {
	value, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	if parsed, ok := ParseBool(value); ok {
		*dst = parsed
	}
}

// ParseBool accepts 1/true/yes/on and 0/false/no/off, case-insensitively.
func ParseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
