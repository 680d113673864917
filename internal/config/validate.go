package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts five-field expressions, an optional leading seconds
// field, and descriptors such as @hourly.
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ScheduleParser returns the cron parser used to validate run.partial_run_cron.
func ScheduleParser() cron.Parser {
	return scheduleParser
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlex(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateManagedUsers()
}

func (c *Config) validatePlex() error {
	if c.Plex.URL == "" {
		return requiredError("plex.url", "PLEX_SERVER_URL")
	}
	if err := validateHTTPURL("plex.url", c.Plex.URL); err != nil {
		return err
	}
	if c.Plex.OwnerToken == "" {
		return requiredError("plex.owner_token", "PLEX_OWNER_TOKEN")
	}
	if c.Plex.ClientIdentifier == "" {
		return requiredError("plex.client_identifier", "PLEX_CLIENT_IDENTIFIER")
	}
	return validateHTTPURL("plex.plextv_url", c.Plex.PlexTVURL)
}

func (c *Config) validateRun() error {
	if c.Run.CleanRunOnStart && c.Run.PartialRunOnStart {
		return errors.New("run.clean_run_on_start and run.partial_run_on_start are mutually exclusive")
	}
	if c.Run.PartialRunCron == "" {
		return nil
	}
	if _, err := scheduleParser.Parse(c.Run.PartialRunCron); err != nil {
		return fmt.Errorf("run.partial_run_cron: invalid cron expression %q: %w", c.Run.PartialRunCron, err)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind: %w", err)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	return validateHTTPURL("notifications.ntfy_topic", c.Notifications.NtfyTopic)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateManagedUsers() error {
	for name, token := range c.ManagedUsers {
		if token == "" {
			return fmt.Errorf("managed_users.%s: token must not be empty", name)
		}
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, raw)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("%s: host is required", field)
	}
	return nil
}

func requiredError(field, env string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("%s is required. Set %s env var or edit %s (create with 'defaulter config init')", field, env, defaultPath)
}
