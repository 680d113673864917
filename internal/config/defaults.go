package config

const (
	defaultConfigPath                = "~/.config/defaulter/config.toml"
	defaultRulesPath                 = "~/.config/defaulter/rules.yaml"
	defaultAuditDir                  = "~/.local/share/defaulter/audit"
	defaultAuditDatabase             = "audit.db"
	defaultAuditRetentionDays        = 30
	defaultDeviceName                = "Defaulter"
	defaultPlexTVURL                 = "https://plex.tv"
	defaultRequestTimeoutSeconds     = 10
	defaultMetadataRequestsPerSecond = 10
	defaultMaxAttempts               = 10
	defaultRetryBackoffSeconds       = 30
	defaultPacingMillis              = 100
	defaultAPIPort                   = "3184"
	defaultNotifyTimeoutSeconds      = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 60
)

// Default returns a Config populated with repository defaults. Audit.Dir and
// API.Bind stay empty so normalize can apply AUDIT_DIR and PORT first.
func Default() Config {
	return Config{
		RulesPath: defaultRulesPath,
		Plex: Plex{
			DeviceName:                defaultDeviceName,
			PlexTVURL:                 defaultPlexTVURL,
			RequestTimeoutSeconds:     defaultRequestTimeoutSeconds,
			MetadataRequestsPerSecond: defaultMetadataRequestsPerSecond,
		},
		Run: Run{
			MaxAttempts:         defaultMaxAttempts,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			PacingMillis:        defaultPacingMillis,
		},
		Audit: Audit{
			RetentionDays: defaultAuditRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
