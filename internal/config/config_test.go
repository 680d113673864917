package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"defaulter/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PLEX_SERVER_URL", "PLEX_OWNER_NAME", "PLEX_OWNER_TOKEN", "PLEX_CLIENT_IDENTIFIER",
		"DRY_RUN", "SKIP_INACCESSIBLE_ITEMS", "LOG_USER_SUMMARY", "LOG_JSON_USER_SUMMARY",
		"AUDIT_DIR", "PORT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[plex]
url = "http://plex.local:32400/"
owner_name = "owner"
owner_token = "owner-token"
client_identifier = "machine-1"
`

func TestLoadFromEnvironmentAppliesDefaults(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PLEX_SERVER_URL", "http://plex:32400")
	t.Setenv("PLEX_OWNER_TOKEN", "tok")
	t.Setenv("PLEX_CLIENT_IDENTIFIER", "machine")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	wantAudit := filepath.Join(tempHome, ".local", "share", "defaulter", "audit")
	if cfg.Audit.Dir != wantAudit {
		t.Fatalf("unexpected audit dir: got %q want %q", cfg.Audit.Dir, wantAudit)
	}
	if cfg.Audit.DatabasePath != filepath.Join(wantAudit, "audit.db") {
		t.Fatalf("unexpected database path: %q", cfg.Audit.DatabasePath)
	}
	if cfg.RulesPath != filepath.Join(tempHome, ".config", "defaulter", "rules.yaml") {
		t.Fatalf("unexpected rules path: %q", cfg.RulesPath)
	}
	if cfg.API.Bind != "0.0.0.0:3184" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Run.MaxAttempts != 10 || cfg.RetryBackoff() != 30*time.Second || cfg.Pacing() != 100*time.Millisecond {
		t.Fatalf("unexpected run defaults: %+v", cfg.Run)
	}
	if cfg.RequestTimeout() != 10*time.Second {
		t.Fatalf("unexpected request timeout: %s", cfg.RequestTimeout())
	}
	if cfg.Plex.DeviceName != "Defaulter" || cfg.Plex.PlexTVURL != "https://plex.tv" {
		t.Fatalf("unexpected plex defaults: %+v", cfg.Plex)
	}
	if cfg.Run.DryRun || cfg.Summary.Human || cfg.Summary.JSON {
		t.Fatal("expected toggles off by default")
	}
	if cfg.LockPath() != filepath.Join(wantAudit, "defaulter.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestLoadFileAndEnvironmentPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	auditDir := t.TempDir()
	path := writeConfig(t, minimalConfig+`
[run]
dry_run = true
skip_inaccessible_items = false

[summary]
human = true

[managed_users]
" kids " = " kid-token "
`)
	t.Setenv("DRY_RUN", "off")
	t.Setenv("SKIP_INACCESSIBLE_ITEMS", "YES")
	t.Setenv("PLEX_OWNER_TOKEN", "env-token")
	t.Setenv("AUDIT_DIR", auditDir)
	t.Setenv("PORT", "9000")

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Plex.URL != "http://plex.local:32400" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Plex.URL)
	}
	if cfg.Plex.OwnerToken != "owner-token" {
		t.Fatalf("expected file token to win over env, got %q", cfg.Plex.OwnerToken)
	}
	if cfg.Run.DryRun {
		t.Fatal("expected DRY_RUN=off to override file")
	}
	if !cfg.Run.SkipInaccessibleItems {
		t.Fatal("expected SKIP_INACCESSIBLE_ITEMS=YES to override file")
	}
	if !cfg.Summary.Human {
		t.Fatal("expected human summary from file")
	}
	if cfg.Audit.Dir != auditDir {
		t.Fatalf("expected AUDIT_DIR, got %q", cfg.Audit.Dir)
	}
	if cfg.API.Bind != "0.0.0.0:9000" {
		t.Fatalf("expected PORT applied, got %q", cfg.API.Bind)
	}
	if cfg.ManagedUsers["kids"] != "kid-token" {
		t.Fatalf("expected trimmed managed user, got %v", cfg.ManagedUsers)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "missing url", body: "[plex]\nowner_token = \"t\"\nclient_identifier = \"c\"\n", want: "plex.url is required"},
		{name: "bad scheme", body: "[plex]\nurl = \"ftp://x\"\nowner_token = \"t\"\nclient_identifier = \"c\"\n", want: "scheme"},
		{name: "missing client id", body: "[plex]\nurl = \"http://x\"\nowner_token = \"t\"\n", want: "plex.client_identifier"},
		{name: "bad cron", body: minimalConfig + "[run]\npartial_run_cron = \"every day\"\n", want: "invalid cron"},
		{name: "both start runs", body: minimalConfig + "[run]\nclean_run_on_start = true\npartial_run_on_start = true\n", want: "mutually exclusive"},
		{name: "bad format", body: minimalConfig + "[logging]\nformat = \"xml\"\n", want: "logging.format"},
		{name: "unknown key", body: minimalConfig + "[plex.extra]\nfoo = 1\n", want: "parse config"},
		{name: "empty managed token", body: minimalConfig + "[managed_users]\nkids = \"\"\n", want: "managed_users.kids"},
		{name: "bad ntfy topic", body: minimalConfig + "[notifications]\nntfy_topic = \"my-topic\"\n", want: "notifications.ntfy_topic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("HOME", t.TempDir())
			_, _, _, err := config.Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadDefaultsNotificationTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	cfg, _, _, err := config.Load(writeConfig(t, minimalConfig+"[notifications]\nntfy_topic = \" https://ntfy.sh/defaulter \"\nrequest_timeout_seconds = 0\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/defaulter" {
		t.Fatalf("expected trimmed topic, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.NotificationTimeout() != 10*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.NotificationTimeout())
	}
}

func TestLoadAcceptsSecondsCron(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	cfg, _, _, err := config.Load(writeConfig(t, minimalConfig+"[run]\npartial_run_cron = \"0 */5 * * * *\"\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, err := config.ScheduleParser().Parse(cfg.Run.PartialRunCron); err != nil {
		t.Fatalf("schedule parse: %v", err)
	}
}

func TestCreateSampleParsesAsTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if cfg.Plex.DeviceName != "Defaulter" || cfg.API.Bind != "0.0.0.0:3184" {
		t.Fatalf("unexpected sample values: %+v", cfg)
	}
}

func TestParseBool(t *testing.T) {
	for _, in := range []string{"1", "true", "YES", " on "} {
		if v, ok := config.ParseBool(in); !ok || !v {
			t.Fatalf("expected %q to parse true", in)
		}
	}
	for _, in := range []string{"0", "false", "No", "off"} {
		if v, ok := config.ParseBool(in); !ok || v {
			t.Fatalf("expected %q to parse false", in)
		}
	}
	if _, ok := config.ParseBool("maybe"); ok {
		t.Fatal("expected unrecognized value to be rejected")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Audit.Dir = filepath.Join(base, "audit")
	cfg.Audit.DatabasePath = filepath.Join(base, "db", "audit.db")
	cfg.Logging.Dir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Audit.Dir, filepath.Dir(cfg.Audit.DatabasePath), cfg.Logging.Dir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
