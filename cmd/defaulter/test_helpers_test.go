package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const testRules = `groups:
  family: [alice]
filters:
  Movies:
    family:
      audio:
        - include: {language: English}
`

const movieXML = `<MediaContainer size="1">
<Video ratingKey="100" type="movie" title="Arrival" updatedAt="1700000000">
<Media><Part id="9001">
<Stream id="2" streamType="2" codec="aac" language="English" displayTitle="English (AAC)"/>
<Stream id="3" streamType="2" codec="ac3" language="Français" languageCode="fra" displayTitle="Français (AC3)" selected="1"/>
<Stream id="4" streamType="3" codec="srt" languageCode="jpn" displayTitle="Japanese (SRT)"/>
</Part></Media>
</Video>
</MediaContainer>`

// fakePlex serves one movie library with one item and records default
// stream updates.
type fakePlex struct {
	server *httptest.Server

	mu      sync.Mutex
	updates []string
}

func newFakePlex(t *testing.T) *fakePlex {
	t.Helper()
	f := &fakePlex{}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePlex) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/library/parts/9001":
		f.mu.Lock()
		f.updates = append(f.updates, r.Header.Get("X-Plex-Username")+":"+r.URL.RawQuery)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/library/sections":
		_, _ = w.Write([]byte(`<MediaContainer><Directory key="1" type="movie" title="Movies"/></MediaContainer>`))
	case r.URL.Path == "/library/sections/1/all":
		_, _ = w.Write([]byte(`<MediaContainer><Video ratingKey="100" type="movie" title="Arrival" updatedAt="1700000000"/></MediaContainer>`))
	case r.URL.Path == "/library/sections/1":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/library/metadata/100":
		_, _ = w.Write([]byte(movieXML))
	case r.URL.Path == "/api/servers/test-client/shared_servers":
		_, _ = w.Write([]byte(`<MediaContainer><SharedServer username="alice" accessToken="alice-token-123456"/></MediaContainer>`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakePlex) updateCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...)
}

type cliTestEnv struct {
	plex       *fakePlex
	configPath string
	auditDir   string
	rulesPath  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	for _, name := range []string{
		"PLEX_SERVER_URL", "PLEX_OWNER_NAME", "PLEX_OWNER_TOKEN", "PLEX_CLIENT_IDENTIFIER",
		"DRY_RUN", "SKIP_INACCESSIBLE_ITEMS", "LOG_USER_SUMMARY", "LOG_JSON_USER_SUMMARY",
		"AUDIT_DIR", "PORT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	plex := newFakePlex(t)
	env := &cliTestEnv{
		plex:       plex,
		configPath: filepath.Join(base, "config.toml"),
		auditDir:   filepath.Join(base, "audit"),
		rulesPath:  filepath.Join(base, "rules.yaml"),
	}
	if err := os.WriteFile(env.rulesPath, []byte(testRules), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	content := fmt.Sprintf(`rules_path = %q

[plex]
url = %q
plextv_url = %q
owner_name = "owner"
owner_token = "owner-token"
client_identifier = "test-client"
metadata_requests_per_second = 0

[run]
max_attempts = 1
retry_backoff_seconds = 0
pacing_millis = 0

[audit]
dir = %q

[api]
bind = "127.0.0.1:0"

[logging]
level = "error"
`, env.rulesPath, plex.server.URL, plex.server.URL, env.auditDir)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
