package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"defaulter/internal/config"
	"defaulter/internal/notifications"
	"defaulter/internal/update"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if notifications.Enabled(svc) {
		t.Fatal("expected noop service without a topic")
	}
	if err := svc.NotifyRunAborted(context.Background(), "clean", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "run completed",
			send: func(svc notifications.Service) error {
				return svc.NotifyRunCompleted(context.Background(), notifications.RunSummary{
					Mode:     "partial",
					Result:   "completed",
					Stats:    update.StatsSnapshot{Processed: 4, Succeeded: 3, Skipped: 1},
					Duration: 61500 * time.Millisecond,
				})
			},
			expectTitle:   "Defaulter - Run Complete",
			expectMessage: "partial run completed in 1m2s: 4 processed, 3 succeeded, 0 failed, 1 skipped",
			expectTags:    "defaulter,run,completed",
		},
		{
			name: "run completed with failures",
			send: func(svc notifications.Service) error {
				return svc.NotifyRunCompleted(context.Background(), notifications.RunSummary{
					Mode:   "clean",
					DryRun: true,
					Result: "completed",
					Stats:  update.StatsSnapshot{Processed: 2, Succeeded: 1, Failed: 1},
				})
			},
			expectTitle:   "Defaulter - Run Complete (with errors)",
			expectMessage: "clean dry run completed in 0s: 2 processed, 1 succeeded, 1 failed, 0 skipped",
			expectTags:    "defaulter,run,warning",
		},
		{
			name: "run aborted",
			send: func(svc notifications.Service) error {
				return svc.NotifyRunAborted(context.Background(), "webhook", errors.New("plex unreachable"))
			},
			expectTitle:    "Defaulter - Run Aborted",
			expectMessage:  "Run aborted (webhook): plex unreachable",
			expectTags:     "defaulter,error,alert",
			expectPriority: "high",
		},
		{
			name: "test",
			send: func(svc notifications.Service) error {
				return svc.TestNotification(context.Background())
			},
			expectTitle:    "Defaulter - Test",
			expectMessage:  "Notification system test",
			expectTags:     "defaulter,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCaptureServer(t, http.StatusOK)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeoutSeconds = 5

			svc := notifications.NewService(&cfg)
			if !notifications.Enabled(svc) {
				t.Fatal("expected ntfy service")
			}
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusForbidden)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
