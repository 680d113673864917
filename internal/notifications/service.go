package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"defaulter/internal/config"
	"defaulter/internal/update"
)

const userAgent = "Defaulter/1.0"

// RunSummary describes a finished run for an alert.
type RunSummary struct {
	Mode     string
	DryRun   bool
	Result   string
	Stats    update.StatsSnapshot
	Duration time.Duration
}

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyRunAborted(ctx context.Context, mode string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc actually delivers alerts.
func Enabled(svc Service) bool {
	if svc == nil {
		return false
	}
	_, noop := svc.(noopService)
	return !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	label := strings.TrimSpace(summary.Mode) + " run"
	if summary.DryRun {
		label = strings.TrimSpace(summary.Mode) + " dry run"
	}
	stats := summary.Stats
	title := "Defaulter - Run Complete"
	tags := []string{"defaulter", "run", "completed"}
	if stats.Failed > 0 || summary.Result != "completed" {
		title = "Defaulter - Run Complete (with errors)"
		tags = []string{"defaulter", "run", "warning"}
	}
	message := fmt.Sprintf("%s %s in %s: %d processed, %d succeeded, %d failed, %d skipped",
		label, summary.Result, duration, stats.Processed, stats.Succeeded, stats.Failed, stats.Skipped)
	return n.send(ctx, payload{title: title, message: message, tags: tags})
}

func (n *ntfyService) NotifyRunAborted(ctx context.Context, mode string, err error) error {
	var builder strings.Builder
	builder.WriteString("Run aborted")
	if mode = strings.TrimSpace(mode); mode != "" {
		builder.WriteString(" (")
		builder.WriteString(mode)
		builder.WriteString(")")
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "Defaulter - Run Aborted",
		message:  builder.String(),
		tags:     []string{"defaulter", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Defaulter - Test",
		message:  "Notification system test",
		tags:     []string{"defaulter", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error  { return nil }
func (noopService) NotifyRunAborted(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
