package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"defaulter/internal/update"
)

func TestAppendCountsOutcomes(t *testing.T) {
	c := New()
	for _, status := range []update.Status{update.StatusSuccess, update.StatusSuccess, update.StatusError} {
		if err := c.Append(update.Record{Status: status, DurationMs: 250}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := c.Append(update.Record{Status: update.StatusSkipped, Reason: update.ReasonNoToken}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got := testutil.ToFloat64(c.outcomes.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successes, got %f", got)
	}
	if got := testutil.ToFloat64(c.outcomes.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("expected 1 skip, got %f", got)
	}
	if got := testutil.CollectAndCount(c.applyDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestObserveRun(t *testing.T) {
	c := New()
	finished := time.Unix(1700000000, 0)
	c.ObserveRun("partial", "completed", finished)
	c.ObserveRun("partial", "completed", finished)
	c.ObserveRun("clean", "aborted", finished)

	if got := testutil.ToFloat64(c.runs.WithLabelValues("partial", "completed")); got != 2 {
		t.Fatalf("expected 2 partial runs, got %f", got)
	}
	if got := testutil.ToFloat64(c.lastRun); got != 1700000000 {
		t.Fatalf("unexpected last run timestamp %f", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	c := New()
	_ = c.Append(update.Record{Status: update.StatusDryRun})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `defaulter_outcomes_total{status="dry_run"} 1`) {
		t.Fatalf("expected outcome counter in exposition:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("expected go collector metrics")
	}
}
