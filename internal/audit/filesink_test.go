package audit_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"defaulter/internal/audit"
	"defaulter/internal/update"
)

func sampleRecord(viewer string, status update.Status) update.Record {
	code := 200
	return update.Record{
		RunID:        "run-1",
		Timestamp:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Library:      "Movies",
		RatingKey:    "42",
		PartID:       9001,
		Title:        `Alien, "Director's Cut"`,
		Group:        "family",
		Viewer:       viewer,
		ActionType:   update.ActionAudio,
		FromStreamID: "1",
		FromLabel:    "French",
		ToStreamID:   "2",
		ToLabel:      "English",
		Status:       status,
		HTTPStatus:   &code,
		DurationMs:   15,
	}
}

func TestFileSinkWritesJSONArrayAndCSV(t *testing.T) {
	dir := t.TempDir()
	sink, err := audit.NewFileSink(filepath.Join(dir, "audit"), time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if filepath.Base(sink.JSONPath()) != "run-20260304T050607.json" {
		t.Fatalf("unexpected json path %s", sink.JSONPath())
	}
	for _, viewer := range []string{"alice", "bob"} {
		if err := sink.Append(sampleRecord(viewer, update.StatusSuccess)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sink.Append(sampleRecord("carol", update.StatusSuccess)); err == nil {
		t.Fatal("expected append after close to fail")
	}

	data, err := os.ReadFile(sink.JSONPath())
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("json file is not an array: %v\n%s", err, data)
	}
	if len(records) != 2 || records[1]["user"] != "bob" || records[0]["libraryName"] != "Movies" {
		t.Fatalf("unexpected records: %v", records)
	}

	csvData, err := os.ReadFile(sink.CSVPath())
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d:\n%s", len(lines), csvData)
	}
	if !strings.HasPrefix(lines[0], "timestamp,libraryName,ratingKey,partId,title,") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], `,"Alien, ""Director's Cut""",`) {
		t.Fatalf("expected quoted title cell, got %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], ",success,,200,15") {
		t.Fatalf("unexpected row tail %q", lines[1])
	}
}

func TestFileSinkEmptyRunIsValidJSON(t *testing.T) {
	sink, err := audit.NewFileSink(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(sink.JSONPath())
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var records []any
	if err := json.Unmarshal(data, &records); err != nil || len(records) != 0 {
		t.Fatalf("expected empty array, got %q (%v)", data, err)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Append(update.Record) error {
	f.calls++
	return os.ErrClosed
}

type countingSink struct{ calls int }

func (c *countingSink) Append(update.Record) error {
	c.calls++
	return nil
}

func TestMultiTriesEverySink(t *testing.T) {
	failing := &failingSink{}
	counting := &countingSink{}
	err := audit.Multi{failing, nil, counting}.Append(sampleRecord("alice", update.StatusSuccess))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if failing.calls != 1 || counting.calls != 1 {
		t.Fatalf("expected both sinks called, got %d and %d", failing.calls, counting.calls)
	}
}

func TestPruneRunFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "run-20200101T000000.csv")
	current := filepath.Join(dir, "run-20200102T000000.json")
	db := filepath.Join(dir, "audit.db")
	past := time.Now().AddDate(0, 0, -90)
	for _, path := range []string{old, current, db} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if n := audit.PruneRunFiles(nil, dir, 30, time.Now(), current); n != 1 {
		t.Fatalf("expected one pruned file, got %d", n)
	}
	if _, err := os.Stat(current); err != nil {
		t.Fatalf("expected kept file to survive: %v", err)
	}
	if _, err := os.Stat(db); err != nil {
		t.Fatalf("database must not be pruned: %v", err)
	}
}
