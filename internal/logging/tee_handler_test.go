package logging

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestTeeHandlerCollapsesChildren(t *testing.T) {
	if _, ok := TeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every child is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if TeeHandler(nil, inner) != inner {
		t.Fatal("expected single child returned unwrapped")
	}
}

func TestTeeHandlerRespectsChildLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	info := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(TeeHandler(info, debug))

	logger.Debug("debug only")
	if infoBuf.Len() != 0 {
		t.Fatalf("info child received debug record: %s", infoBuf.String())
	}
	if debugBuf.Len() == 0 {
		t.Fatal("debug child missed debug record")
	}

	logger.Info("both")
	if infoBuf.Len() == 0 {
		t.Fatal("info child missed info record")
	}
}

func TestTeeHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(TeeHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil)))
	logger.With(String("library", "Movies")).WithGroup("plan").Info("resolved", String("audio", "English"))

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		if !bytes.Contains(buf.Bytes(), []byte(`"library":"Movies"`)) {
			t.Fatalf("%s child missing attr: %s", name, buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"plan":{"audio":"English"}`)) {
			t.Fatalf("%s child missing group: %s", name, buf.String())
		}
	}
}
