package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "test"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithIndustry(ctx, "cafe")
	l.InfoContext(ctx, "search done", "records", 3, "took", 150*time.Millisecond)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for k, want := range map[string]any{
		"msg":        "search done",
		"level":      "info",
		"request_id": "req-1",
		"industry":   "cafe",
		"component":  "test",
		"records":    float64(3),
		"took":       "150ms",
	} {
		if line[k] != want {
			t.Fatalf("field %s=%v want %v (line=%s)", k, line[k], want, buf.String())
		}
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	t.Cleanup(func() { _ = Build(Config{Level: "info"}, &bytes.Buffer{}) })
	l := NewSlog(&zl)

	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("level filtering failed: %s", buf.String())
	}
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Fatalf("ids not unique: %q %q", a, b)
	}
}
