package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("sat", "G05")).Debug(context.Background(), "epoch processed",
		Float("sod", 30),
		Int("valid", 12),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if rec["msg"] != "epoch processed" || rec["sat"] != "G05" || rec["sod"] != 30.0 || rec["valid"] != 12.0 {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}
	log.Warn(context.Background(), "kept")
	if buf.Len() == 0 {
		t.Fatalf("warn record missing")
	}
}

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("empty run id")
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id || RunIDFromContext(ctx2) != id {
		t.Fatalf("run id changed: %q -> %q", id, id2)
	}
}

func TestWithRunLoggerAnnotates(t *testing.T) {
	var buf bytes.Buffer
	ctx, log := WithRunLogger(context.Background(), New(Config{Format: "json", Output: &buf}))
	log.Info(ctx, "start")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["run_id"] != RunIDFromContext(ctx) {
		t.Fatalf("run_id = %v, want %q", rec["run_id"], RunIDFromContext(ctx))
	}
}

func TestLoggerFromContextDefaultsToNoop(t *testing.T) {
	if _, ok := LoggerFromContext(context.Background()).(noopLogger); !ok {
		t.Fatalf("expected noop logger")
	}
	l := Noop()
	if got := LoggerFromContext(ContextWithLogger(context.Background(), l)); got != l {
		t.Fatalf("stored logger not returned")
	}
}
