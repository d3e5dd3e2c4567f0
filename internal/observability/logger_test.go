package observability

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestLogDefaultsToNoop(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewStdLogger(log.New(&buf, "", 0), false))
	SetLogger(nil)

	Log().Info("should not appear")
	Log().Error("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("noop logger wrote output: %q", buf.String())
	}
}

func TestStdLoggerFormatsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(log.New(&buf, "", 0), false)

	logger.Info("dataset stored",
		Field{Key: "slug", Value: "ocean-temps"},
		Field{Key: "revision", Value: 2},
		Field{Key: "  ", Value: "dropped"})

	got := strings.TrimSpace(buf.String())
	want := "INFO dataset stored slug=ocean-temps revision=2"
	if got != want {
		t.Fatalf("log line: got %q want %q", got, want)
	}
}

func TestStdLoggerDebugGate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(log.New(&buf, "", 0), false)

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line emitted while gated: %q", buf.String())
	}

	verbose := NewStdLogger(log.New(&buf, "", 0), true)
	verbose.Debug("visible")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "DEBUG visible") {
		t.Fatalf("unexpected debug line: %q", buf.String())
	}
}

func TestAggregateErrorsNilInputs(t *testing.T) {
	if err := AggregateErrors("flush", nil); err != nil {
		t.Fatalf("expected nil for empty input, got %v", err)
	}
	if err := AggregateErrors("flush", []error{nil, nil}); err != nil {
		t.Fatalf("expected nil for all-nil input, got %v", err)
	}
}

func TestAggregateErrorsJoinsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewStdLogger(log.New(&buf, "", 0), false))
	defer SetLogger(nil)

	first := errors.New("panel leaked")
	second := errors.New("socket stuck")
	err := AggregateErrors("close panels", []error{first, nil, second},
		Field{Key: "surface", Value: "term"})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "close panels failed:") {
		t.Fatalf("unexpected message: %v", err)
	}
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("aggregated error lost its inputs: %v", err)
	}

	logged := buf.String()
	for _, fragment := range []string{"ERROR operation errors", "surface=term", "operation=close panels", "error_count=2"} {
		if !strings.Contains(logged, fragment) {
			t.Fatalf("log line missing %q: %q", fragment, logged)
		}
	}
}
