package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/doeshing/preauth-guard/internal/infrastructure/security"
)

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", "text", &buf).With("verify")

	log.Info("policy loaded", map[string]interface{}{"code": "76872", "rules": 3})
	log.Debug("hidden", nil)

	output := buf.String()
	for _, want := range []string{"level=INFO", "component=verify", "code=76872", "rules=3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "hidden") {
		t.Errorf("debug line written at info level: %s", output)
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New("debug", "json", &buf).Error("extract failed", errors.New("boom"), nil)

	output := buf.String()
	if !strings.Contains(output, `"level":"ERROR"`) || !strings.Contains(output, `"error":"boom"`) {
		t.Errorf("unexpected json output: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedactingScrubsFieldsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	log := NewRedacting(New("debug", "text", &buf), security.Default())

	log.Warn("contact jane@example.com", map[string]interface{}{
		"note":  "SSN 123-45-6789",
		"codes": []string{"call 555-123-4567"},
		"count": 2,
	})
	log.Error("extractor failed", errors.New("bad member ID ABC12345678"), nil)

	output := buf.String()
	for _, leaked := range []string{"jane@example.com", "123-45-6789", "555-123-4567", "ABC12345678"} {
		if strings.Contains(output, leaked) {
			t.Errorf("log leaked %q: %s", leaked, output)
		}
	}
	for _, want := range []string{"[EMAIL]", "[ID_SSN]", "[PHONE]", "[ID]", "count=2"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output: %s", want, output)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	Nop().Error("ignored", errors.New("x"), map[string]interface{}{"k": "v"})
}
