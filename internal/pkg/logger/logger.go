package logger

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/doeshing/preauth-guard/internal/ports"
)

// SlogLogger implements ports.Logger on top of log/slog.
type SlogLogger struct {
	log *slog.Logger
}

// New creates a SlogLogger. Format is "json" or "text"; level is one of
// debug, info, warn, error. If w is nil, os.Stderr is used.
func New(level, format string, w io.Writer) *SlogLogger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return &SlogLogger{log: slog.New(handler)}
}

// Nop returns a logger that discards everything.
func Nop() *SlogLogger {
	return &SlogLogger{log: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// ParseLevel maps a config level name onto slog. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a logger that adds component to every record.
func (l *SlogLogger) With(component string) *SlogLogger {
	return &SlogLogger{log: l.log.With(slog.String("component", component))}
}

func (l *SlogLogger) Debug(msg string, fields map[string]interface{}) {
	l.log.Debug(msg, attrs(fields)...)
}

func (l *SlogLogger) Info(msg string, fields map[string]interface{}) {
	l.log.Info(msg, attrs(fields)...)
}

func (l *SlogLogger) Warn(msg string, fields map[string]interface{}) {
	l.log.Warn(msg, attrs(fields)...)
}

func (l *SlogLogger) Error(msg string, err error, fields map[string]interface{}) {
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	l.log.Error(msg, args...)
}

// attrs sorts keys so output is stable.
func attrs(fields map[string]interface{}) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}

// generatedKeys hold process-generated identifiers. UUIDs would otherwise be
// mangled by the long-ID rule.
var generatedKeys = map[string]bool{
	"run_id":     true,
	"request_id": true,
}

// Redacting scrubs PHI from every message, string field and error before
// handing the record to the wrapped logger.
type Redacting struct {
	next     ports.Logger
	redactor ports.Redactor
}

// NewRedacting wraps next. redactor must not be nil.
func NewRedacting(next ports.Logger, redactor ports.Redactor) *Redacting {
	return &Redacting{next: next, redactor: redactor}
}

func (r *Redacting) Debug(msg string, fields map[string]interface{}) {
	r.next.Debug(r.scrub(msg), r.scrubFields(fields))
}

func (r *Redacting) Info(msg string, fields map[string]interface{}) {
	r.next.Info(r.scrub(msg), r.scrubFields(fields))
}

func (r *Redacting) Warn(msg string, fields map[string]interface{}) {
	r.next.Warn(r.scrub(msg), r.scrubFields(fields))
}

func (r *Redacting) Error(msg string, err error, fields map[string]interface{}) {
	if err != nil {
		err = redactedError{msg: r.scrub(err.Error()), cause: err}
	}
	r.next.Error(r.scrub(msg), err, r.scrubFields(fields))
}

func (r *Redacting) scrub(s string) string {
	return r.redactor.Redact(s, "")
}

func (r *Redacting) scrubFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if generatedKeys[k] {
			out[k] = v
			continue
		}
		switch typed := v.(type) {
		case string:
			out[k] = r.scrub(typed)
		case error:
			out[k] = r.scrub(typed.Error())
		case []string:
			scrubbed := make([]string, len(typed))
			for i, s := range typed {
				scrubbed[i] = r.scrub(s)
			}
			out[k] = scrubbed
		default:
			out[k] = v
		}
	}
	return out
}

type redactedError struct {
	msg   string
	cause error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.cause }
