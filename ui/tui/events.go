package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// eventLog is the session's JSONL event stream at <state>/<session>/events.jsonl.
// Every record carries a monotonically increasing seq.
type eventLog struct {
	path   string
	file   io.WriteCloser
	logger *slog.Logger
}

func openEventLog(stateDir string, sessionID string, level slog.Level) (*eventLog, error) {
	if sessionID == "" {
		sessionID = "sess_unknown"
	}
	dir := filepath.Join(stateDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &eventLog{
		path:   path,
		file:   f,
		logger: slog.New(newEventHandler(f, level)).With("session_id", sessionID),
	}, nil
}

func (l *eventLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// discardEventLog is used when no state directory can be written.
func discardEventLog() *eventLog {
	return &eventLog{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

const eventTypeKey = "type"

type eventHandler struct {
	slog.Handler
	seq *atomic.Uint64
}

func newEventHandler(w io.Writer, level slog.Level) *eventHandler {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.MessageKey:
				a.Key = eventTypeKey
			case eventTypeKey:
				// The event name owns "type".
				a.Key = "kind"
			}
			return a
		},
	})
	return &eventHandler{Handler: inner, seq: &atomic.Uint64{}}
}

func (h *eventHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.Uint64("seq", h.seq.Add(1)))
	return h.Handler.Handle(ctx, r)
}

func (h *eventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &eventHandler{Handler: h.Handler.WithAttrs(attrs), seq: h.seq}
}

func (h *eventHandler) WithGroup(name string) slog.Handler {
	return &eventHandler{Handler: h.Handler.WithGroup(name), seq: h.seq}
}

type alertSeverity string

const (
	alertInfo  alertSeverity = "INFO"
	alertWarn  alertSeverity = "WARN"
	alertError alertSeverity = "ERROR"
)

func (s alertSeverity) level() slog.Level {
	switch s {
	case alertWarn:
		return slog.LevelWarn
	case alertError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type systemAlert struct {
	At            string         `json:"at"`
	Severity      alertSeverity  `json:"severity"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Context       map[string]any `json:"context,omitempty"`
	CorrelationID string         `json:"correlation_id"`
}

func newCorrelationID() string {
	return uuid.NewString()
}
