// Package logging sets up the coloured console logger and the plain text
// run transcript written next to the results.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/MatusOllah/slogcolor"
	"github.com/fatih/color"

	"github.com/thc1006/nmeta-systemtest/pkg/security"
)

// LevelCritical marks failures that end the run
const LevelCritical = slog.LevelError + 4

// TranscriptLevel is the minimum level written to an attached file
const TranscriptLevel = slog.LevelInfo

// ParseLevel maps a level name to its slog.Level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger is a slog.Logger whose output can be extended with a transcript file
// after creation. Loggers derived with With share the attached files.
type Logger struct {
	*slog.Logger
	sinks *sinks
}

// New creates a logger writing coloured records at level and above to console
func New(console io.Writer, level slog.Level) *Logger {
	s := &sinks{}
	s.add(slogcolor.NewHandler(console, &slogcolor.Options{
		Level:         level,
		TimeFormat:    "15:04:05.000",
		SrcFileMode:   slogcolor.ShortFile,
		SrcFileLength: 16,
		MsgPrefix:     color.HiWhiteString("|"),
		MsgColor:      color.New(color.FgHiWhite),
	}), nil)

	return &Logger{
		Logger: slog.New(&fanoutHandler{sinks: s}),
		sinks:  s,
	}
}

// AttachFile appends records at TranscriptLevel and above to path
func (l *Logger) AttachFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.SecureFileMode)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.sinks.add(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level:       TranscriptLevel,
		ReplaceAttr: replaceLevel,
	}), f)
	return nil
}

// Close closes every attached file
func (l *Logger) Close() error {
	return l.sinks.close()
}

// Critical logs msg at LevelCritical
func Critical(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelCritical, msg, args...)
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelCritical {
			return slog.String(slog.LevelKey, "CRITICAL")
		}
	}
	return a
}

type sinks struct {
	mu       sync.RWMutex
	handlers []slog.Handler
	closers  []io.Closer
}

func (s *sinks) add(h slog.Handler, c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
	if c != nil {
		s.closers = append(s.closers, c)
	}
}

func (s *sinks) snapshot() []slog.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]slog.Handler(nil), s.handlers...)
}

func (s *sinks) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// fanoutHandler sends each record to every sink. Attributes and groups added
// through With are replayed on the sinks at handle time so files attached
// later see them too.
type fanoutHandler struct {
	sinks *sinks
	ops   []func(slog.Handler) slog.Handler
}

func (h *fanoutHandler) resolve(base slog.Handler) slog.Handler {
	for _, op := range h.ops {
		base = op(base)
	}
	return base
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks.snapshot() {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, s := range h.sinks.snapshot() {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.resolve(s).Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(base slog.Handler) slog.Handler { return base.WithAttrs(attrs) })
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(base slog.Handler) slog.Handler { return base.WithGroup(name) })
}

func (h *fanoutHandler) with(op func(slog.Handler) slog.Handler) *fanoutHandler {
	ops := make([]func(slog.Handler) slog.Handler, 0, len(h.ops)+1)
	ops = append(ops, h.ops...)
	ops = append(ops, op)
	return &fanoutHandler{sinks: h.sinks, ops: ops}
}
