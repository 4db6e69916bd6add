// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ChainIDKey is the context key for the chain being analyzed
	ChainIDKey contextKey = "chainId"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stderr so command output on stdout stays clean.
func New(env string) *Logger {
	return NewWithWriter(env, "", os.Stderr)
}

// NewWithLevel creates a stderr logger with an explicit level name (debug, info, warn, error).
func NewWithLevel(env, level string) *Logger {
	return NewWithWriter(env, level, os.Stderr)
}

// NewWithWriter creates a logger based on environment writing to w.
// Development gets a colored tint handler on terminals and plain text otherwise;
// every other environment logs JSON.
func NewWithWriter(env, level string, w io.Writer) *Logger {
	lvl := parseLevel(level)
	var handler slog.Handler

	if strings.EqualFold(env, "development") {
		if level == "" {
			lvl = slog.LevelDebug
		}
		if isTerminal(w) {
			handler = tint.NewHandler(w, &tint.Options{
				Level:       lvl,
				TimeFormat:  time.DateTime,
				ReplaceAttr: tintErrors,
			})
		} else {
			handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
		}
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(level string) slog.Level {
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

func tintErrors(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" && a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			return tint.Err(err)
		}
	}
	return a
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// WithContext returns a logger with the request and chain ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if chainID, ok := ctx.Value(ChainIDKey).(string); ok && chainID != "" {
		newLogger = newLogger.WithChain(chainID)
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithChain returns a logger tagged with a chain identifier
func (l *Logger) WithChain(chainID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("chainId", chainID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// ChainResolved logs the outcome of chain resolution.
func (l *Logger) ChainResolved(seedID, chainID string, tickets int, partial bool) {
	level := slog.LevelInfo
	if partial {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "chain_resolved",
		slog.String("seedTicketId", seedID),
		slog.String("chainId", chainID),
		slog.Int("tickets", tickets),
		slog.Bool("partial", partial),
	)
}

// PhaseTransition logs an orchestrator state change.
func (l *Logger) PhaseTransition(chainID, from, to string) {
	l.Debug("phase_transition",
		slog.String("chainId", chainID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// ModelCallFailed logs a failed call to an external model capability.
func (l *Logger) ModelCallFailed(capability string, attempt int, transient bool, err error) {
	l.Warn("model_call_failed",
		slog.String("capability", capability),
		slog.Int("attempt", attempt),
		slog.Bool("transient", transient),
		slog.String("error", err.Error()),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
