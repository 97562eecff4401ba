// Package monitor reports unexpected errors to an error tracking sink.
package monitor

import (
	"context"
	"log/slog"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/congo-pay/settlement/internal/logging"
)

// Monitor receives errors nobody can act on synchronously, such as gateway
// transport failures.
type Monitor interface {
	ReportError(ctx context.Context, err error, attrs map[string]string)
}

// LoggerMonitor writes reported errors to the structured logger.
type LoggerMonitor struct {
	logger *slog.Logger
}

// NewLoggerMonitor constructs a logging monitor.
func NewLoggerMonitor(logger *slog.Logger) *LoggerMonitor {
	return &LoggerMonitor{logger: logger}
}

func (m *LoggerMonitor) ReportError(ctx context.Context, err error, attrs map[string]string) {
	if m == nil || m.logger == nil {
		return
	}
	args := []any{slog.Any("error", err)}
	if id := logging.RequestID(ctx); id != "" {
		args = append(args, slog.String("request_id", id))
	}
	for k, v := range attrs {
		args = append(args, slog.String(k, v))
	}
	m.logger.Error("unexpected error reported", args...)
}

// NewRelic notices errors on the request's transaction, or on a dedicated
// background transaction when the context carries none.
type NewRelic struct {
	app      *newrelic.Application
	fallback Monitor
}

// NewNewRelic wraps an agent application. A nil app sends everything to fallback.
func NewNewRelic(app *newrelic.Application, fallback Monitor) *NewRelic {
	return &NewRelic{app: app, fallback: fallback}
}

func (m *NewRelic) ReportError(ctx context.Context, err error, attrs map[string]string) {
	if m.fallback != nil {
		m.fallback.ReportError(ctx, err, attrs)
	}
	if m.app == nil {
		return
	}
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		txn = m.app.StartTransaction("settlement/unexpected-error")
		defer txn.End()
	}
	for k, v := range attrs {
		txn.AddAttribute(k, v)
	}
	if id := logging.RequestID(ctx); id != "" {
		txn.AddAttribute("request_id", id)
	}
	txn.NoticeError(err)
}
