package telemetry

import (
	"context"
	"log/slog"
	"time"

	"assetbridge/pkg/logger"
)

// DefaultSlowThreshold marks exchanges worth a warning.
const DefaultSlowThreshold = 500 * time.Millisecond

// LogObserver writes one record per exchange. Fast, successful exchanges are
// logged at debug; slow ones at warn.
type LogObserver struct {
	SlowThreshold time.Duration
	// Logger overrides the destination; nil uses logger.Events, then logger.Log.
	Logger *slog.Logger
}

func (l LogObserver) target() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	if logger.Events != nil {
		return logger.Events
	}
	return logger.Log
}

func (l LogObserver) Observe(ev Event) {
	lg := l.target()
	if lg == nil {
		return
	}
	slow := l.SlowThreshold
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}

	level := slog.LevelDebug
	msg := "exchange_completed"
	switch {
	case ev.State == StateFailed:
		level, msg = slog.LevelWarn, "exchange_failed"
	case time.Duration(ev.Duration*float64(time.Millisecond)) > slow:
		level, msg = slog.LevelWarn, "slow_exchange"
	}
	lg.Log(context.Background(), level, msg,
		"id", ev.ID,
		"kind", ev.Kind,
		"state", ev.State,
		"method", ev.Request.Method,
		"url", ev.Request.URL,
		"status", ev.Response.Status,
		"encoding", ev.Encoding,
		"bytes", ev.Bytes,
		"duration_ms", ev.Duration,
		"error", ev.Err,
	)
}
