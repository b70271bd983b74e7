package telemetry

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger.
// Useful for development when you want to see stack events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter that writes to the given
// slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}
	if event.Protocol != "" {
		attrs = append(attrs, slog.String("protocol", event.Protocol))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Auth != nil:
		attrs = append(attrs, slog.String("outcome", event.Auth.Outcome.String()))
		if event.Auth.FailureCount > 0 {
			attrs = append(attrs, slog.Int("failure_count", event.Auth.FailureCount))
		}
		if event.Auth.LockedUntil != nil {
			attrs = append(attrs, slog.Time("locked_until", *event.Auth.LockedUntil))
		}
	case event.Circuit != nil:
		attrs = append(attrs,
			slog.String("old_state", event.Circuit.OldState),
			slog.String("new_state", event.Circuit.NewState),
		)
		if event.Circuit.ConsecutiveFailures > 0 {
			attrs = append(attrs, slog.Int("consecutive_failures", event.Circuit.ConsecutiveFailures))
		}
		if event.Circuit.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Circuit.Reason))
		}
	case event.Pool != nil:
		attrs = append(attrs,
			slog.String("kind", event.Pool.Kind.String()),
			slog.Int("active", event.Pool.Active),
			slog.Int("idle", event.Pool.Idle),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "avlink", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
