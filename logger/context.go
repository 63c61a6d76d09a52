package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// added to every record logged with that context.
const (
	// ContextKeySessionID identifies a voice or streaming session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyTurnID identifies one listen/interpret/speak turn.
	ContextKeyTurnID contextKey = "turn_id"

	// ContextKeyFeature identifies the feature page driving the runtime
	// (e.g. "navigation", "music").
	ContextKeyFeature contextKey = "feature"

	// ContextKeyEpoch identifies the streaming connection generation.
	ContextKeyEpoch contextKey = "connection_epoch"

	// ContextKeyRequestID identifies an individual interpretation request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyTurnID,
	ContextKeyFeature,
	ContextKeyEpoch,
	ContextKeyRequestID,
	ContextKeyEnvironment,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithTurnID returns a new context with the turn ID set.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, ContextKeyTurnID, turnID)
}

// WithFeature returns a new context with the feature name set.
func WithFeature(ctx context.Context, feature string) context.Context {
	return context.WithValue(ctx, ContextKeyFeature, feature)
}

// WithEpoch returns a new context with the connection epoch set.
func WithEpoch(ctx context.Context, epoch string) context.Context {
	return context.WithValue(ctx, ContextKeyEpoch, epoch)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	SessionID   string
	TurnID      string
	Feature     string
	Epoch       string
	RequestID   string
	Environment string
}

// WithLoggingContext returns a new context with every non-empty field set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.SessionID != "" {
		ctx = WithSessionID(ctx, fields.SessionID)
	}
	if fields.TurnID != "" {
		ctx = WithTurnID(ctx, fields.TurnID)
	}
	if fields.Feature != "" {
		ctx = WithFeature(ctx, fields.Feature)
	}
	if fields.Epoch != "" {
		ctx = WithEpoch(ctx, fields.Epoch)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.Environment != "" {
		ctx = WithEnvironment(ctx, fields.Environment)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	get := func(key contextKey) string {
		s, _ := ctx.Value(key).(string)
		return s
	}
	return LoggingFields{
		SessionID:   get(ContextKeySessionID),
		TurnID:      get(ContextKeyTurnID),
		Feature:     get(ContextKeyFeature),
		Epoch:       get(ContextKeyEpoch),
		RequestID:   get(ContextKeyRequestID),
		Environment: get(ContextKeyEnvironment),
	}
}
