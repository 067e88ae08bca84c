package log

import "context"

// Logger defines the structured logging interface used across the engine.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]any)
	Info(ctx context.Context, msg string, fields ...map[string]any)
	Warn(ctx context.Context, msg string, fields ...map[string]any)
	Error(ctx context.Context, msg string, err error, fields ...map[string]any)
	// With returns a new logger carrying additional structured fields.
	With(fields map[string]any) Logger
}
