package logger

type options struct {
	format string
	level  string
}

// Option configures Init.
type Option func(*options)

// WithFormat selects the output format: "text" (slog) or "json" (zap).
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithLevel sets the initial level.
func WithLevel(level string) Option {
	return func(o *options) {
		o.level = level
	}
}
