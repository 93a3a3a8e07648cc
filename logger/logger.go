// Package logger provides the structured logger used across grblstream.
//
// Messages carry key-value pairs:
//
//	log.Info("phase changed", "from", "init", "to", "stream")
//
// Output is JSON by default, or a colored console format for interactive use
// (see Options.Format).
package logger

// Level indicates the logging severity level.
type Level int8

const (
	// DebugLevel logs every line exchanged with the controller.
	DebugLevel Level = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs rejected commands and recoverable conditions.
	WarnLevel
	// ErrorLevel logs failures that end the session.
	ErrorLevel
)

// ParseLevel maps a level name to a Level; unknown names are InfoLevel.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

// Logger is a leveled, structured logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// With creates a child logger with the given key-values attached.
	With(keysAndValues ...any) Logger
	Level() Level
	SetLevel(level Level)
}
