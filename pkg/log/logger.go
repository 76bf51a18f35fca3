package log

// Logger defines the logging surface used across the viewer.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithField returns a Logger that appends key=value to every entry.
	WithField(key string, value interface{}) Logger
}
