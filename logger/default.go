package logger

// The package-level logger backs components that were not handed an explicit
// Logger; sessions configured without WithLogger log through it.
var defLogger = NewSlog(InfoLevel, false)

// GetLogger returns the package-level logger.
func GetLogger() Logger {
	return defLogger
}

// SetLevel adjusts the package-level logger's minimum level.
func SetLevel(level Level) {
	defLogger.SetLevel(level)
}

// With creates a child of the package-level logger carrying extra context.
func With(keyValues ...any) Logger {
	return defLogger.With(keyValues...)
}

// Debug logs at DebugLevel on the package-level logger.
func Debug(msg string, keysAndValues ...any) {
	defLogger.Debug(msg, keysAndValues...)
}

// Info logs at InfoLevel on the package-level logger.
func Info(msg string, keysAndValues ...any) {
	defLogger.Info(msg, keysAndValues...)
}

// Warn logs at WarnLevel on the package-level logger.
func Warn(msg string, keysAndValues ...any) {
	defLogger.Warn(msg, keysAndValues...)
}

// Error logs at ErrorLevel on the package-level logger.
func Error(msg string, keysAndValues ...any) {
	defLogger.Error(msg, keysAndValues...)
}

// Fatal logs at FatalLevel on the package-level logger, then exits.
func Fatal(msg string, keysAndValues ...any) {
	defLogger.Fatal(msg, keysAndValues...)
}
