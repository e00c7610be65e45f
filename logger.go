package offsync

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger shared by every offsync component.
// Adapters for zap, logrus and slog live under log/. A nil Logger in any
// Options disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
