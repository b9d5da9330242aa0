package logger

// NoopLogger is a logger that discards all messages. Useful in tests.
type NoopLogger struct{}

// NewNop creates a new no-op logger.
func NewNop() Interface {
	return &NoopLogger{}
}

// Debug does nothing.
func (n *NoopLogger) Debug(_ string, _ ...any) {}

// Info does nothing.
func (n *NoopLogger) Info(_ string, _ ...any) {}

// Warn does nothing.
func (n *NoopLogger) Warn(_ string, _ ...any) {}

// Error does nothing.
func (n *NoopLogger) Error(_ string, _ ...any) {}

// Fatal does nothing.
func (n *NoopLogger) Fatal(_ string, _ ...any) {}

// With returns the same no-op logger.
func (n *NoopLogger) With(_ ...any) Interface { return n }

// WithComponent returns the same no-op logger.
func (n *NoopLogger) WithComponent(_ string) Interface { return n }

// WithError returns the same no-op logger.
func (n *NoopLogger) WithError(_ error) Interface { return n }
