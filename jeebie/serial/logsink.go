package serial

import "log/slog"

// LogSink is the default Peer: it never represents a real link partner,
// it just echoes 0xFF and logs outgoing bytes as text. Handy for test ROMs
// that print progress over the serial port with nothing attached.
type LogSink struct {
	logger    *slog.Logger
	defaultRX byte

	// line buffers printable bytes until a newline, for readable log output.
	line []byte
}

type LogSinkOption func(*LogSink)

// WithDefaultRX overrides the byte LogSink reports as received (0xFF by
// default, matching an open/idle line).
func WithDefaultRX(value byte) LogSinkOption {
	return func(s *LogSink) { s.defaultRX = value }
}

// WithLogger routes LogSink output through the given logger instead of
// slog.Default (the facade passes its in-memory buffer logger here).
func WithLogger(logger *slog.Logger) LogSinkOption {
	return func(s *LogSink) { s.logger = logger }
}

// NewLogSink creates a logging Peer.
func NewLogSink(opts ...LogSinkOption) *LogSink {
	s := &LogSink{logger: slog.Default(), defaultRX: 0xFF}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exchange logs outgoing as text and always completes the transfer.
func (s *LogSink) Exchange(outgoing byte) (byte, bool) {
	if outgoing == 0 || outgoing == '\n' || outgoing == '\r' {
		if len(s.line) > 0 {
			s.logger.Info("serial", "line", string(s.line))
			s.line = s.line[:0]
		}
	} else {
		s.line = append(s.line, outgoing)
	}
	return s.defaultRX, true
}
