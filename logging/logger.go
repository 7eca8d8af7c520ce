// Package logging provides the structured logger used throughout the
// dual-protocol server core. It wraps zerolog rather than exposing it
// directly so subsystems depend on a small interface, not a third-party
// API.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin, reentrant wrapper around zerolog.Logger. zerolog's
// Logger is an immutable value safe for concurrent use, so it may be
// called from any handler or goroutine without locking.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing console-formatted output to w (or stderr
// if w is nil). debug raises the level to zerolog.DebugLevel.
func New(w io.Writer, debug bool) Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	z := zerolog.New(cw).Level(level).With().Timestamp().Logger()
	return Logger{z: z}
}

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger {
	return Logger{z: zerolog.Nop()}
}

// With returns a child logger annotated with a client id, the way every
// per-connection log line in the core is scoped.
func (l Logger) With(clientID string) Logger {
	return Logger{z: l.z.With().Str("client_id", clientID).Logger()}
}

func (l Logger) Debug() *zerolog.Event { return l.z.Debug() }
func (l Logger) Info() *zerolog.Event  { return l.z.Info() }
func (l Logger) Warn() *zerolog.Event  { return l.z.Warn() }
func (l Logger) Error() *zerolog.Event { return l.z.Error() }
