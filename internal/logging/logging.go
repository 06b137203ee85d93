// Package logging provides the process-wide structured logger. Subsystems
// attach structured fields (device_id, uid, state) instead of embedding
// them in format strings.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger writing to w. When pretty is true (interactive,
// daemon off), output is run through zerolog's console writer; when false
// (daemon mode), it emits compact JSON lines suitable for a supervisor's
// log collector.
func New(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.StampMicro}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests and library
// callers that do not want driver log output.
func Nop() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// Default is a process-wide fallback used by code paths that are not handed
// a logger explicitly.
var Default = New(os.Stderr, true)
