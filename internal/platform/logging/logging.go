// Package logging builds the process logger from the LOG_FORMAT setting.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.elastic.co/ecszerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatECS     = "ecs"
)

// New returns a logger writing to out in the given format, tagged with the
// service name. ECS output follows the Elastic Common Schema field layout and
// renames zerolog's global timestamp and level fields.
func New(format string, out io.Writer, service string) (zerolog.Logger, error) {
	var logger zerolog.Logger
	switch format {
	case FormatConsole:
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	case FormatJSON:
		logger = zerolog.New(out).With().Timestamp().Logger()
	case FormatECS:
		logger = ecszerolog.New(out)
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return logger.With().Str("service", service).Logger(), nil
}

// Component returns a child logger for a named subsystem.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
