package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Service is stamped on every log line so shipped logs can be told apart.
const Service = "mockexam"

// Setup configures the global level and returns the root logger writing to stdout.
//   - level: trace, debug, info, warn, error, fatal, panic (unknown means info)
//   - format: "pretty" for console output, anything else for JSON
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

// New is Setup with an explicit writer.
func New(out io.Writer, level, format string) zerolog.Logger {
	writer := out
	if format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(writer).
		With().
		Timestamp().
		Str("service", Service).
		Caller().
		Logger()
}
