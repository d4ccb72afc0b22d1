// Package monitoring - logging.go configures the global zerolog logger.
//
// DESIGN: Everything logs through github.com/rs/zerolog/log. SetupLogging is
// called once at startup; "auto" format picks console output when stdout is
// a terminal and JSON otherwise.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging configures the global logger. The returned closer releases the
// log file when Output names one.
func SetupLogging(cfg LoggerConfig) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
		isTTY            = term.IsTerminal(int(os.Stdout.Fd()))
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
		isTTY = term.IsTerminal(int(os.Stderr.Fd()))
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer, isTTY = f, f, false
	}

	log.Logger = NewLogger(out, cfg.Format, isTTY).Level(level)
	zerolog.SetGlobalLevel(level)
	return closer, nil
}

// NewLogger builds a logger writing to out in the given format.
func NewLogger(out io.Writer, format string, isTTY bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !isTTY}
	case FormatJSON:
	default:
		if isTTY {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a config level to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
