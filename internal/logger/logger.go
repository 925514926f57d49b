// Package logger sets up structured logging for psmcache
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error, disabled
	Pretty     bool   // human readable console output
	Output     io.Writer
	WithCaller bool
}

// New creates a logger. Output defaults to stderr, since stdout carries
// table output. An unknown level falls back to info.
func New(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return zlog
}

// ParseLevel converts a level name, case insensitive. The empty string and
// unknown names give info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// ValidLevel reports whether s names a level.
func ValidLevel(s string) bool {
	_, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	return err == nil && s != ""
}

// Component returns a child logger tagged with a component name
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
