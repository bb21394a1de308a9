package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger. Development gets the console writer,
// everything else writes JSON to stdout.
func New(env string) zerolog.Logger {
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}

	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(level).
			With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).
		Level(level).
		With().Timestamp().Logger()
}

// Component returns a child logger tagged with a component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
