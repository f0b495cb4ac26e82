// Package logger builds the zerolog loggers used by the commands.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// ConsoleWriter returns a human readable writer. A nil out means stdout.
func ConsoleWriter(out io.Writer) io.Writer {
	if out == nil {
		out = os.Stdout
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// FileWriter returns a file writer with rotation
func FileWriter(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// New returns a timestamped logger writing to every writer at the given
// level ("trace" through "error").
func New(level string, writers ...io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer
	switch len(writers) {
	case 0:
		w = ConsoleWriter(nil)
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl), nil
}
