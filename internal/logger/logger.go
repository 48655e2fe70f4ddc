// Package logger builds the process logger: human-readable on a terminal,
// JSON otherwise, optionally copied to a rotating file.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shaunagostinho/sq100/internal/config"
)

const (
	maxFileMB  = 5
	maxBackups = 3
	maxAgeDays = 28
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Console returns a logger for stderr before the configuration is known.
func Console(level zerolog.Level) zerolog.Logger {
	return zerolog.New(consoleWriter(os.Stderr)).Level(level).With().Timestamp().Logger()
}

// Init builds the root logger from cfg. extra writers receive every event as
// JSON. The returned closer releases the log file.
func Init(cfg config.LoggingConfig, extra ...io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("logger: level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{consoleWriter(os.Stderr)}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxFileMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		writers = append(writers, lj)
		closer = lj
	}
	writers = append(writers, extra...)

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return log, closer, nil
}

// consoleWriter pretty-prints when w is a terminal.
func consoleWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return zerolog.ConsoleWriter{Out: f, TimeFormat: time.TimeOnly}
	}
	return f
}
