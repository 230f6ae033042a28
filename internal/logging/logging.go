// Package logging builds the process logger. The interactive UI owns
// stdout, so logs go to stderr or a file.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type Options struct {
	// Level is debug, info, warn or error. Empty means warn, which keeps
	// the terminal quiet during play.
	Level string
	// File appends logs to a file instead of stderr.
	File string
	// Format is console or json. Empty picks console on a terminal and
	// json otherwise.
	Format string
}

// New returns the logger and a function that flushes and closes it.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zapcore.WarnLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}

	sink := zapcore.Lock(os.Stderr)
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	closeSink := func() {}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		sink = zapcore.Lock(f)
		isTerminal = false
		closeSink = func() { f.Close() }
	}

	encoder, err := newEncoder(opts.Format, isTerminal)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(encoder, sink, level)
	logger := zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	return logger, func() {
		_ = logger.Sync()
		closeSink()
	}, nil
}

func newEncoder(format string, isTerminal bool) (zapcore.Encoder, error) {
	switch format {
	case "":
		if isTerminal {
			return consoleEncoder(), nil
		}
		return jsonEncoder(), nil
	case "console":
		return consoleEncoder(), nil
	case "json":
		return jsonEncoder(), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}
