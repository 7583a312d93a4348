// ABOUTME: Builds the process logger from configuration
// ABOUTME: JSON or console encoding to stdout, a log file, or both
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destinations
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // appended to when set

	// FileOnly keeps stdout free for a terminal UI
	FileOnly bool

	// Stdout replaces os.Stdout, for tests
	Stdout io.Writer
}

// New returns a logger and a function that flushes and closes its outputs
func New(cfg Config) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(strings.ToLower(orDefault(cfg.Level, "info")))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(orDefault(cfg.Format, "console")) {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	var sinks []zapcore.WriteSyncer
	var file *os.File
	if cfg.File != "" {
		file, err = os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening log file: %w", err)
		}
		sinks = append(sinks, zapcore.Lock(file))
	}
	if !cfg.FileOnly || file == nil {
		var out io.Writer = os.Stdout
		if cfg.Stdout != nil {
			out = cfg.Stdout
		}
		sinks = append(sinks, zapcore.Lock(zapcore.AddSync(out)))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	logger := zap.New(core, zap.AddCaller())

	cleanup := func() {
		logger.Sync()
		if file != nil {
			file.Close()
		}
	}
	return logger, cleanup, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
