// Package logging configures the process-wide slog logger and routes
// client-go's klog output through it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatText = "text"
	FormatJSON = "json"
)

// Configure installs a process-wide slog default logger writing to stdout
// and redirects klog into it.
//
// Supported levels: debug, info, warn, error. Supported formats: text, json.
func Configure(level, format string) (*slog.Logger, error) {
	h, err := NewHandler(os.Stdout, level, format)
	if err != nil {
		return nil, err
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	klog.SetLogger(logr.FromSlogHandler(h))
	return logger, nil
}

// NewHandler builds a handler writing to w. The json format is produced by a
// zap core.
func NewHandler(w io.Writer, level, format string) (slog.Handler, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: parsed}), nil
	case FormatJSON:
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(w),
			zapLevel(parsed),
		)
		return zapslog.NewHandler(core, zapslog.WithCaller(false)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", LevelInfo:
		return slog.LevelInfo, nil
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
