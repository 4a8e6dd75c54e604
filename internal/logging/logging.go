// Package logging builds the process logger from LoggingConfig.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// NewLogger creates a logrus logger with the configured level, format and output.
// Format "json" uses logrus' JSON formatter; "text" uses the nested formatter.
// Output "stdout", "stderr" or "file" (rotated by lumberjack).
func NewLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetReportCaller(level >= logrus.DebugLevel)
		logger.SetFormatter(&formatter.Formatter{
			NoColors:        cfg.Output == "file",
			TimestampFormat: "2006-01-02 15:04:05",
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
			},
		})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	out, err := newOutput(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	return logger, nil
}

func newOutput(cfg domain.LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.Filename == "" {
			return nil, fmt.Errorf("logging.filename is required when output is file")
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
}
