// Package logging provides the shared logger for quotapace commands.
// It wraps logrus so call sites can alias the package as `log` and use the
// familiar Debugf/Infof/Warnf surface.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = logrus.New()

// SetupBaseLogger configures the console logger. Call once at command start.
func SetupBaseLogger() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if os.Getenv("QUOTAPACE_DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// SetLevel overrides the log level.
func SetLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// ConfigureLogOutput switches logging to a rotated file when path is set.
// Console output is kept alongside the file so interactive runs stay visible.
func ConfigureLogOutput(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, rotated))
	return nil
}

func Debug(args ...any)                 { logger.Debug(args...) }
func Info(args ...any)                  { logger.Info(args...) }
func Warn(args ...any)                  { logger.Warn(args...) }
func Error(args ...any)                 { logger.Error(args...) }
func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Infof(format string, args ...any)  { logger.Infof(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }
func Fatalf(format string, args ...any) { logger.Fatalf(format, args...) }

// WithError returns an entry carrying the error field.
func WithError(err error) *logrus.Entry { return logger.WithError(err) }

// WithField returns an entry carrying a single structured field.
func WithField(key string, value any) *logrus.Entry { return logger.WithField(key, value) }
