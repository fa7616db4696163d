package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultLevel is used when no level is configured.
	DefaultLevel = "info"

	applicationDirectoryName = "hyperweibo"
	logFileName              = "hyperweibo.log"
	logDirPermissions        = 0o755

	errMessageCacheDir   = "locate user cache directory"
	errMessageLogDir     = "create log directory"
	errMessageLevel      = "parse log level"
	errMessageBuildZap   = "build logger"
	logMessageLoggerOpen = "logger initialized"
	logFieldPath         = "path"
)

// Config selects the log destination and verbosity.
type Config struct {
	// Path of the JSON log file; empty selects DefaultPath.
	Path  string
	Level string
}

// DefaultPath places the log file in the user's cache directory.
func DefaultPath() (string, error) {
	directory, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", errMessageCacheDir, err)
	}
	return filepath.Join(directory, applicationDirectoryName, logFileName), nil
}

// New builds a production JSON logger writing to a file, keeping the terminal free for the viewer.
func New(configuration Config) (*zap.Logger, error) {
	path := configuration.Path
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), logDirPermissions); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageLogDir, err)
	}

	levelText := strings.TrimSpace(configuration.Level)
	if levelText == "" {
		levelText = DefaultLevel
	}
	level, err := zapcore.ParseLevel(levelText)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageLevel, err)
	}

	productionConfig := zap.NewProductionConfig()
	productionConfig.Level = zap.NewAtomicLevelAt(level)
	productionConfig.OutputPaths = []string{path}
	productionConfig.ErrorOutputPaths = []string{path}
	productionConfig.EncoderConfig.TimeKey = "time"
	productionConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := productionConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageBuildZap, err)
	}
	logger.Debug(logMessageLoggerOpen, zap.String(logFieldPath, path))
	return logger, nil
}
