package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and an optional rotated log file.
type Config struct {
	Level string
	File  string
}

// New builds a JSON logger on stderr, teed to File when set.
func New(cfg Config) *zap.SugaredLogger {
	level := ParseLevel(cfg.Level)
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if file := strings.TrimSpace(cfg.File); file != "" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotatingFile(file)), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()
}

// ParseLevel maps debug/info/warn/error to a zap level, defaulting to info.
func ParseLevel(value string) zap.AtomicLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	case "warn", "warning":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
}
