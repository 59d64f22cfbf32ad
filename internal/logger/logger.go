// Copyright (c) 2025 Northbound System
// Package logger builds the process-wide zap logger. The teacher's
// hand-rolled Logger (stdout+file MultiWriter, a package-level
// sync.Once singleton, broadcast-to-subscribers) is kept as the shape of
// this package's API but now wraps zap; the broadcast-to-subscribers half
// of that shape moved to internal/events, generalized from log lines to
// typed domain events.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	defaultLogger *zap.Logger
	once          sync.Once
)

// Init builds the default process logger, writing structured JSON to
// logFile and to stdout. Subsequent calls return the already-built logger,
// matching the teacher's Init/sync.Once singleton shape.
func Init(logFile string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		defaultLogger, err = build(logFile)
	})
	return defaultLogger, err
}

func build(logFile string) (*zap.Logger, error) {
	var cores []zapcore.Core

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores = append(cores, zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		zap.InfoLevel,
	))

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(f),
			zap.InfoLevel,
		))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

// GetDefault returns the default logger, falling back to a stdout-only
// logger if Init was never called — mirroring the teacher's
// never-return-nil fallback behavior.
func GetDefault() *zap.Logger {
	if defaultLogger == nil {
		l, _ := build("")
		if l == nil {
			l = zap.NewNop()
		}
		return l
	}
	return defaultLogger
}
