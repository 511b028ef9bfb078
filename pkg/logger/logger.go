// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFile is where the JSON copy of the log goes. Empty disables it.
var LogFile = "/tmp/u-osal.log"

var LogContainer logContainer

type logContainer struct {
	mu           sync.Mutex
	logger       *zap.Logger
	simpleLogger *zap.SugaredLogger
}

// GetLogger returns the pointer to the logger and creates one if none exists
func (l *logContainer) GetLogger() *zap.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	return l.logger
}

// GetSimpleLogger returns the pointer to the sugared logger and creates one
// if none exists. Packages keep the returned pointer, so Replace swaps the
// core underneath it rather than the pointer.
func (l *logContainer) GetSimpleLogger() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	return l.simpleLogger
}

// Replace routes everything logged through the container to core and
// returns a function restoring the previous core.
func (l *logContainer) Replace(core zapcore.Core) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	prev := swap.Swap(core)
	return func() { swap.Swap(prev) }
}

// String mirrors zap.String
func (l *logContainer) String(key string, val string) zap.Field {
	return zap.String(key, val)
}

// Int mirrors zap.Int
func (l *logContainer) Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

func (l *logContainer) init() {
	if l.logger != nil {
		return
	}
	swap.Swap(getCombinedCore())
	l.logger = zap.New(swap)
	l.simpleLogger = l.logger.Sugar()
}

func getConsoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getJsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.EpochTimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getConsoleCore() zapcore.Core {
	return zapcore.NewCore(getConsoleEncoder(), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
}

func getJsonCore() zapcore.Core {
	if LogFile == "" {
		return zapcore.NewNopCore()
	}
	f, err := os.OpenFile(LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// The console still works, a read-only /tmp is not fatal.
		return zapcore.NewNopCore()
	}
	return zapcore.NewCore(getJsonEncoder(), zapcore.AddSync(f), zapcore.InfoLevel)
}

func getCombinedCore() zapcore.Core {
	return zapcore.NewTee(getConsoleCore(), getJsonCore())
}
