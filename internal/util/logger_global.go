package util

import (
	"sync"
)

var (
	globalLogger LoggerInterface = NewDiscardLogger()
	loggerMu     sync.RWMutex
	loggerOnce   sync.Once
)

// InitLogger initializes the global logger once. Later calls are no-ops.
func InitLogger(opts LoggerOptions) error {
	var initErr error
	loggerOnce.Do(func() {
		logger, err := NewLogger(opts)
		if err != nil {
			initErr = err
			return
		}
		SetLogger(logger)
	})
	return initErr
}

// SetLogger replaces the global logger.
func SetLogger(logger LoggerInterface) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	globalLogger = logger
}

// L returns the global logger.
func L() LoggerInterface {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

// Component returns the global logger tagged with a component name.
func Component(name string) LoggerInterface {
	return L().With(Field{Key: "component", Value: name})
}

// LogInfo convenience functions for logging
func LogInfo(msg string, fields ...Field) {
	L().Info(msg, fields...)
}

func LogInfof(format string, args ...interface{}) {
	L().Infof(format, args...)
}

func LogDebug(msg string, fields ...Field) {
	L().Debug(msg, fields...)
}

func LogDebugf(format string, args ...interface{}) {
	L().Debugf(format, args...)
}

func LogWarn(msg string, fields ...Field) {
	L().Warn(msg, fields...)
}

func LogWarnf(format string, args ...interface{}) {
	L().Warnf(format, args...)
}

func LogError(msg string, fields ...Field) {
	L().Error(msg, fields...)
}

func LogErrorf(format string, args ...interface{}) {
	L().Errorf(format, args...)
}
