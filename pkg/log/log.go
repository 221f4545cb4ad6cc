// Package log wraps a zap SugaredLogger shared by the whole process.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var sugar = zap.NewNop().Sugar()

// Init builds the process logger. format "console" selects the development
// encoder with colored levels, anything else produces JSON. When outputPath
// is set, logs are also written to outputPath/app.log.
func Init(level, format, outputPath string) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var zapConfig zap.Config
	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.Encoding = "console"
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Encoding = "json"
	}

	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		_ = os.MkdirAll(outputPath, os.ModePerm)
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, outputPath+"/app.log")
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

// Debugf logs a formatted debug message.
func Debugf(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

// Info logs an info message.
func Info(msg string) {
	sugar.Info(msg)
}

// Infof logs a formatted info message.
func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow logs an info message with key/value context.
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

// Warnf logs a formatted warning.
func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Warnw logs a warning with key/value context.
func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error logs msg at error level with err attached.
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

// Errorf logs a formatted error.
func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Errorw logs an error message with key/value context.
func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Fatal logs msg with err and exits.
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	_ = sugar.Sync()
}
