package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger used by the binaries
var Logger *zap.SugaredLogger

func init() {
	// No-op until Initialize is called so packages can log safely at load time
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger based on the JSON output preference and level name
func Initialize(jsonOutput bool, level string) (*zap.SugaredLogger, error) {
	l, err := New(jsonOutput, level)
	if err != nil {
		return nil, err
	}
	Logger = l
	return l, nil
}

// New builds a logger without touching the global instance
func New(jsonOutput bool, level string) (*zap.SugaredLogger, error) {
	lvl := ParseLevel(level)

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(lvl)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		zapLogger, err = config.Build()
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encoderConfig),
				zapcore.AddSync(os.Stdout),
				lvl,
			),
		)
	}
	if err != nil {
		return nil, err
	}

	return zapLogger.Sugar(), nil
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
