package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/codebot/config"
)

// NewFromConfig builds the application logger. Output never goes to stdout,
// which carries the MCP stdio transport.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	log, err := New(cfg.Logging.Mode, cfg.Logging.Level, cfg.Logging.Output...)
	if err != nil {
		return nil, err
	}
	return log.Named("codebot"), nil
}

// New creates a new logger instance based on configuration
func New(mode, level string, outputs ...string) (*zap.Logger, error) {
	var cfg zap.Config

	switch mode {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}

	// Set the log level
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	if len(outputs) > 0 {
		for _, out := range outputs {
			if out == "stdout" {
				return nil, fmt.Errorf("invalid logging output: stdout is reserved for the stdio transport")
			}
		}
		cfg.OutputPaths = outputs
	}

	return cfg.Build()
}
