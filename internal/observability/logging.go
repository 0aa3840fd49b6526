package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leaftogo/deskbot/internal/config"
)

// NewLogger creates a structured zap.Logger configured via env settings.
// The console format suits local long-poll runs; webhook deployments
// should stay on json. Unknown levels and formats fall back silently so
// a typo in the env never takes the bot down.
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		LevelKey:   "level",
		TimeKey:    "ts",
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(l.String())
		},
		EncodeTime: zapcore.ISO8601TimeEncoder,
	}

	encoding := "json"
	development := false
	if strings.ToLower(cfg.Format) == "console" {
		encoding = "console"
		development = true
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderCfg.ConsoleSeparator = "  "
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      development,
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}
