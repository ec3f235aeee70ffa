// Package observ builds the process logger.
package observ

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a structured logger based on environment. An
// unparseable level falls back to info.
func NewLogger(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build()
}

// DiscordLogger adapts discordgo's package logger to zap. Assign the result
// to discordgo.Logger.
func DiscordLogger(logger *zap.Logger) func(msgL, caller int, format string, a ...interface{}) {
	logger = logger.Named("discordgo").WithOptions(zap.AddCallerSkip(2))

	return func(msgL, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			logger.Error(msg)
		case discordgo.LogWarning:
			logger.Warn(msg)
		case discordgo.LogInformational:
			logger.Info(msg)
		default:
			logger.Debug(msg)
		}
	}
}

// DiscordLogLevel maps a zap level onto discordgo's session log level.
func DiscordLogLevel(level zapcore.Level) int {
	switch {
	case level <= zapcore.DebugLevel:
		return discordgo.LogDebug
	case level == zapcore.InfoLevel:
		return discordgo.LogInformational
	case level == zapcore.WarnLevel:
		return discordgo.LogWarning
	default:
		return discordgo.LogError
	}
}
