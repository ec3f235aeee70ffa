package observ

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zapcore.Level
	}{
		{"production", "debug", zapcore.DebugLevel},
		{"development", "warn", zapcore.WarnLevel},
		{"development", "nonsense", zapcore.InfoLevel},
		{"production", "", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if !logger.Core().Enabled(tt.want) {
				t.Errorf("level %s should be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("level %s should be disabled", tt.want-1)
			}
		})
	}
}

func TestDiscordLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := DiscordLogger(zap.New(core))

	log(discordgo.LogError, 1, "websocket closed: %d", 4004)
	log(discordgo.LogWarning, 1, "heartbeat late")
	log(discordgo.LogInformational, 1, "connected")
	log(discordgo.LogDebug, 1, "payload")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	want := []zapcore.Level{zapcore.ErrorLevel, zapcore.WarnLevel, zapcore.InfoLevel, zapcore.DebugLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Errorf("entry %d level = %s, want %s", i, e.Level, want[i])
		}
		if e.LoggerName != "discordgo" {
			t.Errorf("entry %d logger = %q", i, e.LoggerName)
		}
	}
	if entries[0].Message != "websocket closed: 4004" {
		t.Errorf("message = %q", entries[0].Message)
	}
}

func TestDiscordLogLevel(t *testing.T) {
	tests := []struct {
		level zapcore.Level
		want  int
	}{
		{zapcore.DebugLevel, discordgo.LogDebug},
		{zapcore.InfoLevel, discordgo.LogInformational},
		{zapcore.WarnLevel, discordgo.LogWarning},
		{zapcore.ErrorLevel, discordgo.LogError},
	}

	for _, tt := range tests {
		if got := DiscordLogLevel(tt.level); got != tt.want {
			t.Errorf("DiscordLogLevel(%s) = %d, want %d", tt.level, got, tt.want)
		}
	}
}
