// Package dispatch delivers rule notifications to Discord.
package dispatch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/notion"
)

// ErrTargetNotFound is returned when a thread, channel or member cannot be resolved.
var ErrTargetNotFound = errors.New("notification target not found")

// Dispatcher is the unified interface for all notification targets.
// Implementations: Discord (live), Log (development), Protected (circuit breaker)
type Dispatcher interface {
	SendToThread(ctx context.Context, threadID, text string, card *notion.Card) error
	SendToChannel(ctx context.Context, channelID, text string) error
	SendDirectMessage(ctx context.Context, userID, text string) error
}

// MemberResolver maps a Notion person name to a Discord user id in a guild.
type MemberResolver interface {
	ResolveMember(ctx context.Context, guildID, name string) (string, error)
}

// LogDispatcher only logs notifications (for development)
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendToThread(ctx context.Context, threadID, text string, card *notion.Card) error {
	fields := []zap.Field{
		zap.String("thread_id", threadID),
		zap.String("text", text),
	}
	if card != nil {
		fields = append(fields, zap.String("card_title", card.Title), zap.String("card_url", card.URL))
	}
	d.logger.Info("thread notification (development mode)", fields...)
	return nil
}

func (d *LogDispatcher) SendToChannel(ctx context.Context, channelID, text string) error {
	d.logger.Info("channel notification (development mode)",
		zap.String("channel_id", channelID),
		zap.String("text", text),
	)
	return nil
}

func (d *LogDispatcher) SendDirectMessage(ctx context.Context, userID, text string) error {
	d.logger.Info("direct message (development mode)",
		zap.String("user_id", userID),
		zap.String("text", text),
	)
	return nil
}

// ResolveMember echoes the name so development runs exercise the DM path.
func (d *LogDispatcher) ResolveMember(ctx context.Context, guildID, name string) (string, error) {
	return name, nil
}
