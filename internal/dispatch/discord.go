package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/notion"
)

// CardColor is the accent used for card embeds.
const CardColor = 0x5865F2

// Session is the subset of *discordgo.Session used for delivery.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMembersSearch(guildID, query string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
}

// DiscordDispatcher sends notifications through the bot's gateway session.
type DiscordDispatcher struct {
	session Session
	logger  *zap.Logger
}

func NewDiscordDispatcher(session Session, logger *zap.Logger) *DiscordDispatcher {
	return &DiscordDispatcher{session: session, logger: logger}
}

func (d *DiscordDispatcher) SendToThread(ctx context.Context, threadID, text string, card *notion.Card) error {
	msg := &discordgo.MessageSend{Content: text}
	if card != nil {
		msg.Embeds = []*discordgo.MessageEmbed{CardEmbed(*card)}
	}
	return d.send(ctx, threadID, msg)
}

func (d *DiscordDispatcher) SendToChannel(ctx context.Context, channelID, text string) error {
	return d.send(ctx, channelID, &discordgo.MessageSend{Content: text})
}

func (d *DiscordDispatcher) SendDirectMessage(ctx context.Context, userID, text string) error {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return wrapRESTError("open dm channel", err)
	}
	return d.send(ctx, ch.ID, &discordgo.MessageSend{Content: text})
}

func (d *DiscordDispatcher) send(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	start := time.Now()
	_, err := d.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		d.logger.Error("discord message failed",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return wrapRESTError("send message", err)
	}

	d.logger.Info("discord message sent",
		zap.String("channel_id", channelID),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// ResolveMember searches the guild for a member whose nickname, global name
// or username equals name. When nobody carries the full name, a member whose
// name equals the first word of it is accepted only if exactly one does.
func (d *DiscordDispatcher) ResolveMember(ctx context.Context, guildID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrTargetNotFound
	}

	members, err := d.session.GuildMembersSearch(guildID, name, 10, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapRESTError("search members", err)
	}
	if ids := matchMembers(members, name); len(ids) > 0 {
		return ids[0], nil
	}

	if first := strings.Fields(name)[0]; first != name {
		members, err := d.session.GuildMembersSearch(guildID, first, 10, discordgo.WithContext(ctx))
		if err != nil {
			return "", wrapRESTError("search members", err)
		}
		if ids := matchMembers(members, first); len(ids) == 1 {
			return ids[0], nil
		}
	}
	return "", fmt.Errorf("member %q: %w", name, ErrTargetNotFound)
}

// matchMembers returns the ids of members with a name equal to name, ignoring case.
func matchMembers(members []*discordgo.Member, name string) []string {
	var ids []string
	for _, m := range members {
		if m.User == nil {
			continue
		}
		for _, candidate := range []string{m.Nick, m.User.GlobalName, m.User.Username} {
			if candidate != "" && strings.EqualFold(candidate, name) {
				ids = append(ids, m.User.ID)
				break
			}
		}
	}
	return ids
}

// CardEmbed renders a card as a Discord embed.
func CardEmbed(card notion.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: truncate(card.Title, 256),
		URL:   card.URL,
		Color: CardColor,
	}
	for _, f := range card.Fields {
		if len(embed.Fields) == 25 {
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   truncate(f.Name, 256),
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return embed
}

func wrapRESTError(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case 403, 404:
			return fmt.Errorf("%s: %w: %v", op, ErrTargetNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// truncate caps s at max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
