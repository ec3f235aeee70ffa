// Package bot is the Discord surface: slash commands and the interactive
// flows behind them. Every flow is a session owned by the user who started
// it and expires after a period of inactivity without persisting anything
// it has not already committed.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/ai"
	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/notion"
)

// DiscordSession is the part of *discordgo.Session the bot uses.
type DiscordSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// NotionAPI is the database gateway the flows talk to.
type NotionAPI interface {
	GetPropertiesForInteraction(ctx context.Context, databaseURL string) ([]notion.PropertySchema, error)
	CountPages(ctx context.Context, databaseURL string) (int, error)
	SearchInDatabase(ctx context.Context, databaseURL, term, propertyName, propertyType string) ([]notion.Page, error)
	SearchIDPerson(ctx context.Context, name string) (string, error)
	BuildPageProperties(ctx context.Context, schema []notion.PropertySchema, title string, values map[string]string) (map[string]notion.PropertyValue, error)
	InsertIntoDatabase(ctx context.Context, databaseURL string, props map[string]notion.PropertyValue, children []notion.Block) (*notion.Page, error)
	AppendBlocks(ctx context.Context, pageID string, blocks []notion.Block) error
	UpdatePage(ctx context.Context, pageID string, props map[string]notion.PropertyValue) (*notion.Page, error)
	DeletePage(ctx context.Context, pageID string) error
}

// Summarizer writes the AI summary of a thread.
type Summarizer interface {
	SummarizeThread(ctx context.Context, messages []ai.ThreadMessage) (string, error)
}

type Config struct {
	// GuildID scopes command registration; empty registers globally.
	GuildID string
	// SessionTimeout is how long a flow waits for the next interaction.
	SessionTimeout time.Duration
	// RequestTimeout bounds the work done for one interaction.
	RequestTimeout time.Duration
}

// Bot routes interactions to flows.
type Bot struct {
	discord    DiscordSession
	store      db.Store
	notion     NotionAPI
	summarizer Summarizer // nil when no OpenAI key is configured
	sessions   *Registry
	flows      map[string]flowHandler
	config     Config
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a bot. summarizer may be nil.
func New(discord DiscordSession, store db.Store, notionAPI NotionAPI, summarizer Summarizer, cfg Config, logger *zap.Logger) *Bot {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 300 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	b := &Bot{
		discord:    discord,
		store:      store,
		notion:     notionAPI,
		summarizer: summarizer,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
	b.sessions = NewRegistry(cfg.SessionTimeout, b.expire, logger)
	b.flows = map[string]flowHandler{
		flowConfig:        b.configStep,
		flowCard:          b.cardStep,
		flowSearch:        b.searchStep,
		flowManage:        b.manageStep,
		flowNotifications: b.notificationsStep,
	}
	return b
}

// RegisterCommands installs the slash commands for appID.
func (b *Bot) RegisterCommands(appID string) error {
	cmds, err := b.discord.ApplicationCommandBulkOverwrite(appID, b.config.GuildID, Commands())
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	b.logger.Info("slash commands registered",
		zap.Int("count", len(cmds)),
		zap.String("guild_id", b.config.GuildID),
	)
	return nil
}

// Close drops every open session.
func (b *Bot) Close() {
	b.sessions.Close()
}

// HandleInteraction is registered with discordgo's AddHandler. discordgo
// runs handlers on their own goroutines; a session's steps are serialized
// by the session lock.
func (b *Bot) HandleInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	i := ic.Interaction
	logger := b.logger.With(
		zap.String("guild_id", i.GuildID),
		zap.String("channel_id", i.ChannelID),
		zap.String("user_id", userID(i)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling interaction", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.config.RequestTimeout)
	defer cancel()

	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		err = b.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		err = b.handleStep(ctx, i, data.CustomID, input{Values: data.Values})
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		err = b.handleStep(ctx, i, data.CustomID, input{Text: modalValue(data), Modal: true})
	default:
		return
	}

	if err != nil {
		logger.Error("interaction failed", zap.Error(err))
		b.reportError(i, err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.Interaction) error {
	name := i.ApplicationCommandData().Name
	switch name {
	case cmdConfig:
		return b.startConfig(ctx, i)
	case cmdCard:
		return b.startCard(ctx, i)
	case cmdSearch:
		return b.startSearch(ctx, i)
	case cmdCount:
		return b.count(ctx, i)
	case cmdManage:
		return b.startManage(ctx, i)
	case cmdNotifications:
		return b.startNotifications(ctx, i)
	default:
		return b.notice(i, "Unknown command.")
	}
}

// handleStep resumes the session named in the custom id. Interactions from
// anyone but the session owner are answered and otherwise ignored.
func (b *Bot) handleStep(ctx context.Context, i *discordgo.Interaction, customID string, in input) error {
	id, err := ParseCustomID(customID)
	if err != nil {
		return b.notice(i, "This control is no longer valid.")
	}

	s, ok := b.sessions.Get(id.Session)
	if !ok || s.Flow != id.Flow {
		return b.notice(i, "⌛ This session has expired. Run the command again.")
	}
	if s.UserID != userID(i) {
		return b.notice(i, "🚫 Only the person who started this can use these controls.")
	}

	handler, ok := b.flows[id.Flow]
	if !ok {
		return b.notice(i, "This control is no longer valid.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return b.notice(i, "⌛ This session has expired. Run the command again.")
	}
	b.sessions.Touch(s, i)

	in.Arg = id.Arg
	return handler(ctx, i, s, id.Action, in)
}

// expire runs when a session times out: its controls are removed.
func (b *Bot) expire(s *Session, last *discordgo.Interaction) {
	if last == nil {
		return
	}
	content := "⌛ This session expired. Run the command again to start over."
	empty := []discordgo.MessageComponent{}
	if _, err := b.discord.InteractionResponseEdit(last, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &empty,
	}); err != nil {
		b.logger.Debug("failed to mark session expired",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
	}
}

// reportError tells the user an interaction failed. Notion errors carry a
// message meant for users and are shown verbatim.
func (b *Bot) reportError(i *discordgo.Interaction, err error) {
	msg := "❌ Something went wrong. Please try again."
	var apiErr *notion.APIError
	switch {
	case errors.As(err, &apiErr):
		msg = "❌ Notion error: " + apiErr.Message
	case errors.Is(err, db.ErrChannelNotConfigured):
		msg = notConfiguredMessage
	}

	// The interaction may already have been acknowledged; try an edit first.
	content := msg
	if _, editErr := b.discord.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}); editErr == nil {
		return
	}
	if noticeErr := b.notice(i, msg); noticeErr != nil {
		b.logger.Debug("failed to report interaction error", zap.Error(noticeErr))
	}
}

// configChannel is the channel a config applies to: threads share their
// parent channel's config.
func (b *Bot) configChannel(i *discordgo.Interaction) (channelID string, thread *discordgo.Channel) {
	ch, err := b.discord.Channel(i.ChannelID)
	if err != nil {
		b.logger.Warn("failed to look up channel", zap.String("channel_id", i.ChannelID), zap.Error(err))
		return i.ChannelID, nil
	}
	if ch.IsThread() && ch.ParentID != "" {
		return ch.ParentID, ch
	}
	return i.ChannelID, nil
}

// loadConfig returns the configured channel config or ErrChannelNotConfigured.
func (b *Bot) loadConfig(ctx context.Context, guildID, channelID string) (*db.ChannelConfig, error) {
	cfg, err := b.store.LoadChannelConfig(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, db.ErrChannelNotConfigured
	}
	return cfg, nil
}

const notConfiguredMessage = "❌ This channel is not linked to a Notion database. An administrator can run /config."

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// displayName is the name used to find a user in Notion.
func displayName(i *discordgo.Interaction) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if i.Member.User != nil {
			return userDisplayName(i.Member.User)
		}
	}
	if i.User != nil {
		return userDisplayName(i.User)
	}
	return ""
}

func userDisplayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func isAdmin(i *discordgo.Interaction) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}
