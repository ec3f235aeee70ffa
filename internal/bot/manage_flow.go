package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/notion"
)

// noneValue clears a property setting in the /manage selects.
const noneValue = "none"

// count handles /count.
func (b *Bot) count(ctx context.Context, i *discordgo.Interaction) error {
	channelID, _ := b.configChannel(i)
	cfg, err := b.loadConfig(ctx, i.GuildID, channelID)
	if err != nil {
		return b.notice(i, notConfiguredMessage)
	}

	if err := b.deferReply(i); err != nil {
		return err
	}

	n, err := b.notion.CountPages(ctx, cfg.NotionURL)
	if err != nil {
		return fmt.Errorf("count cards: %w", err)
	}
	return b.edit(i, text(fmt.Sprintf("📊 This channel's database holds **%d** card(s).", n)))
}

type manageState struct {
	Config      *db.ChannelConfig
	LinkProps   []notion.PropertySchema
	PeopleProps []notion.PropertySchema
}

// startManage handles /manage. Every change is saved as soon as it is made.
func (b *Bot) startManage(ctx context.Context, i *discordgo.Interaction) error {
	if !isAdmin(i) {
		return b.notice(i, adminRequired)
	}

	channelID, _ := b.configChannel(i)
	cfg, err := b.loadConfig(ctx, i.GuildID, channelID)
	if err != nil {
		return b.notice(i, notConfiguredMessage)
	}

	if err := b.deferReply(i); err != nil {
		return err
	}

	schema, err := b.notion.GetPropertiesForInteraction(ctx, cfg.NotionURL)
	if err != nil {
		return fmt.Errorf("read database schema: %w", err)
	}

	st := &manageState{
		Config:      cfg,
		LinkProps:   notion.PropertiesOfType(schema, notion.TypeURL, notion.TypeRichText),
		PeopleProps: notion.PropertiesOfType(schema, notion.TypePeople),
	}
	s := b.sessions.Start(flowManage, i, channelID, st)
	return b.edit(i, b.renderManage(s, st, ""))
}

func (b *Bot) renderManage(s *Session, st *manageState, note string) message {
	cfg := st.Config

	var sb strings.Builder
	if note != "" {
		sb.WriteString(note + "\n")
	}
	sb.WriteString("⚙️ **Channel settings**\n")
	fmt.Fprintf(&sb, "Action buttons on search results: %s\n", onOff(cfg.ActionButtons()))
	summary := onOff(cfg.AISummaryEnabled)
	if b.summarizer == nil {
		summary += " (unavailable)"
	}
	fmt.Fprintf(&sb, "AI thread summary on new cards: %s\n", summary)
	fmt.Fprintf(&sb, "Thread link property: %s\n", orNone(cfg.TopicLinkPropertyName))
	fmt.Fprintf(&sb, "Card author property: %s\n", orNone(cfg.IndividualPersonProp))
	fmt.Fprintf(&sb, "Thread participants property: %s", orNone(cfg.CollectivePersonProp))

	var rows []discordgo.MessageComponent
	if len(st.LinkProps) > 0 {
		rows = append(rows, selectMenu(s.control("topic"), "Thread link property",
			withNone(propertyOptions(st.LinkProps, []string{cfg.TopicLinkPropertyName})), 1, 1))
	}
	if len(st.PeopleProps) > 0 {
		rows = append(rows,
			selectMenu(s.control("indiv"), "Card author property",
				withNone(propertyOptions(st.PeopleProps, []string{cfg.IndividualPersonProp})), 1, 1),
			selectMenu(s.control("collect"), "Thread participants property",
				withNone(propertyOptions(st.PeopleProps, []string{cfg.CollectivePersonProp})), 1, 1),
		)
	}
	rows = append(rows, buttonRows(
		button("Toggle action buttons", discordgo.PrimaryButton, s.control("buttons")),
		disabled(button("Toggle AI summary", discordgo.PrimaryButton, s.control("ai")), b.summarizer == nil),
		button("Close", discordgo.SecondaryButton, s.control("close")),
	)...)

	return message{Content: sb.String(), Components: rows}
}

func (b *Bot) manageStep(ctx context.Context, i *discordgo.Interaction, s *Session, action string, in input) error {
	st := s.State.(*manageState)

	var change func(cfg *db.ChannelConfig)
	switch action {
	case "buttons":
		change = func(cfg *db.ChannelConfig) {
			on := !cfg.ActionButtons()
			cfg.ActionButtonsEnabled = &on
		}
	case "ai":
		if b.summarizer == nil {
			return b.notice(i, "AI summaries are unavailable: no OpenAI API key is configured.")
		}
		change = func(cfg *db.ChannelConfig) { cfg.AISummaryEnabled = !cfg.AISummaryEnabled }
	case "topic":
		name, ok := pickOptional(st.LinkProps, in.Value())
		if !ok {
			return b.notice(i, "Choose a property from the list.")
		}
		change = func(cfg *db.ChannelConfig) { cfg.TopicLinkPropertyName = name }
	case "indiv":
		name, ok := pickOptional(st.PeopleProps, in.Value())
		if !ok {
			return b.notice(i, "Choose a property from the list.")
		}
		change = func(cfg *db.ChannelConfig) { cfg.IndividualPersonProp = name }
	case "collect":
		name, ok := pickOptional(st.PeopleProps, in.Value())
		if !ok {
			return b.notice(i, "Choose a property from the list.")
		}
		change = func(cfg *db.ChannelConfig) { cfg.CollectivePersonProp = name }
	case "close":
		b.sessions.Finish(s, outcomeCompleted)
		return b.update(i, text("Settings closed."))
	default:
		return b.notice(i, "This control is no longer valid.")
	}

	cfg, err := b.store.UpdateChannelConfig(ctx, s.GuildID, s.ChannelID, func(cfg *db.ChannelConfig) error {
		if !cfg.Configured() {
			return db.ErrChannelNotConfigured
		}
		change(cfg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save channel settings: %w", err)
	}
	st.Config = cfg

	b.logger.Info("channel settings changed",
		zap.String("guild_id", s.GuildID),
		zap.String("channel_id", s.ChannelID),
		zap.String("setting", action),
	)
	return b.update(i, b.renderManage(s, st, "✅ Saved."))
}

func withNone(opts []option) []option {
	return append([]option{{Label: "None", Value: noneValue, Description: "Do not fill this in"}}, opts...)
}

// pickOptional resolves a select value that may be noneValue.
func pickOptional(props []notion.PropertySchema, value string) (string, bool) {
	if value == noneValue {
		return "", true
	}
	prop, ok := pickProperty(props, value)
	return prop.Name, ok
}

func onOff(on bool) string {
	if on {
		return "✅ on"
	}
	return "❌ off"
}

func orNone(name string) string {
	if name == "" {
		return "none"
	}
	return "**" + name + "**"
}
