package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/notion"
)

const adminRequired = "🚫 You need the Administrator permission to use this command."

type configState struct {
	URL        string
	Properties []notion.PropertySchema
	Create     []string
	Previous   *db.ChannelConfig
}

// startConfig handles /config url: the URL is checked against Notion, then
// the create and display properties are chosen. Nothing is saved until the
// last step.
func (b *Bot) startConfig(ctx context.Context, i *discordgo.Interaction) error {
	if !isAdmin(i) {
		return b.notice(i, adminRequired)
	}

	url := strings.TrimSpace(stringOption(i, "url"))
	if _, err := notion.ExtractDatabaseID(url); err != nil {
		return b.notice(i, "❌ That does not look like a Notion database URL.")
	}

	channelID, _ := b.configChannel(i)
	if err := b.deferReply(i); err != nil {
		return err
	}

	props, err := b.notion.GetPropertiesForInteraction(ctx, url)
	if err != nil {
		return fmt.Errorf("read database schema: %w", err)
	}
	if len(props) == 0 {
		return b.edit(i, text("❌ The database has no properties that can be filled in."))
	}

	st := &configState{URL: url, Properties: props}
	if prev, err := b.store.LoadChannelConfig(ctx, i.GuildID, channelID); err == nil && prev.NotionURL == url {
		st.Previous = prev
	}

	s := b.sessions.Start(flowConfig, i, channelID, st)
	return b.edit(i, b.renderConfigCreate(s, st))
}

func (b *Bot) renderConfigCreate(s *Session, st *configState) message {
	var selected []string
	if st.Previous != nil {
		selected = st.Previous.CreateProperties
	}
	return message{
		Content: "**Step 1/2:** choose the properties people fill in when creating a card with /card.",
		Components: []discordgo.MessageComponent{
			selectMenu(s.control("create"), "Properties for new cards", propertyOptions(st.Properties, selected), 1, len(st.Properties)),
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				button("Cancel", discordgo.SecondaryButton, s.control("cancel")),
			}},
		},
	}
}

func (b *Bot) renderConfigDisplay(s *Session, st *configState) message {
	var selected []string
	if st.Previous != nil {
		selected = st.Previous.DisplayProperties
	}
	return message{
		Content: fmt.Sprintf("**Step 2/2:** choose the properties shown on cards in search results and notifications.\nCreate properties: %s",
			strings.Join(st.Create, ", ")),
		Components: []discordgo.MessageComponent{
			selectMenu(s.control("display"), "Properties shown on cards", propertyOptions(st.Properties, selected), 1, len(st.Properties)),
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				button("Cancel", discordgo.SecondaryButton, s.control("cancel")),
			}},
		},
	}
}

func (b *Bot) configStep(ctx context.Context, i *discordgo.Interaction, s *Session, action string, in input) error {
	st := s.State.(*configState)

	switch action {
	case "create":
		st.Create = propertyNames(pickProperties(st.Properties, in.Values))
		if len(st.Create) == 0 {
			return b.notice(i, "Choose at least one property.")
		}
		return b.update(i, b.renderConfigDisplay(s, st))

	case "display":
		display := propertyNames(pickProperties(st.Properties, in.Values))
		if len(display) == 0 {
			return b.notice(i, "Choose at least one property.")
		}

		_, err := b.store.UpdateChannelConfig(ctx, s.GuildID, s.ChannelID, func(cfg *db.ChannelConfig) error {
			cfg.NotionURL = st.URL
			cfg.CreateProperties = st.Create
			cfg.DisplayProperties = display
			return nil
		})
		if err != nil {
			b.sessions.Finish(s, outcomeFailed)
			return fmt.Errorf("save channel config: %w", err)
		}

		b.sessions.Finish(s, outcomeCompleted)
		b.logger.Info("channel configured",
			zap.String("guild_id", s.GuildID),
			zap.String("channel_id", s.ChannelID),
			zap.Strings("create_properties", st.Create),
			zap.Strings("display_properties", display),
		)
		return b.update(i, text(fmt.Sprintf("✅ This channel now uses the Notion database\n%s\n\n**Create:** %s\n**Display:** %s",
			st.URL, strings.Join(st.Create, ", "), strings.Join(display, ", "))))

	case "cancel":
		b.sessions.Finish(s, outcomeCancelled)
		return b.update(i, text("Configuration cancelled. Nothing was changed."))
	}
	return b.notice(i, "This control is no longer valid.")
}

// propertyOptions lists properties as select options valued by index.
func propertyOptions(props []notion.PropertySchema, selected []string) []option {
	opts := make([]option, 0, len(props))
	for idx, p := range props {
		opts = append(opts, option{
			Label:       p.Name,
			Value:       strconv.Itoa(idx),
			Description: p.Type,
			Default:     containsString(selected, p.Name),
		})
	}
	return opts
}

// pickProperties maps selected index values back to properties, skipping
// anything out of range.
func pickProperties(props []notion.PropertySchema, values []string) []notion.PropertySchema {
	var out []notion.PropertySchema
	for _, v := range values {
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 || idx >= len(props) {
			continue
		}
		out = append(out, props[idx])
	}
	return out
}

func pickProperty(props []notion.PropertySchema, value string) (notion.PropertySchema, bool) {
	picked := pickProperties(props, []string{value})
	if len(picked) == 0 {
		return notion.PropertySchema{}, false
	}
	return picked[0], true
}

func propertyNames(props []notion.PropertySchema) []string {
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Name)
	}
	return names
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
