package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/ai"
	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/dispatch"
	"github.com/lalithlochan/cardbot/internal/notion"
)

// threadHistoryLimit is how many thread messages feed the summary,
// participants and attachments.
const threadHistoryLimit = 100

// maxCreateBlocks is how many body blocks a page create call accepts.
const maxCreateBlocks = 100

type cardState struct {
	Config *db.ChannelConfig
	Schema []notion.PropertySchema
	Fields []notion.PropertySchema
	Step   int
	Values map[string]string
	Thread *discordgo.Channel
}

// startCard handles /card: each create property is asked for in turn, then
// the card is confirmed and inserted.
func (b *Bot) startCard(ctx context.Context, i *discordgo.Interaction) error {
	channelID, thread := b.configChannel(i)
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

	st := &cardState{
		Config: cfg,
		Schema: schema,
		Fields: createFields(schema, cfg.CreateProperties),
		Values: make(map[string]string),
		Thread: thread,
	}
	s := b.sessions.Start(flowCard, i, channelID, st)
	return b.edit(i, b.renderCardStep(s, st))
}

// createFields orders the configured create properties that still exist.
// Without any, only the title is asked for.
func createFields(schema []notion.PropertySchema, names []string) []notion.PropertySchema {
	var fields []notion.PropertySchema
	for _, name := range names {
		if prop, ok := notion.FindProperty(schema, name); ok {
			fields = append(fields, prop)
		}
	}
	if len(fields) == 0 {
		fields = notion.PropertiesOfType(schema, notion.TypeTitle)
	}
	return fields
}

func (b *Bot) renderCardStep(s *Session, st *cardState) message {
	if st.Step >= len(st.Fields) {
		return b.renderCardConfirm(s, st)
	}

	prop := st.Fields[st.Step]
	header := fmt.Sprintf("**New card** · step %d/%d\n**%s** (%s)", st.Step+1, len(st.Fields), prop.Name, prop.Type)
	controls := buttonRows(
		button("Skip", discordgo.SecondaryButton, s.control("skip")),
		button("Cancel", discordgo.DangerButton, s.control("cancel")),
	)

	if prop.Enumerated() && len(prop.Options) > 0 {
		maxValues, minValues := 1, 1
		if prop.Type == notion.TypeMultiSelect {
			maxValues, minValues = len(prop.Options), 0
		}
		return message{
			Content:    header,
			Components: append([]discordgo.MessageComponent{selectMenu(s.control("value"), "Choose "+prop.Name, valueOptions(prop.Options), minValues, maxValues)}, controls...),
		}
	}

	hint := ""
	switch prop.Type {
	case notion.TypePeople:
		hint = "\nEnter Notion member names separated by commas."
	case notion.TypeDate:
		hint = "\nEnter a date as DD/MM/YYYY."
	case notion.TypeCheckbox:
		hint = "\nEnter yes or no."
	}
	return message{
		Content: header + hint,
		Components: buttonRows(
			button("✏️ Fill in", discordgo.PrimaryButton, s.control("open")),
			button("Skip", discordgo.SecondaryButton, s.control("skip")),
			button("Cancel", discordgo.DangerButton, s.control("cancel")),
		),
	}
}

func (b *Bot) renderCardConfirm(s *Session, st *cardState) message {
	embed := &discordgo.MessageEmbed{Title: "New card", Color: dispatch.CardColor}
	for _, prop := range st.Fields {
		value := st.Values[prop.Name]
		if value == "" {
			value = "—"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   prop.Name,
			Value:  truncateText(value, 1024),
			Inline: true,
		})
	}

	return message{
		Content: "Review the card and confirm.",
		Embeds:  []*discordgo.MessageEmbed{embed},
		Components: buttonRows(
			button("✅ Create card", discordgo.SuccessButton, s.control("confirm")),
			button("Cancel", discordgo.DangerButton, s.control("cancel")),
		),
	}
}

func (b *Bot) cardStep(ctx context.Context, i *discordgo.Interaction, s *Session, action string, in input) error {
	st := s.State.(*cardState)

	switch action {
	case "value":
		if st.Step >= len(st.Fields) {
			return b.notice(i, "This control is no longer valid.")
		}
		prop := st.Fields[st.Step]
		chosen := pickValues(prop.Options, in.Values)
		if len(chosen) > 0 {
			st.Values[prop.Name] = strings.Join(chosen, ", ")
		} else {
			delete(st.Values, prop.Name)
		}
		st.Step++
		return b.update(i, b.renderCardStep(s, st))

	case "open":
		if st.Step >= len(st.Fields) {
			return b.notice(i, "This control is no longer valid.")
		}
		prop := st.Fields[st.Step]
		value := st.Values[prop.Name]
		if value == "" && prop.Type == notion.TypeTitle && st.Thread != nil {
			value = st.Thread.Name
		}
		return b.openModal(i, s.control("text"), "New card", prop.Name, value, longTextProperty(prop.Name))

	case "text":
		if st.Step >= len(st.Fields) {
			return b.notice(i, "This control is no longer valid.")
		}
		prop := st.Fields[st.Step]
		if value := strings.TrimSpace(in.Text); value != "" {
			if prop.Type != notion.TypePeople && prop.Type != notion.TypeTitle {
				if _, err := notion.ValueFor(prop.Type, value); err != nil {
					return b.notice(i, fmt.Sprintf("❌ %s: %v", prop.Name, err))
				}
			}
			st.Values[prop.Name] = value
		} else {
			delete(st.Values, prop.Name)
		}
		st.Step++
		return b.update(i, b.renderCardStep(s, st))

	case "skip":
		st.Step++
		return b.update(i, b.renderCardStep(s, st))

	case "confirm":
		if err := b.deferUpdate(i); err != nil {
			return err
		}
		page, err := b.createCard(ctx, i, st)
		if err != nil {
			b.sessions.Finish(s, outcomeFailed)
			return err
		}
		b.sessions.Finish(s, outcomeCompleted)

		embed := dispatch.CardEmbed(notion.FormatPageForEmbed(page, true, st.Config.DisplayProperties))
		if _, err := b.discord.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
			Content: fmt.Sprintf("🆕 <@%s> created a card.", s.UserID),
			Embeds:  []*discordgo.MessageEmbed{embed},
		}); err != nil {
			b.logger.Warn("failed to post created card", zap.String("page_id", page.ID), zap.Error(err))
		}
		return b.edit(i, message{Content: "✅ Card created.", Embeds: []*discordgo.MessageEmbed{embed}})

	case "cancel":
		b.sessions.Finish(s, outcomeCancelled)
		return b.update(i, text("Card creation cancelled."))
	}
	return b.notice(i, "This control is no longer valid.")
}

// createCard builds the page from the collected values plus the channel's
// automatic properties and inserts it.
func (b *Bot) createCard(ctx context.Context, i *discordgo.Interaction, st *cardState) (*notion.Page, error) {
	cfg := st.Config
	logger := b.logger.With(zap.String("guild_id", i.GuildID), zap.String("channel_id", i.ChannelID))

	values := make(map[string]string, len(st.Values))
	title := ""
	for name, v := range st.Values {
		if prop, ok := notion.FindProperty(st.Schema, name); ok && prop.Type == notion.TypeTitle {
			title = v
			continue
		}
		values[name] = v
	}
	if title == "" {
		title = "Card created on " + b.now().Format("02/01/2006 15:04")
	}

	props, err := b.notion.BuildPageProperties(ctx, st.Schema, title, values)
	if err != nil {
		return nil, fmt.Errorf("build page properties: %w", err)
	}

	if cfg.IndividualPersonProp != "" {
		if id, err := b.notion.SearchIDPerson(ctx, displayName(i)); err != nil {
			logger.Warn("failed to look up card author in notion", zap.Error(err))
		} else if id != "" {
			addPeople(props, cfg.IndividualPersonProp, []string{id})
		}
	}

	var history []*discordgo.Message
	if st.Thread != nil {
		history = b.threadHistory(st.Thread.ID)
	}

	if cfg.CollectivePersonProp != "" && st.Thread != nil {
		var ids []string
		for _, name := range participants(history) {
			id, err := b.notion.SearchIDPerson(ctx, name)
			if err != nil {
				logger.Warn("failed to look up thread participant in notion", zap.Error(err))
				continue
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
		addPeople(props, cfg.CollectivePersonProp, ids)
	}

	if cfg.TopicLinkPropertyName != "" && st.Thread != nil {
		if prop, ok := notion.FindProperty(st.Schema, cfg.TopicLinkPropertyName); ok {
			link := threadURL(i.GuildID, st.Thread.ID)
			if v, err := notion.ValueFor(prop.Type, link); err == nil {
				props[prop.Name] = v
			}
		}
	}

	var children []notion.Block
	if st.Thread != nil {
		summary := ""
		if cfg.AISummaryEnabled && b.summarizer != nil {
			summary, err = b.summarizer.SummarizeThread(ctx, threadMessages(history))
			if err != nil {
				logger.Warn("thread summary failed, creating card without it", zap.Error(err))
				summary = ""
			}
		}
		children = ai.PageContent(summary, threadAttachments(history))
	}

	first, rest := children, []notion.Block(nil)
	if len(children) > maxCreateBlocks {
		first, rest = children[:maxCreateBlocks], children[maxCreateBlocks:]
	}

	page, err := b.notion.InsertIntoDatabase(ctx, cfg.NotionURL, props, first)
	if err != nil {
		return nil, fmt.Errorf("insert card: %w", err)
	}
	if len(rest) > 0 {
		if err := b.notion.AppendBlocks(ctx, page.ID, rest); err != nil {
			logger.Warn("failed to append remaining card content", zap.String("page_id", page.ID), zap.Error(err))
		}
	}
	return page, nil
}

// threadHistory returns up to threadHistoryLimit messages, oldest first.
func (b *Bot) threadHistory(threadID string) []*discordgo.Message {
	msgs, err := b.discord.ChannelMessages(threadID, threadHistoryLimit, "", "", "")
	if err != nil {
		b.logger.Warn("failed to read thread history", zap.String("thread_id", threadID), zap.Error(err))
		return nil
	}
	for l, r := 0, len(msgs)-1; l < r; l, r = l+1, r-1 {
		msgs[l], msgs[r] = msgs[r], msgs[l]
	}
	return msgs
}

// participants are the distinct human authors of a thread.
func participants(history []*discordgo.Message) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range history {
		if m.Author == nil || m.Author.Bot || seen[m.Author.ID] {
			continue
		}
		seen[m.Author.ID] = true
		names = append(names, userDisplayName(m.Author))
	}
	return names
}

func threadMessages(history []*discordgo.Message) []ai.ThreadMessage {
	out := make([]ai.ThreadMessage, 0, len(history))
	for _, m := range history {
		if m.Author == nil || m.Author.Bot {
			continue
		}
		out = append(out, ai.ThreadMessage{Author: userDisplayName(m.Author), Content: m.Content})
	}
	return out
}

func threadAttachments(history []*discordgo.Message) []ai.Attachment {
	var out []ai.Attachment
	for _, m := range history {
		for _, a := range m.Attachments {
			out = append(out, ai.Attachment{Filename: a.Filename, URL: a.URL, ContentType: a.ContentType})
		}
	}
	return out
}

// addPeople merges ids into a people property without duplicates.
func addPeople(props map[string]notion.PropertyValue, name string, ids []string) {
	if len(ids) == 0 {
		return
	}
	var merged []string
	seen := make(map[string]bool)
	for _, p := range props[name].People {
		if !seen[p.ID] {
			seen[p.ID] = true
			merged = append(merged, p.ID)
		}
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	props[name] = notion.PeopleValue(merged)
}

func threadURL(guildID, threadID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s", guildID, threadID)
}

// longTextProperty picks a paragraph input for description-like names.
func longTextProperty(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"desc", "detail", "summary", "notes"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// valueOptions lists option names valued by index.
func valueOptions(names []string) []option {
	opts := make([]option, 0, len(names))
	for idx, name := range names {
		opts = append(opts, option{Label: name, Value: strconv.Itoa(idx)})
	}
	return opts
}

func pickValues(names []string, values []string) []string {
	var out []string
	for _, v := range values {
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 || idx >= len(names) {
			continue
		}
		out = append(out, names[idx])
	}
	return out
}
