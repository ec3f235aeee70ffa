package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/dispatch"
	"github.com/lalithlochan/cardbot/internal/notion"
)

// searchableTypes are the property types SearchInDatabase can filter on.
var searchableTypes = []string{
	notion.TypeTitle, notion.TypeRichText, notion.TypeURL, notion.TypeEmail, notion.TypePhoneNumber,
	notion.TypeStatus, notion.TypeSelect, notion.TypeMultiSelect, notion.TypePeople,
	notion.TypeNumber, notion.TypeCheckbox, notion.TypeDate,
}

type searchState struct {
	Config  *db.ChannelConfig
	Schema  []notion.PropertySchema
	Choices []notion.PropertySchema
	Prop    notion.PropertySchema
	Term    string
	Results []notion.Page
	Index   int
	Editing notion.PropertySchema
}

// startSearch handles /search: pick a property, give a value, then page
// through the matching cards one at a time.
func (b *Bot) startSearch(ctx context.Context, i *discordgo.Interaction) error {
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

	choices := searchChoices(schema, cfg.DisplayProperties)
	if len(choices) == 0 {
		return b.edit(i, text("❌ None of this database's properties can be searched."))
	}

	st := &searchState{Config: cfg, Schema: schema, Choices: choices}
	s := b.sessions.Start(flowSearch, i, channelID, st)
	return b.edit(i, message{
		Content: "🔍 Which property do you want to search on?",
		Components: append([]discordgo.MessageComponent{
			selectMenu(s.control("prop"), "Property", propertyOptions(choices, nil), 1, 1),
		}, buttonRows(button("Cancel", discordgo.SecondaryButton, s.control("close")))...),
	})
}

// searchChoices prefers the display properties; without any, every
// searchable property is offered.
func searchChoices(schema []notion.PropertySchema, display []string) []notion.PropertySchema {
	searchable := notion.PropertiesOfType(schema, searchableTypes...)
	if len(display) == 0 {
		return searchable
	}
	var out []notion.PropertySchema
	for _, prop := range searchable {
		if containsString(display, prop.Name) {
			out = append(out, prop)
		}
	}
	if len(out) == 0 {
		return searchable
	}
	return out
}

func (b *Bot) searchStep(ctx context.Context, i *discordgo.Interaction, s *Session, action string, in input) error {
	st := s.State.(*searchState)

	switch action {
	case "prop":
		prop, ok := pickProperty(st.Choices, in.Value())
		if !ok {
			return b.notice(i, "Choose a property from the list.")
		}
		st.Prop = prop
		return b.update(i, b.renderSearchValue(s, st))

	case "open":
		return b.openModal(i, s.control("term"), "Search", st.Prop.Name, "", false)

	case "value":
		chosen := pickValues(st.Prop.Options, in.Values)
		if len(chosen) == 0 {
			return b.notice(i, "Choose a value from the list.")
		}
		return b.runSearch(ctx, i, s, st, chosen[0])

	case "term":
		term := strings.TrimSpace(in.Text)
		if term == "" {
			return b.notice(i, "Enter something to search for.")
		}
		return b.runSearch(ctx, i, s, st, term)

	case "prev":
		if st.Index > 0 {
			st.Index--
		}
		return b.update(i, b.renderResult(s, st, ""))

	case "next":
		if st.Index < len(st.Results)-1 {
			st.Index++
		}
		return b.update(i, b.renderResult(s, st, ""))

	case "back":
		return b.update(i, b.renderResult(s, st, ""))

	case "share":
		if !st.Config.ActionButtons() || len(st.Results) == 0 {
			return b.notice(i, "This control is no longer valid.")
		}
		embed := b.resultEmbed(st)
		embed.Footer = nil
		if _, err := b.discord.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
			Content: fmt.Sprintf("🔗 <@%s> shared a card.", s.UserID),
			Embeds:  []*discordgo.MessageEmbed{embed},
		}); err != nil {
			return fmt.Errorf("share card: %w", err)
		}
		return b.update(i, b.renderResult(s, st, "🔗 Card shared in the channel."))

	case "delete":
		if !st.Config.ActionButtons() || len(st.Results) == 0 {
			return b.notice(i, "This control is no longer valid.")
		}
		page := st.Results[st.Index]
		return b.update(i, message{
			Content: fmt.Sprintf("🗑️ Delete **%s**? The page is archived in Notion.", cardTitle(&page)),
			Components: buttonRows(
				button("Delete", discordgo.DangerButton, s.control("confirmdelete")),
				button("Back", discordgo.SecondaryButton, s.control("back")),
			),
		})

	case "confirmdelete":
		if len(st.Results) == 0 {
			return b.notice(i, "This control is no longer valid.")
		}
		if err := b.deferUpdate(i); err != nil {
			return err
		}
		page := st.Results[st.Index]
		if err := b.notion.DeletePage(ctx, page.ID); err != nil {
			return fmt.Errorf("delete card: %w", err)
		}
		b.logger.Info("card deleted", zap.String("page_id", page.ID), zap.String("user_id", s.UserID))

		st.Results = append(st.Results[:st.Index], st.Results[st.Index+1:]...)
		if len(st.Results) == 0 {
			b.sessions.Finish(s, outcomeCompleted)
			return b.edit(i, text("🗑️ Card deleted. No results left."))
		}
		if st.Index >= len(st.Results) {
			st.Index = len(st.Results) - 1
		}
		return b.edit(i, b.renderResult(s, st, "🗑️ Card deleted."))

	case "edit":
		if !st.Config.ActionButtons() || len(st.Results) == 0 {
			return b.notice(i, "This control is no longer valid.")
		}
		return b.update(i, message{
			Content: "✏️ Which property do you want to change?",
			Components: append([]discordgo.MessageComponent{
				selectMenu(s.control("eprop"), "Property", propertyOptions(st.Schema, nil), 1, 1),
			}, buttonRows(button("Back", discordgo.SecondaryButton, s.control("back")))...),
		})

	case "eprop":
		prop, ok := pickProperty(st.Schema, in.Value())
		if !ok {
			return b.notice(i, "Choose a property from the list.")
		}
		st.Editing = prop
		return b.update(i, b.renderEditValue(s, st))

	case "eopen":
		if len(st.Results) == 0 {
			return b.notice(i, "This control is no longer valid.")
		}
		page := st.Results[st.Index]
		current := page.Properties[st.Editing.Name].Display()
		return b.openModal(i, s.control("etext"), "Edit card", st.Editing.Name, current, longTextProperty(st.Editing.Name))

	case "evalue":
		chosen := pickValues(st.Editing.Options, in.Values)
		if len(chosen) == 0 {
			return b.notice(i, "Choose a value from the list.")
		}
		return b.applyEdit(ctx, i, s, st, strings.Join(chosen, ", "))

	case "etext":
		value := strings.TrimSpace(in.Text)
		if value == "" {
			return b.notice(i, "Enter a value.")
		}
		return b.applyEdit(ctx, i, s, st, value)

	case "close":
		b.sessions.Finish(s, outcomeCompleted)
		return b.update(i, text("Search closed."))
	}
	return b.notice(i, "This control is no longer valid.")
}

func (b *Bot) renderSearchValue(s *Session, st *searchState) message {
	cancel := buttonRows(button("Cancel", discordgo.SecondaryButton, s.control("close")))
	if st.Prop.Enumerated() && len(st.Prop.Options) > 0 {
		return message{
			Content: fmt.Sprintf("🔍 Which **%s** are you looking for?", st.Prop.Name),
			Components: append([]discordgo.MessageComponent{
				selectMenu(s.control("value"), "Value", valueOptions(st.Prop.Options), 1, 1),
			}, cancel...),
		}
	}
	return message{
		Content: fmt.Sprintf("🔍 Search on **%s** (%s).", st.Prop.Name, st.Prop.Type),
		Components: buttonRows(
			button("✏️ Enter search", discordgo.PrimaryButton, s.control("open")),
			button("Cancel", discordgo.SecondaryButton, s.control("close")),
		),
	}
}

func (b *Bot) runSearch(ctx context.Context, i *discordgo.Interaction, s *Session, st *searchState, term string) error {
	if err := b.deferUpdate(i); err != nil {
		return err
	}

	results, err := b.notion.SearchInDatabase(ctx, st.Config.NotionURL, term, st.Prop.Name, st.Prop.Type)
	if err != nil {
		b.sessions.Finish(s, outcomeFailed)
		return fmt.Errorf("search cards: %w", err)
	}

	st.Term = term
	st.Results = results
	st.Index = 0
	if len(results) == 0 {
		b.sessions.Finish(s, outcomeCompleted)
		return b.edit(i, text(fmt.Sprintf("🔍 No cards found where **%s** matches \"%s\".", st.Prop.Name, term)))
	}
	return b.edit(i, b.renderResult(s, st, ""))
}

func (b *Bot) resultEmbed(st *searchState) *discordgo.MessageEmbed {
	page := st.Results[st.Index]
	embed := dispatch.CardEmbed(notion.FormatPageForEmbed(&page, true, st.Config.DisplayProperties))
	embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Result %d of %d", st.Index+1, len(st.Results))}
	return embed
}

func (b *Bot) renderResult(s *Session, st *searchState, note string) message {
	content := fmt.Sprintf("🔍 **%d** card(s) where **%s** matches \"%s\".", len(st.Results), st.Prop.Name, st.Term)
	if note != "" {
		content = note + "\n" + content
	}

	buttons := []discordgo.Button{
		disabled(button("◀ Prev", discordgo.SecondaryButton, s.control("prev")), st.Index == 0),
		disabled(button("Next ▶", discordgo.SecondaryButton, s.control("next")), st.Index >= len(st.Results)-1),
	}
	if st.Config.ActionButtons() {
		buttons = append(buttons,
			button("✏️ Edit", discordgo.PrimaryButton, s.control("edit")),
			button("🗑️ Delete", discordgo.DangerButton, s.control("delete")),
			button("🔗 Share", discordgo.SuccessButton, s.control("share")),
		)
	}
	buttons = append(buttons, button("Close", discordgo.SecondaryButton, s.control("close")))

	return message{
		Content:    content,
		Embeds:     []*discordgo.MessageEmbed{b.resultEmbed(st)},
		Components: buttonRows(buttons...),
	}
}

func (b *Bot) renderEditValue(s *Session, st *searchState) message {
	back := buttonRows(button("Back", discordgo.SecondaryButton, s.control("back")))
	prop := st.Editing
	if prop.Enumerated() && len(prop.Options) > 0 {
		maxValues := 1
		if prop.Type == notion.TypeMultiSelect {
			maxValues = len(prop.Options)
		}
		return message{
			Content: fmt.Sprintf("✏️ New value for **%s**:", prop.Name),
			Components: append([]discordgo.MessageComponent{
				selectMenu(s.control("evalue"), prop.Name, valueOptions(prop.Options), 1, maxValues),
			}, back...),
		}
	}
	return message{
		Content: fmt.Sprintf("✏️ New value for **%s** (%s):", prop.Name, prop.Type),
		Components: buttonRows(
			button("✏️ Fill in", discordgo.PrimaryButton, s.control("eopen")),
			button("Back", discordgo.SecondaryButton, s.control("back")),
		),
	}
}

// applyEdit writes one property of the current result and shows the
// updated card.
func (b *Bot) applyEdit(ctx context.Context, i *discordgo.Interaction, s *Session, st *searchState, value string) error {
	if len(st.Results) == 0 {
		return b.notice(i, "This control is no longer valid.")
	}
	if err := b.deferUpdate(i); err != nil {
		return err
	}

	prop := st.Editing
	title := ""
	if prop.Type == notion.TypeTitle {
		title = value
	}
	props, err := b.notion.BuildPageProperties(ctx, []notion.PropertySchema{prop}, title, map[string]string{prop.Name: value})
	if err != nil {
		return fmt.Errorf("build page properties: %w", err)
	}
	if len(props) == 0 {
		return b.edit(i, b.renderResult(s, st, fmt.Sprintf("❌ \"%s\" is not a valid value for %s.", value, prop.Name)))
	}

	page := st.Results[st.Index]
	updated, err := b.notion.UpdatePage(ctx, page.ID, props)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	st.Results[st.Index] = *updated
	b.logger.Info("card updated",
		zap.String("page_id", page.ID),
		zap.String("property", prop.Name),
		zap.String("user_id", s.UserID),
	)
	return b.edit(i, b.renderResult(s, st, "✅ Card updated."))
}

func cardTitle(page *notion.Page) string {
	if t := page.Title(); t != "" {
		return t
	}
	return notion.UntitledCard
}
