package bot

import (
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// Discord component limits.
const (
	maxSelectOptions = 25
	maxOptionText    = 100
	maxButtonsPerRow = 5
	maxModalLabel    = 45
	maxModalTitle    = 45
)

// message is the visible part of a flow step.
type message struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

func text(content string) message {
	return message{Content: content}
}

func (m message) data(ephemeral bool) *discordgo.InteractionResponseData {
	d := &discordgo.InteractionResponseData{
		Content:    m.Content,
		Embeds:     m.Embeds,
		Components: m.Components,
	}
	if d.Components == nil {
		d.Components = []discordgo.MessageComponent{}
	}
	if d.Embeds == nil {
		d.Embeds = []*discordgo.MessageEmbed{}
	}
	if ephemeral {
		d.Flags = discordgo.MessageFlagsEphemeral
	}
	return d
}

// reply answers a command with a new ephemeral message.
func (b *Bot) reply(i *discordgo.Interaction, m message) error {
	return b.discord.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: m.data(true),
	})
}

// notice sends a short ephemeral message without touching the flow's message.
func (b *Bot) notice(i *discordgo.Interaction, content string) error {
	return b.reply(i, text(content))
}

// deferReply acknowledges a command whose answer needs a Notion round trip.
func (b *Bot) deferReply(i *discordgo.Interaction) error {
	return b.discord.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// update replaces the flow's message in response to a component or modal.
func (b *Bot) update(i *discordgo.Interaction, m message) error {
	return b.discord.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: m.data(false),
	})
}

// deferUpdate acknowledges a component whose result needs a Notion round trip.
func (b *Bot) deferUpdate(i *discordgo.Interaction) error {
	return b.discord.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// edit replaces the message after deferReply or deferUpdate.
func (b *Bot) edit(i *discordgo.Interaction, m message) error {
	components := m.Components
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	embeds := m.Embeds
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	_, err := b.discord.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content:    &m.Content,
		Components: &components,
		Embeds:     &embeds,
	})
	return err
}

// openModal asks for one line or paragraph of text.
func (b *Bot) openModal(i *discordgo.Interaction, customID, title, label, value string, paragraph bool) error {
	style := discordgo.TextInputShort
	maxLength := 400
	if paragraph {
		style = discordgo.TextInputParagraph
		maxLength = 2000
	}
	return b.discord.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID,
			Title:    truncateText(title, maxModalTitle),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "value",
						Label:     truncateText(label, maxModalLabel),
						Style:     style,
						Value:     truncateText(value, maxLength),
						Required:  false,
						MaxLength: maxLength,
					},
				}},
			},
		},
	})
}

// modalValue returns the first text input of a submitted modal.
func modalValue(data discordgo.ModalSubmitInteractionData) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok {
				return in.Value
			}
		}
	}
	return ""
}

type option struct {
	Label       string
	Value       string
	Description string
	Default     bool
}

// selectMenu builds a string select. Options beyond Discord's limit are
// dropped; maxValues is clamped to the number of options.
func selectMenu(customID, placeholder string, options []option, minValues, maxValues int) discordgo.ActionsRow {
	if len(options) > maxSelectOptions {
		options = options[:maxSelectOptions]
	}
	if maxValues > len(options) {
		maxValues = len(options)
	}
	if maxValues < 1 {
		maxValues = 1
	}
	if minValues > maxValues {
		minValues = maxValues
	}

	opts := make([]discordgo.SelectMenuOption, 0, len(options))
	for _, o := range options {
		opts = append(opts, discordgo.SelectMenuOption{
			Label:       truncateText(o.Label, maxOptionText),
			Value:       truncateText(o.Value, maxOptionText),
			Description: truncateText(o.Description, maxOptionText),
			Default:     o.Default,
		})
	}

	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    customID,
			Placeholder: truncateText(placeholder, maxOptionText),
			MinValues:   &minValues,
			MaxValues:   maxValues,
			Options:     opts,
		},
	}}
}

func button(label string, style discordgo.ButtonStyle, customID string) discordgo.Button {
	return discordgo.Button{Label: label, Style: style, CustomID: customID}
}

func disabled(btn discordgo.Button, off bool) discordgo.Button {
	btn.Disabled = off
	return btn
}

// buttonRows lays buttons out in rows of five.
func buttonRows(buttons ...discordgo.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(buttons))
		row := discordgo.ActionsRow{}
		for _, btn := range buttons[start:end] {
			row.Components = append(row.Components, btn)
		}
		rows = append(rows, row)
	}
	return rows
}

// truncateText cuts s to max runes.
func truncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
