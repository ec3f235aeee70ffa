package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/metrics"
	"github.com/lalithlochan/cardbot/internal/rules"
)

// flowRuleWizard labels rule wizard outcomes in metrics. The wizard runs
// inside a notifications session and does not own one.
const flowRuleWizard = "rule_wizard"

var actionLabels = map[string]string{
	db.ActionSendToTopic:   "Post in the card's Discord thread",
	db.ActionSendToChannel: "Post in this channel",
	db.ActionDMResponsible: "DM the card's responsible person",
}

type notificationsState struct {
	URL    string
	Rules  []db.NotificationRule
	Wizard *rules.Wizard
	Page   int // page of the delete menu
	newID  func() string
}

// startNotifications handles /notifications: the rule list with add and
// delete. The list is always read from storage, never from memory.
func (b *Bot) startNotifications(ctx context.Context, i *discordgo.Interaction) error {
	if !isAdmin(i) {
		return b.notice(i, adminRequired)
	}

	channelID, _ := b.configChannel(i)
	cfg, err := b.loadConfig(ctx, i.GuildID, channelID)
	if err != nil {
		return b.notice(i, notConfiguredMessage)
	}

	st := &notificationsState{URL: cfg.NotionURL, Rules: cfg.NotificationRules, newID: uuid.NewString}
	s := b.sessions.Start(flowNotifications, i, channelID, st)
	return b.reply(i, b.renderRulePanel(s, st, ""))
}

func (b *Bot) renderRulePanel(s *Session, st *notificationsState, note string) message {
	var sb strings.Builder
	if note != "" {
		sb.WriteString(note + "\n")
	}
	sb.WriteString("🔔 **Notification rules**\n")
	if len(st.Rules) == 0 {
		sb.WriteString("No rules yet. Add one to get notified when a card changes.")
	}
	for n, rule := range st.Rules {
		fmt.Fprintf(&sb, "%d. When **%s** is **%s**: %s", n+1, rule.TriggerPropertyName, rule.TriggerValueName, actionLabel(rule.ActionType))
		if rule.ResponsiblePersonProp != "" {
			fmt.Fprintf(&sb, " (%s)", rule.ResponsiblePersonProp)
		}
		fmt.Fprintf(&sb, "\n> %s\n", truncateText(rule.MessageTemplate, 200))
	}

	pages := (len(st.Rules) + maxSelectOptions - 1) / maxSelectOptions
	if st.Page >= pages {
		st.Page = max(pages-1, 0)
	}

	var rows []discordgo.MessageComponent
	if len(st.Rules) > 0 {
		from := st.Page * maxSelectOptions
		to := min(from+maxSelectOptions, len(st.Rules))
		opts := make([]option, 0, to-from)
		for n := from; n < to; n++ {
			rule := st.Rules[n]
			opts = append(opts, option{
				Label:       fmt.Sprintf("%d. %s = %s", n+1, rule.TriggerPropertyName, rule.TriggerValueName),
				Value:       rule.RuleID,
				Description: actionLabel(rule.ActionType),
			})
		}
		placeholder := "Delete a rule"
		if pages > 1 {
			placeholder = fmt.Sprintf("Delete a rule (%d-%d of %d)", from+1, to, len(st.Rules))
		}
		rows = append(rows, selectMenu(s.control("delete"), placeholder, opts, 1, 1))
	}

	var buttons []discordgo.Button
	if pages > 1 {
		buttons = append(buttons,
			disabled(button("◀ Previous rules", discordgo.SecondaryButton, s.control("rprev")), st.Page == 0),
			disabled(button("More rules ▶", discordgo.SecondaryButton, s.control("rnext")), st.Page >= pages-1),
		)
	}
	buttons = append(buttons,
		button("➕ Add rule", discordgo.SuccessButton, s.control("add")),
		button("Close", discordgo.SecondaryButton, s.control("close")),
	)
	rows = append(rows, buttonRows(buttons...)...)

	return message{Content: truncateText(sb.String(), 2000), Components: rows}
}

func (b *Bot) renderWizard(s *Session, w rules.Wizard) message {
	var sb strings.Builder
	sb.WriteString("🔔 **New notification rule**\n")
	if w.Draft.TriggerPropertyName != "" {
		fmt.Fprintf(&sb, "Property: **%s**\n", w.Draft.TriggerPropertyName)
	}
	if w.Draft.TriggerValueName != "" {
		fmt.Fprintf(&sb, "Value: **%s**\n", w.Draft.TriggerValueName)
	}
	if w.Draft.ActionType != "" {
		fmt.Fprintf(&sb, "Action: %s\n", actionLabel(w.Draft.ActionType))
	}
	if w.Draft.ResponsiblePersonProp != "" {
		fmt.Fprintf(&sb, "Responsible person: **%s**\n", w.Draft.ResponsiblePersonProp)
	}

	cancel := button("Cancel", discordgo.SecondaryButton, s.control("wcancel"))
	var rows []discordgo.MessageComponent

	switch w.State {
	case rules.StateSelectTriggerProperty:
		sb.WriteString("Which property should trigger the notification?")
		rows = append(rows, selectMenu(s.control("wprop"), "Trigger property", propertyOptions(w.Properties(), nil), 1, 1))
		rows = append(rows, buttonRows(cancel)...)
	case rules.StateSelectTriggerValue:
		sb.WriteString("Which value should trigger it?")
		rows = append(rows, selectMenu(s.control("wvalue"), "Trigger value", valueOptions(w.ValueOptions()), 1, 1))
		rows = append(rows, buttonRows(cancel)...)
	case rules.StateInputTriggerValue:
		sb.WriteString("Enter the value that should trigger it.")
		rows = buttonRows(button("✏️ Enter value", discordgo.PrimaryButton, s.control("wvalueopen")), cancel)
	case rules.StateSelectActionType:
		sb.WriteString("What should happen?")
		opts := make([]option, 0, len(rules.Actions()))
		for _, action := range rules.Actions() {
			opts = append(opts, option{Label: actionLabel(action), Value: action})
		}
		rows = append(rows, selectMenu(s.control("waction"), "Action", opts, 1, 1))
		rows = append(rows, buttonRows(cancel)...)
	case rules.StateSelectResponsibleProperty:
		sb.WriteString("Which people property holds the person to message?")
		rows = append(rows, selectMenu(s.control("wperson"), "Responsible person", propertyOptions(w.PeopleProperties(), nil), 1, 1))
		rows = append(rows, buttonRows(cancel)...)
	case rules.StateDefineMessage:
		fmt.Fprintf(&sb, "Write the message. {%s} and {%s} are replaced when it is sent.", rules.TokenCardTitle, rules.TokenTriggerValue)
		rows = buttonRows(button("✏️ Write message", discordgo.PrimaryButton, s.control("wmsgopen")), cancel)
	}

	return message{Content: sb.String(), Components: rows}
}

func (b *Bot) notificationsStep(ctx context.Context, i *discordgo.Interaction, s *Session, action string, in input) error {
	st := s.State.(*notificationsState)

	switch action {
	case "add":
		if err := b.deferUpdate(i); err != nil {
			return err
		}
		schema, err := b.notion.GetPropertiesForInteraction(ctx, st.URL)
		if err != nil {
			return fmt.Errorf("read database schema: %w", err)
		}
		w := rules.NewWizard(schema)
		st.Wizard = &w
		return b.edit(i, b.renderWizard(s, w))

	case "delete":
		ruleID := in.Value()
		if !hasRule(st.Rules, ruleID) {
			return b.notice(i, "That rule no longer exists.")
		}
		cfg, err := rules.DeleteRule(ctx, b.store, s.GuildID, s.ChannelID, ruleID)
		if err != nil {
			return err
		}
		st.Rules = cfg.NotificationRules
		b.logger.Info("notification rule deleted",
			zap.String("guild_id", s.GuildID),
			zap.String("channel_id", s.ChannelID),
			zap.String("rule_id", ruleID),
		)
		return b.update(i, b.renderRulePanel(s, st, "🗑️ Rule deleted."))

	case "rprev", "rnext":
		if action == "rprev" && st.Page > 0 {
			st.Page--
		} else if action == "rnext" {
			st.Page++
		}
		return b.update(i, b.renderRulePanel(s, st, ""))

	case "close":
		b.sessions.Finish(s, outcomeCompleted)
		return b.update(i, text("Notification settings closed."))
	}

	if !strings.HasPrefix(action, "w") {
		return b.notice(i, "This control is no longer valid.")
	}
	if st.Wizard == nil {
		return b.notice(i, "This control is no longer valid.")
	}
	return b.wizardStep(ctx, i, s, st, action, in)
}

// wizardStep feeds one input into the rule wizard and acts on its effect.
func (b *Bot) wizardStep(ctx context.Context, i *discordgo.Interaction, s *Session, st *notificationsState, action string, in input) error {
	w := *st.Wizard

	var (
		next rules.Wizard
		eff  rules.Effect
		err  error
	)
	switch action {
	case "wprop":
		prop, ok := pickProperty(w.Properties(), in.Value())
		if !ok {
			return b.notice(i, "Choose a property from the list.")
		}
		next, eff, err = w.SelectProperty(prop.Name)
	case "wvalue":
		chosen := pickValues(w.ValueOptions(), in.Values)
		if len(chosen) == 0 {
			return b.notice(i, "Choose a value from the list.")
		}
		next, eff, err = w.SubmitValue(chosen[0])
	case "wvalueopen":
		return b.openModal(i, s.control("wvaluetext"), "Notification rule", "Value of "+w.Draft.TriggerPropertyName, "", false)
	case "wvaluetext":
		next, eff, err = w.SubmitValue(in.Text)
	case "waction":
		next, eff, err = w.SelectAction(in.Value())
	case "wperson":
		prop, ok := pickProperty(w.PeopleProperties(), in.Value())
		if !ok {
			return b.notice(i, "Choose a property from the list.")
		}
		next, eff, err = w.SelectResponsibleProperty(prop.Name)
	case "wmsgopen":
		return b.openModal(i, s.control("wmsgtext"), "Notification message", "Message", rules.DefaultTemplate, true)
	case "wmsgtext":
		next, eff, err = w.SubmitMessage(in.Text, st.newID)
	case "wcancel":
		next, eff = w.Cancel()
	default:
		return b.notice(i, "This control is no longer valid.")
	}
	if err != nil {
		return b.notice(i, "❌ "+wizardInputError(err))
	}

	switch eff.Kind {
	case rules.EffectRender:
		st.Wizard = &next
		return b.update(i, b.renderWizard(s, next))

	case rules.EffectPersist:
		st.Wizard = nil
		note := "✅ Rule added."
		if _, err := rules.AppendRule(ctx, b.store, s.GuildID, s.ChannelID, *eff.Rule); err != nil {
			b.logger.Error("failed to save notification rule", zap.String("session_id", s.ID), zap.Error(err))
			metrics.RecordWizardSession(flowRuleWizard, outcomeFailed)
			note = "❌ The rule could not be saved. Please try again."
		} else {
			metrics.RecordWizardSession(flowRuleWizard, outcomeCompleted)
			b.logger.Info("notification rule added",
				zap.String("guild_id", s.GuildID),
				zap.String("channel_id", s.ChannelID),
				zap.String("rule_id", eff.Rule.RuleID),
				zap.String("action_type", eff.Rule.ActionType),
			)
		}
		return b.showRules(ctx, i, s, st, note)

	default:
		st.Wizard = nil
		note := "Rule creation cancelled."
		outcome := outcomeCancelled
		if eff.Err != nil && !errors.Is(eff.Err, rules.ErrCancelled) {
			note = "❌ " + wizardInputError(eff.Err)
			outcome = outcomeFailed
		}
		metrics.RecordWizardSession(flowRuleWizard, outcome)
		return b.showRules(ctx, i, s, st, note)
	}
}

// showRules reloads the rule list from storage and shows the panel.
func (b *Bot) showRules(ctx context.Context, i *discordgo.Interaction, s *Session, st *notificationsState, note string) error {
	cfg, err := b.store.LoadChannelConfig(ctx, s.GuildID, s.ChannelID)
	if err != nil {
		b.logger.Warn("failed to reload notification rules", zap.Error(err))
	} else {
		st.Rules = cfg.NotificationRules
	}
	return b.update(i, b.renderRulePanel(s, st, note))
}

func wizardInputError(err error) string {
	switch {
	case errors.Is(err, rules.ErrNoOptions):
		return "That property has no options configured in Notion."
	case errors.Is(err, rules.ErrNoPeopleProperty):
		return "The database has no people property to send DMs to."
	case errors.Is(err, rules.ErrEmptyValue):
		return "The trigger value must not be empty."
	case errors.Is(err, rules.ErrUnknownProperty), errors.Is(err, rules.ErrUnknownValue), errors.Is(err, rules.ErrUnknownAction):
		return "Choose one of the listed options."
	case errors.Is(err, rules.ErrInvalidTransition):
		return "That input does not belong to this step."
	}
	return err.Error()
}

func actionLabel(action string) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	return action
}

func hasRule(list []db.NotificationRule, id string) bool {
	for _, r := range list {
		if r.RuleID == id {
			return true
		}
	}
	return false
}

