package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/dispatch"
	"github.com/lalithlochan/cardbot/internal/notion"
)

// Evaluation results, also used as metric labels.
const (
	ResultNoConfig = "no_config"
	ResultNoRules  = "no_rules"
	ResultNoMatch  = "no_match"
	ResultMatched  = "matched"
)

var ErrMissingDatabaseID = errors.New("page event has no database id")

// threadIDPattern takes the trailing numeric segment of a Discord link.
var threadIDPattern = regexp.MustCompile(`/(\d+)/?$`)

// Outcome describes what Process did with one event.
type Outcome struct {
	Result     string
	GuildID    string
	ChannelID  string
	RuleID     string
	ActionType string
	Dispatched int
	Failed     int
}

// Evaluator matches page events against stored rules.
type Evaluator struct {
	store      db.Store
	dispatcher dispatch.Dispatcher
	members    dispatch.MemberResolver
	logger     *zap.Logger
}

func NewEvaluator(store db.Store, dispatcher dispatch.Dispatcher, members dispatch.MemberResolver, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		store:      store,
		dispatcher: dispatcher,
		members:    members,
		logger:     logger,
	}
}

// Process finds the channel owning the event's database and fires the
// first matching rule. At most one rule fires per event. Dispatch failures
// are logged and counted in the outcome, never returned.
func (e *Evaluator) Process(ctx context.Context, ev notion.PageEvent) (Outcome, error) {
	if ev.DatabaseID == "" {
		return Outcome{}, ErrMissingDatabaseID
	}

	configs, err := e.store.ListChannelConfigs(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("list channel configs: %w", err)
	}

	cfg := FindConfigForDatabase(configs, ev.DatabaseID)
	if cfg == nil {
		e.logger.Debug("no channel configured for database",
			zap.String("database_id", ev.DatabaseID),
			zap.String("page_id", ev.PageID),
		)
		return Outcome{Result: ResultNoConfig}, nil
	}

	out := Outcome{Result: ResultNoRules, GuildID: cfg.GuildID, ChannelID: cfg.ChannelID}
	if len(cfg.NotificationRules) == 0 {
		return out, nil
	}

	rule, value, ok := MatchRule(cfg.NotificationRules, ev.Properties)
	if !ok {
		out.Result = ResultNoMatch
		return out, nil
	}

	out.Result = ResultMatched
	out.RuleID = rule.RuleID
	out.ActionType = rule.ActionType

	text := Substitute(rule.MessageTemplate, map[string]string{
		TokenCardTitle:    ev.Title(),
		TokenTriggerValue: value,
	})

	logger := e.logger.With(
		zap.String("rule_id", rule.RuleID),
		zap.String("action_type", rule.ActionType),
		zap.String("guild_id", cfg.GuildID),
		zap.String("channel_id", cfg.ChannelID),
		zap.String("page_id", ev.PageID),
	)
	logger.Info("notification rule matched")

	e.dispatch(ctx, logger, cfg, rule, ev, text, &out)
	return out, nil
}

// FindConfigForDatabase scans every config for one linked to databaseID.
func FindConfigForDatabase(configs []*db.ChannelConfig, databaseID string) *db.ChannelConfig {
	want := notion.NormalizeID(databaseID)
	for _, cfg := range configs {
		if !cfg.Configured() {
			continue
		}
		id, err := notion.ExtractDatabaseID(cfg.NotionURL)
		if err != nil {
			continue
		}
		if id == want {
			return cfg
		}
	}
	return nil
}

// MatchRule returns the first rule whose trigger property currently shows
// its trigger value, compared case-insensitively. Rules naming a property
// absent from props are skipped.
func MatchRule(rules []db.NotificationRule, props map[string]notion.PropertyValue) (db.NotificationRule, string, bool) {
	for _, rule := range rules {
		prop, ok := props[rule.TriggerPropertyName]
		if !ok {
			continue
		}
		value := prop.Display()
		if strings.EqualFold(value, rule.TriggerValueName) {
			return rule, value, true
		}
	}
	return db.NotificationRule{}, "", false
}

// ThreadIDFromURL extracts the thread id from a Discord thread link.
func ThreadIDFromURL(link string) (string, bool) {
	m := threadIDPattern.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (e *Evaluator) dispatch(ctx context.Context, logger *zap.Logger, cfg *db.ChannelConfig, rule db.NotificationRule, ev notion.PageEvent, text string, out *Outcome) {
	record := func(err error) {
		if err != nil {
			out.Failed++
			logger.Error("notification dispatch failed", zap.Error(err))
			return
		}
		out.Dispatched++
	}

	switch rule.ActionType {
	case db.ActionSendToTopic:
		if cfg.TopicLinkPropertyName == "" {
			logger.Warn("topic link property not configured; skipping")
			return
		}
		link := ev.Properties[cfg.TopicLinkPropertyName].Display()
		threadID, ok := ThreadIDFromURL(link)
		if !ok {
			logger.Warn("card has no resolvable topic link", zap.String("link", link))
			return
		}
		card := notion.FormatPageForEmbed(ev.Page(), false, cfg.DisplayProperties)
		record(e.dispatcher.SendToThread(ctx, threadID, text, &card))

	case db.ActionSendToChannel:
		record(e.dispatcher.SendToChannel(ctx, cfg.ChannelID, text))

	case db.ActionDMResponsible:
		names := ev.Properties[rule.ResponsiblePersonProp].PersonNames()
		if len(names) == 0 {
			logger.Warn("responsible person property is empty",
				zap.String("property", rule.ResponsiblePersonProp),
			)
			return
		}
		for _, name := range names {
			userID, err := e.members.ResolveMember(ctx, cfg.GuildID, name)
			if err != nil {
				record(fmt.Errorf("resolve member %q: %w", name, err))
				continue
			}
			record(e.dispatcher.SendDirectMessage(ctx, userID, text))
		}

	default:
		logger.Warn("unknown action type; skipping")
	}
}
