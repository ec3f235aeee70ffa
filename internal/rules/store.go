package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalithlochan/cardbot/internal/db"
)

var ErrDuplicateRuleID = errors.New("rule id already exists in this channel")

var errRuleNotFound = errors.New("rule not found")

// AppendRule adds rule to the end of the channel's rule list, reading the
// stored config fresh. The channel must already point at a database.
func AppendRule(ctx context.Context, store db.Store, guildID, channelID string, rule db.NotificationRule) (*db.ChannelConfig, error) {
	cfg, err := store.UpdateChannelConfig(ctx, guildID, channelID, func(cfg *db.ChannelConfig) error {
		if !cfg.Configured() {
			return db.ErrChannelNotConfigured
		}
		for _, existing := range cfg.NotificationRules {
			if existing.RuleID == rule.RuleID {
				return ErrDuplicateRuleID
			}
		}
		cfg.NotificationRules = append(cfg.NotificationRules, rule)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append rule: %w", err)
	}
	return cfg, nil
}

// DeleteRule removes the rule with ruleID, keeping the others in order.
// Deleting an unknown id succeeds without writing.
func DeleteRule(ctx context.Context, store db.Store, guildID, channelID, ruleID string) (*db.ChannelConfig, error) {
	cfg, err := store.UpdateChannelConfig(ctx, guildID, channelID, func(cfg *db.ChannelConfig) error {
		kept := make([]db.NotificationRule, 0, len(cfg.NotificationRules))
		for _, rule := range cfg.NotificationRules {
			if rule.RuleID != ruleID {
				kept = append(kept, rule)
			}
		}
		if len(kept) == len(cfg.NotificationRules) {
			return errRuleNotFound
		}
		cfg.NotificationRules = kept
		return nil
	})

	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, errRuleNotFound):
		cfg, err := store.LoadChannelConfig(ctx, guildID, channelID)
		if errors.Is(err, db.ErrChannelNotConfigured) {
			return &db.ChannelConfig{GuildID: guildID, ChannelID: channelID}, nil
		}
		return cfg, err
	default:
		return nil, fmt.Errorf("delete rule: %w", err)
	}
}
