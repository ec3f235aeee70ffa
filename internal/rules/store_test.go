package rules

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/lalithlochan/cardbot/internal/db"
)

func rule(id string) db.NotificationRule {
	return db.NotificationRule{
		RuleID:              id,
		TriggerPropertyName: "Status",
		TriggerValueName:    "Done " + id,
		ActionType:          db.ActionSendToChannel,
		MessageTemplate:     "{card_title} " + id,
	}
}

func TestAppendRule_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, channelConfig(rule("a")))

	if _, err := AppendRule(ctx, store, "g1", "c1", rule("b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	cfg, err := AppendRule(ctx, store, "g1", "c1", rule("c"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	want := []db.NotificationRule{rule("a"), rule("b"), rule("c")}
	if !reflect.DeepEqual(cfg.NotificationRules, want) {
		t.Fatalf("rules = %+v", cfg.NotificationRules)
	}

	loaded, err := store.LoadChannelConfig(ctx, "g1", "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded.NotificationRules, want) {
		t.Fatalf("persisted rules = %+v", loaded.NotificationRules)
	}
}

func TestAppendRule_RequiresLinkedDatabase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := AppendRule(ctx, store, "g1", "c1", rule("a"))
	if !errors.Is(err, db.ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
	if _, err := store.LoadChannelConfig(ctx, "g1", "c1"); !errors.Is(err, db.ErrChannelNotConfigured) {
		t.Fatalf("failed append must not create a config, got %v", err)
	}
}

func TestAppendRule_RejectsDuplicateID(t *testing.T) {
	store := newTestStore(t, channelConfig(rule("a")))

	if _, err := AppendRule(context.Background(), store, "g1", "c1", rule("a")); !errors.Is(err, ErrDuplicateRuleID) {
		t.Fatalf("expected ErrDuplicateRuleID, got %v", err)
	}
}

func TestDeleteRule(t *testing.T) {
	tests := []struct {
		name   string
		delete string
		want   []db.NotificationRule
	}{
		{"first", "a", []db.NotificationRule{rule("b"), rule("c")}},
		{"middle", "b", []db.NotificationRule{rule("a"), rule("c")}},
		{"last", "c", []db.NotificationRule{rule("a"), rule("b")}},
		{"unknown id is a no-op", "zzz", []db.NotificationRule{rule("a"), rule("b"), rule("c")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t, channelConfig(rule("a"), rule("b"), rule("c")))

			cfg, err := DeleteRule(ctx, store, "g1", "c1", tt.delete)
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if !reflect.DeepEqual(cfg.NotificationRules, tt.want) {
				t.Fatalf("returned rules = %+v", cfg.NotificationRules)
			}

			loaded, err := store.LoadChannelConfig(ctx, "g1", "c1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !reflect.DeepEqual(loaded.NotificationRules, tt.want) {
				t.Fatalf("persisted rules = %+v", loaded.NotificationRules)
			}
		})
	}
}

func TestDeleteRule_UnconfiguredChannel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cfg, err := DeleteRule(ctx, store, "g1", "c1", "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(cfg.NotificationRules) != 0 {
		t.Fatalf("unexpected rules: %+v", cfg.NotificationRules)
	}
	if _, err := store.LoadChannelConfig(ctx, "g1", "c1"); !errors.Is(err, db.ErrChannelNotConfigured) {
		t.Fatalf("delete must not create a config, got %v", err)
	}
}
