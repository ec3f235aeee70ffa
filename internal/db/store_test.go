package db

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const legacyDocument = `{
    "111": {
        "channels": {
            "222": {
                "notion_url": "https://www.notion.so/team/0123456789abcdef0123456789abcdef?v=1",
                "create_properties": ["Name", "Status"],
                "display_properties": ["Name"],
                "topic_link_property_name": "Topic",
                "notification_rules": [
                    {
                        "rule_id": "r-1",
                        "trigger_property_name": "Status",
                        "trigger_value_name": "Done",
                        "action_type": "send_to_topic",
                        "message_template": "{card_title} is {trigger_value}"
                    }
                ]
            }
        }
    }
}`

func newTestFileStore(t *testing.T, contents string) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configs.json")
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	return NewFileStore(path, zap.NewNop()), path
}

func TestFileStore_LoadLegacyDocument(t *testing.T) {
	store, _ := newTestFileStore(t, legacyDocument)

	cfg, err := store.LoadChannelConfig(context.Background(), "111", "222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.GuildID != "111" || cfg.ChannelID != "222" {
		t.Errorf("keys = %s/%s, want 111/222", cfg.GuildID, cfg.ChannelID)
	}
	if cfg.SchemaVersion != 0 {
		t.Errorf("legacy config should read with schema version 0, got %d", cfg.SchemaVersion)
	}
	if len(cfg.NotificationRules) != 1 || cfg.NotificationRules[0].RuleID != "r-1" {
		t.Errorf("unexpected rules: %+v", cfg.NotificationRules)
	}
	if !cfg.ActionButtons() {
		t.Error("action buttons should default to enabled when unset")
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store, _ := newTestFileStore(t, "")

	_, err := store.LoadChannelConfig(context.Background(), "1", "2")
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
}

func TestFileStore_UpdateCreatesImplicitly(t *testing.T) {
	store, path := newTestFileStore(t, "")
	ctx := context.Background()

	_, err := store.UpdateChannelConfig(ctx, "g", "c", func(cfg *ChannelConfig) error {
		cfg.NotionURL = "https://notion.so/abc"
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	var doc map[string]map[string]map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("written document is not the legacy shape: %v", err)
	}
	entry := doc["g"]["channels"]["c"]
	if entry["notion_url"] != "https://notion.so/abc" {
		t.Errorf("notion_url = %v", entry["notion_url"])
	}
	if entry["schema_version"] != float64(SchemaVersion) {
		t.Errorf("schema_version = %v, want %d", entry["schema_version"], SchemaVersion)
	}
}

func TestFileStore_UpdateErrorWritesNothing(t *testing.T) {
	store, _ := newTestFileStore(t, legacyDocument)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := store.UpdateChannelConfig(ctx, "111", "222", func(cfg *ChannelConfig) error {
		cfg.NotionURL = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	cfg, err := store.LoadChannelConfig(ctx, "111", "222")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NotionURL == "changed" {
		t.Error("failed update must not be persisted")
	}
}

func TestFileStore_SavePreservesOtherChannels(t *testing.T) {
	store, _ := newTestFileStore(t, legacyDocument)
	ctx := context.Background()

	if err := store.SaveChannelConfig(ctx, &ChannelConfig{GuildID: "111", ChannelID: "333", NotionURL: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := store.ListChannelConfigs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(all))
	}
	if all[0].ChannelID != "222" || all[1].ChannelID != "333" {
		t.Errorf("unexpected order: %s, %s", all[0].ChannelID, all[1].ChannelID)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	store, _ := newTestFileStore(t, "{not json")

	if _, err := store.ListChannelConfigs(context.Background()); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}

func TestChannelConfig_CloneIsDeep(t *testing.T) {
	enabled := false
	cfg := &ChannelConfig{
		CreateProperties:     []string{"A"},
		NotificationRules:    []NotificationRule{{RuleID: "1"}},
		ActionButtonsEnabled: &enabled,
	}

	clone := cfg.Clone()
	clone.CreateProperties[0] = "B"
	clone.NotificationRules[0].RuleID = "2"
	*clone.ActionButtonsEnabled = true

	if cfg.CreateProperties[0] != "A" || cfg.NotificationRules[0].RuleID != "1" || *cfg.ActionButtonsEnabled {
		t.Error("clone shares state with original")
	}
}
