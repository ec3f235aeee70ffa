package db

import (
	"errors"
	"time"
)

// SchemaVersion is written into every channel config the bot saves.
// Configs without it were written by the legacy bot and read as-is.
const SchemaVersion = 1

// Action type constants
const (
	ActionSendToTopic   = "send_to_topic"
	ActionSendToChannel = "send_to_channel"
	ActionDMResponsible = "dm_responsible"
)

// ErrChannelNotConfigured is returned when no config exists for a channel.
var ErrChannelNotConfigured = errors.New("channel is not configured")

// NotificationRule maps a trigger property value to a Discord notification.
type NotificationRule struct {
	RuleID                string `json:"rule_id"`
	TriggerPropertyName   string `json:"trigger_property_name"`
	TriggerValueName      string `json:"trigger_value_name"`
	ActionType            string `json:"action_type"`
	ResponsiblePersonProp string `json:"responsible_person_prop,omitempty"`
	MessageTemplate       string `json:"message_template"`
}

// ChannelConfig scopes one Discord channel to one Notion database.
// GuildID and ChannelID are the storage keys and are not part of the
// serialized document.
type ChannelConfig struct {
	GuildID   string `json:"-"`
	ChannelID string `json:"-"`

	SchemaVersion     int                `json:"schema_version,omitempty"`
	NotionURL         string             `json:"notion_url,omitempty"`
	CreateProperties  []string           `json:"create_properties,omitempty"`
	DisplayProperties []string           `json:"display_properties,omitempty"`
	NotificationRules []NotificationRule `json:"notification_rules,omitempty"`

	// nil means the toggle was never set; action buttons default to on.
	ActionButtonsEnabled  *bool  `json:"action_buttons_enabled,omitempty"`
	AISummaryEnabled      bool   `json:"ai_summary_enabled,omitempty"`
	TopicLinkPropertyName string `json:"topic_link_property_name,omitempty"`
	IndividualPersonProp  string `json:"individual_person_prop,omitempty"`
	CollectivePersonProp  string `json:"collective_person_prop,omitempty"`

	UpdatedAt time.Time `json:"-"`
}

// ActionButtons reports whether edit/delete/share buttons are shown on search results.
func (c *ChannelConfig) ActionButtons() bool {
	return c.ActionButtonsEnabled == nil || *c.ActionButtonsEnabled
}

// Configured reports whether a Notion database has been linked.
func (c *ChannelConfig) Configured() bool {
	return c != nil && c.NotionURL != ""
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (c *ChannelConfig) Clone() *ChannelConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.CreateProperties = append([]string(nil), c.CreateProperties...)
	out.DisplayProperties = append([]string(nil), c.DisplayProperties...)
	out.NotificationRules = append([]NotificationRule(nil), c.NotificationRules...)
	if c.ActionButtonsEnabled != nil {
		v := *c.ActionButtonsEnabled
		out.ActionButtonsEnabled = &v
	}
	return &out
}
