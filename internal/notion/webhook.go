package notion

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Webhook event types
const (
	EventURLVerification   = "url_verification"
	EventPageUpdated       = "page.updated"
	EventPropertiesUpdated = "page.properties_updated"
	EventPageCreated       = "page.created"
	EventPageDeleted       = "page.deleted"
)

var ErrMissingPageID = errors.New("webhook payload has no page id")

type WebhookEntity struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type WebhookData struct {
	Parent            *Parent  `json:"parent"`
	UpdatedProperties []string `json:"updated_properties"`
}

// Webhook is an inbound delivery. Three shapes are accepted: Notion's native
// envelope (type, entity, data), the legacy {event, page} shape, and a bare
// page object.
type Webhook struct {
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	Event             string         `json:"event"`
	Challenge         string         `json:"challenge"`
	VerificationToken string         `json:"verification_token"`
	Entity            *WebhookEntity `json:"entity"`
	Data              *WebhookData   `json:"data"`
	Page              *Page          `json:"page"`

	// bare page shape
	Object     string                   `json:"object"`
	URL        string                   `json:"url"`
	Parent     *Parent                  `json:"parent"`
	Properties map[string]PropertyValue `json:"properties"`
}

// PageEvent is the normalized page change handed to rule evaluation.
// Properties is nil when the delivery did not carry them.
type PageEvent struct {
	DeliveryID string
	Type       string
	PageID     string
	DatabaseID string
	URL        string
	Properties map[string]PropertyValue
}

// ParseWebhook decodes a delivery body.
func ParseWebhook(body []byte) (*Webhook, error) {
	var wh Webhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	return &wh, nil
}

func (w *Webhook) IsChallenge() bool {
	return w.Type == EventURLVerification
}

// IsVerificationToken reports Notion's subscription handshake, which carries
// only a token to be copied into the integration settings.
func (w *Webhook) IsVerificationToken() bool {
	return w.VerificationToken != "" && w.Type == "" && w.Entity == nil && w.Page == nil
}

// EventType defaults to page.updated, as legacy deliveries omit it.
func (w *Webhook) EventType() string {
	switch {
	case w.Type != "":
		return w.Type
	case w.Event != "":
		return w.Event
	default:
		return EventPageUpdated
	}
}

// IsPageUpdate reports whether rules should be evaluated for the delivery.
func (w *Webhook) IsPageUpdate() bool {
	switch w.EventType() {
	case EventPageUpdated, EventPropertiesUpdated:
		return true
	}
	return false
}

// PageEvent normalizes whichever shape was delivered.
func (w *Webhook) PageEvent() (PageEvent, error) {
	ev := PageEvent{Type: w.EventType()}

	switch {
	case w.Entity != nil:
		ev.DeliveryID = w.ID
		ev.PageID = w.Entity.ID
		if w.Data != nil && w.Data.Parent != nil {
			ev.DatabaseID = w.Data.Parent.Database()
		}
	case w.Page != nil:
		ev.PageID = w.Page.ID
		ev.URL = w.Page.URL
		ev.DatabaseID = w.Page.Parent.Database()
		ev.Properties = w.Page.Properties
	default:
		ev.PageID = w.ID
		ev.URL = w.URL
		if w.Parent != nil {
			ev.DatabaseID = w.Parent.Database()
		}
		ev.Properties = w.Properties
	}

	if ev.PageID == "" {
		return ev, ErrMissingPageID
	}
	return ev, nil
}

// Title returns the page title carried by the event, if any.
func (e PageEvent) Title() string {
	for _, prop := range e.Properties {
		if prop.Type == TypeTitle {
			return prop.Display()
		}
	}
	return ""
}

// Page returns the event as a page for embed rendering.
func (e PageEvent) Page() *Page {
	return &Page{
		ID:         e.PageID,
		URL:        e.URL,
		Parent:     Parent{Type: "database_id", DatabaseID: e.DatabaseID},
		Properties: e.Properties,
	}
}
