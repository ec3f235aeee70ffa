// Package rules builds, stores and evaluates notification rules.
package rules

import (
	"errors"
	"strings"

	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/notion"
)

// State is a step of the rule wizard.
type State string

const (
	StateSelectTriggerProperty     State = "select_trigger_property"
	StateSelectTriggerValue        State = "select_trigger_value"
	StateInputTriggerValue         State = "input_trigger_value"
	StateSelectActionType          State = "select_action_type"
	StateSelectResponsibleProperty State = "select_responsible_property"
	StateDefineMessage             State = "define_message"
	StateCompleted                 State = "completed"
	StateFailed                    State = "failed"
	StateCancelled                 State = "cancelled"
)

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

var (
	// ErrInvalidTransition is returned for input that does not belong to
	// the current step. The wizard is left unchanged.
	ErrInvalidTransition = errors.New("input not valid for the current wizard step")
	ErrUnknownProperty   = errors.New("property not found in database schema")
	ErrUnknownValue      = errors.New("value is not one of the property's options")
	ErrEmptyValue        = errors.New("trigger value must not be empty")
	ErrUnknownAction     = errors.New("unknown action type")

	// Terminal failures, reported through Effect.Err.
	ErrNoOptions        = errors.New("property has no options configured in Notion")
	ErrNoPeopleProperty = errors.New("database has no people property to send DMs to")
	ErrCancelled        = errors.New("rule creation cancelled")
)

// EffectKind tells the UI layer what to do after a transition.
type EffectKind int

const (
	// EffectRender asks for the current step to be displayed.
	EffectRender EffectKind = iota
	// EffectPersist carries a completed rule to append to the channel config.
	EffectPersist
	// EffectAbort ends the session without persisting anything.
	EffectAbort
)

type Effect struct {
	Kind EffectKind
	Rule *db.NotificationRule
	Err  error
}

// Wizard is the rule builder as a value: every transition returns a new
// Wizard and never touches storage.
type Wizard struct {
	State  State
	Draft  db.NotificationRule
	schema []notion.PropertySchema
}

// NewWizard starts at trigger property selection over schema.
func NewWizard(schema []notion.PropertySchema) Wizard {
	return Wizard{State: StateSelectTriggerProperty, schema: schema}
}

// Properties lists the trigger property candidates.
func (w Wizard) Properties() []notion.PropertySchema {
	return w.schema
}

// ValueOptions lists the trigger value choices for an enumerated property.
func (w Wizard) ValueOptions() []string {
	prop, ok := notion.FindProperty(w.schema, w.Draft.TriggerPropertyName)
	if !ok {
		return nil
	}
	return prop.Options
}

// PeopleProperties lists the candidates for the responsible person.
func (w Wizard) PeopleProperties() []notion.PropertySchema {
	return notion.PropertiesOfType(w.schema, notion.TypePeople)
}

// Actions lists the supported action types in display order.
func Actions() []string {
	return []string{db.ActionSendToTopic, db.ActionSendToChannel, db.ActionDMResponsible}
}

func (w Wizard) SelectProperty(name string) (Wizard, Effect, error) {
	if w.State != StateSelectTriggerProperty {
		return w, Effect{}, ErrInvalidTransition
	}
	prop, ok := notion.FindProperty(w.schema, name)
	if !ok {
		return w, Effect{}, ErrUnknownProperty
	}

	w.Draft.TriggerPropertyName = prop.Name
	if !prop.Enumerated() {
		w.State = StateInputTriggerValue
		return w, Effect{Kind: EffectRender}, nil
	}
	if len(prop.Options) == 0 {
		w.State = StateFailed
		return w, Effect{Kind: EffectAbort, Err: ErrNoOptions}, nil
	}
	w.State = StateSelectTriggerValue
	return w, Effect{Kind: EffectRender}, nil
}

// SubmitValue accepts a chosen option or free text, depending on the step.
func (w Wizard) SubmitValue(value string) (Wizard, Effect, error) {
	switch w.State {
	case StateSelectTriggerValue:
		if !contains(w.ValueOptions(), value) {
			return w, Effect{}, ErrUnknownValue
		}
	case StateInputTriggerValue:
		value = strings.TrimSpace(value)
		if value == "" {
			return w, Effect{}, ErrEmptyValue
		}
	default:
		return w, Effect{}, ErrInvalidTransition
	}

	w.Draft.TriggerValueName = value
	w.State = StateSelectActionType
	return w, Effect{Kind: EffectRender}, nil
}

func (w Wizard) SelectAction(action string) (Wizard, Effect, error) {
	if w.State != StateSelectActionType {
		return w, Effect{}, ErrInvalidTransition
	}
	if !contains(Actions(), action) {
		return w, Effect{}, ErrUnknownAction
	}

	w.Draft.ActionType = action
	w.Draft.ResponsiblePersonProp = ""
	if action != db.ActionDMResponsible {
		w.State = StateDefineMessage
		return w, Effect{Kind: EffectRender}, nil
	}
	if len(w.PeopleProperties()) == 0 {
		w.State = StateFailed
		return w, Effect{Kind: EffectAbort, Err: ErrNoPeopleProperty}, nil
	}
	w.State = StateSelectResponsibleProperty
	return w, Effect{Kind: EffectRender}, nil
}

func (w Wizard) SelectResponsibleProperty(name string) (Wizard, Effect, error) {
	if w.State != StateSelectResponsibleProperty {
		return w, Effect{}, ErrInvalidTransition
	}
	prop, ok := notion.FindProperty(w.schema, name)
	if !ok || prop.Type != notion.TypePeople {
		return w, Effect{}, ErrUnknownProperty
	}

	w.Draft.ResponsiblePersonProp = prop.Name
	w.State = StateDefineMessage
	return w, Effect{Kind: EffectRender}, nil
}

// SubmitMessage completes the rule. A blank template falls back to
// DefaultTemplate; newID supplies the rule id.
func (w Wizard) SubmitMessage(template string, newID func() string) (Wizard, Effect, error) {
	if w.State != StateDefineMessage {
		return w, Effect{}, ErrInvalidTransition
	}
	if w.Draft.ActionType == db.ActionDMResponsible && w.Draft.ResponsiblePersonProp == "" {
		return w, Effect{}, ErrInvalidTransition
	}

	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	w.Draft.MessageTemplate = template
	w.Draft.RuleID = newID()
	w.State = StateCompleted

	rule := w.Draft
	return w, Effect{Kind: EffectPersist, Rule: &rule}, nil
}

// Cancel abandons the session. Timeouts cancel the same way.
func (w Wizard) Cancel() (Wizard, Effect) {
	if w.State.Terminal() {
		return w, Effect{Kind: EffectAbort}
	}
	w.State = StateCancelled
	return w, Effect{Kind: EffectAbort, Err: ErrCancelled}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
