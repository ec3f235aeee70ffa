package rules

import "strings"

// Template placeholders.
const (
	TokenCardTitle    = "card_title"
	TokenTriggerValue = "trigger_value"
)

// DefaultTemplate pre-fills the message step.
const DefaultTemplate = "✅ Card '{card_title}' was updated to '{trigger_value}'."

// Substitute replaces {card_title} and {trigger_value} with their values
// from vars. Other braces, including unknown tokens and tokens missing from
// vars, are left as written, and substituted text is never expanded again.
func Substitute(template string, vars map[string]string) string {
	var pairs []string
	for _, token := range []string{TokenCardTitle, TokenTriggerValue} {
		if value, ok := vars[token]; ok {
			pairs = append(pairs, "{"+token+"}", value)
		}
	}
	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
