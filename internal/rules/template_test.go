package rules

import "testing"

func TestSubstitute(t *testing.T) {
	vars := map[string]string{TokenCardTitle: "Fix bug", TokenTriggerValue: "X"}

	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{"no tokens", "no tokens here", vars, "no tokens here"},
		{"no tokens empty vars", "no tokens here", nil, "no tokens here"},
		{"repeated token", "{trigger_value}-{trigger_value}", map[string]string{TokenTriggerValue: "X"}, "X-X"},
		{"both tokens", "Card {card_title} is now {trigger_value}", vars, "Card Fix bug is now X"},
		{"unknown token kept", "{card_title} by {author}", vars, "Fix bug by {author}"},
		{"missing var kept", "{card_title}: {trigger_value}", map[string]string{TokenCardTitle: "A"}, "A: {trigger_value}"},
		{"no re-expansion", "{card_title}", map[string]string{TokenCardTitle: "{trigger_value}", TokenTriggerValue: "X"}, "{trigger_value}"},
		{"format verbs untouched", "%s {0} {{card_title}}", vars, "%s {0} {Fix bug}"},
		{"default template", DefaultTemplate, vars, "✅ Card 'Fix bug' was updated to 'X'."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.template, tt.vars); got != tt.want {
				t.Errorf("Substitute(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestThreadIDFromURL(t *testing.T) {
	tests := []struct {
		link   string
		want   string
		wantOK bool
	}{
		{"https://discord.com/channels/111/222", "222", true},
		{"https://discord.com/channels/111/222/", "222", true},
		{"  https://discord.com/channels/111/333  ", "333", true},
		{"https://discord.com/channels/111/abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ThreadIDFromURL(tt.link)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ThreadIDFromURL(%q) = %q, %v; want %q, %v", tt.link, got, ok, tt.want, tt.wantOK)
		}
	}
}
