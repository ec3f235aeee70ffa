package notion

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDatabaseID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"share link with view", testDBURL, "0123456789abcdef0123456789abcdef", false},
		{"dashed id", "https://notion.so/01234567-89AB-cdef-0123-456789abcdef", "0123456789abcdef0123456789abcdef", false},
		{"hex date in title slug", "https://www.notion.so/team/Release-20241231-0123456789abcdef0123456789abcdef?v=fedcba9876543210fedcba9876543210", "0123456789abcdef0123456789abcdef", false},
		{"dashed id after hex slug", "https://notion.so/team/cafe-01234567-89ab-cdef-0123-456789abcdef", "0123456789abcdef0123456789abcdef", false},
		{"hex run longer than an id", "https://notion.so/0123456789abcdef0123456789abcdef00", "", true},
		{"no id", "https://notion.so/workspace/page", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractDatabaseID(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDatabaseURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPropertyValue_Display(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"title joins runs", `{"type":"title","title":[{"plain_text":"Fix "},{"plain_text":"bug"}]}`, "Fix bug"},
		{"rich text", `{"type":"rich_text","rich_text":[{"plain_text":"notes"}]}`, "notes"},
		{"status", `{"type":"status","status":{"name":"Done"}}`, "Done"},
		{"empty select", `{"type":"select","select":null}`, ""},
		{"multi select", `{"type":"multi_select","multi_select":[{"name":"a"},{"name":"b"}]}`, "a, b"},
		{"people", `{"type":"people","people":[{"id":"1","name":"Ana"},{"id":"2","name":"Bruno"}]}`, "Ana, Bruno"},
		{"date", `{"type":"date","date":{"start":"2024-01-15"}}`, "15/01/2024"},
		{"datetime", `{"type":"date","date":{"start":"2024-01-15T10:30:00.000+00:00"}}`, "15/01/2024"},
		{"url", `{"type":"url","url":"https://example.com"}`, "https://example.com"},
		{"integer number", `{"type":"number","number":42}`, "42"},
		{"decimal number", `{"type":"number","number":2.5}`, "2.5"},
		{"null number", `{"type":"number","number":null}`, ""},
		{"malformed number", `{"type":"number","number":"abc"}`, ""},
		{"malformed date", `{"type":"date","date":{"start":"soon"}}`, ""},
		{"unknown type", `{"type":"formula","formula":{"string":"x"}}`, ""},
		{"not an object", `"oops"`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v PropertyValue
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &v))
			assert.Equal(t, tt.want, v.Display())
		})
	}
}

func TestPage_MalformedPropertyDoesNotFailDecode(t *testing.T) {
	raw := `{"id":"p","properties":{
		"Name":{"type":"title","title":[{"plain_text":"Card"}]},
		"Bad":{"type":"people","people":"nope"}
	}}`

	var page Page
	require.NoError(t, json.Unmarshal([]byte(raw), &page))
	assert.Equal(t, "Card", page.Title())
	assert.Equal(t, "", page.Properties["Bad"].Display())
}

func TestFormatPageForEmbed(t *testing.T) {
	raw := `{"id":"p","url":"https://notion.so/p","properties":{
		"Name":{"type":"title","title":[]},
		"Status":{"type":"status","status":{"name":"Done"}},
		"Notes":{"type":"rich_text","rich_text":[]},
		"Owner":{"type":"people","people":[{"id":"1","name":"Ana"}]}
	}}`
	var page Page
	require.NoError(t, json.Unmarshal([]byte(raw), &page))

	card := FormatPageForEmbed(&page, true, nil)
	assert.Equal(t, UntitledCard, card.Title)
	assert.Equal(t, "https://notion.so/p", card.URL)
	assert.Equal(t, []CardField{
		{Name: "Owner", Value: "Ana", Inline: true},
		{Name: "Status", Value: "Done", Inline: true},
	}, card.Fields)

	card = FormatPageForEmbed(&page, false, []string{"Status", "Missing"})
	assert.Equal(t, []CardField{{Name: "Status", Value: "Done"}}, card.Fields)
}

func TestFormatPageForEmbed_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ü", maxFieldValue+10)
	page := Page{Properties: map[string]PropertyValue{
		"Notes": {Type: TypeRichText, RichText: []RichText{textRun(long)}},
	}}

	card := FormatPageForEmbed(&page, false, nil)
	require.Len(t, card.Fields, 1)
	value := card.Fields[0].Value
	assert.True(t, utf8.ValidString(value))
	assert.Equal(t, maxFieldValue, utf8.RuneCountInString(value))
	assert.True(t, strings.HasSuffix(value, "..."))

	block := ParagraphBlock(strings.Repeat("ü", maxTextLength+1))
	runs := block["paragraph"].(map[string]any)["rich_text"].([]RichText)
	assert.True(t, utf8.ValidString(runs[0].Text.Content))
	assert.Equal(t, maxTextLength, utf8.RuneCountInString(runs[0].Text.Content))
}

func TestParseWebhook(t *testing.T) {
	t.Run("challenge", func(t *testing.T) {
		wh, err := ParseWebhook([]byte(`{"type":"url_verification","challenge":"tok"}`))
		require.NoError(t, err)
		assert.True(t, wh.IsChallenge())
		assert.Equal(t, "tok", wh.Challenge)
	})

	t.Run("verification token", func(t *testing.T) {
		wh, err := ParseWebhook([]byte(`{"verification_token":"secret_abc"}`))
		require.NoError(t, err)
		assert.True(t, wh.IsVerificationToken())
		assert.False(t, wh.IsChallenge())
	})

	t.Run("native envelope", func(t *testing.T) {
		wh, err := ParseWebhook([]byte(`{
			"id":"evt-1","type":"page.properties_updated",
			"entity":{"id":"page-1","type":"page"},
			"data":{"parent":{"id":"01234567-89ab-cdef-0123-456789abcdef","type":"database"},"updated_properties":["s"]}
		}`))
		require.NoError(t, err)
		assert.True(t, wh.IsPageUpdate())

		ev, err := wh.PageEvent()
		require.NoError(t, err)
		assert.Equal(t, "evt-1", ev.DeliveryID)
		assert.Equal(t, "page-1", ev.PageID)
		assert.Equal(t, "0123456789abcdef0123456789abcdef", ev.DatabaseID)
		assert.Nil(t, ev.Properties)
	})

	t.Run("legacy event with page", func(t *testing.T) {
		wh, err := ParseWebhook([]byte(`{
			"event":"page.updated",
			"page":{"id":"page-2","parent":{"type":"database_id","database_id":"0123456789abcdef0123456789abcdef"},
				"properties":{"Name":{"type":"title","title":[{"plain_text":"Fix bug"}]}}}
		}`))
		require.NoError(t, err)

		ev, err := wh.PageEvent()
		require.NoError(t, err)
		assert.Equal(t, "page-2", ev.PageID)
		assert.Equal(t, "Fix bug", ev.Title())
		assert.Empty(t, ev.DeliveryID)
	})

	t.Run("bare page defaults to update", func(t *testing.T) {
		wh, err := ParseWebhook([]byte(`{"object":"page","id":"page-3","parent":{"database_id":"abc"},"properties":{}}`))
		require.NoError(t, err)
		assert.Equal(t, EventPageUpdated, wh.EventType())

		ev, err := wh.PageEvent()
		require.NoError(t, err)
		assert.Equal(t, "page-3", ev.PageID)
		assert.Equal(t, "abc", ev.DatabaseID)
	})

	t.Run("missing page id", func(t *testing.T) {
		wh, err := ParseWebhook([]byte(`{"event":"page.updated"}`))
		require.NoError(t, err)
		_, err = wh.PageEvent()
		assert.ErrorIs(t, err, ErrMissingPageID)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseWebhook([]byte(`{`))
		assert.Error(t, err)
	})
}
