package notion

// UntitledCard is shown when a page has an empty title.
const UntitledCard = "Untitled card"

// maxFieldValue is Discord's embed field value limit.
const maxFieldValue = 1024

type CardField struct {
	Name   string
	Value  string
	Inline bool
}

// Card is a page prepared for rendering as a chat embed.
type Card struct {
	Title  string
	URL    string
	Fields []CardField
}

// FormatPageForEmbed selects the displayed properties of a page. With no
// display list every non-title property is shown, sorted by name. Empty
// values are skipped.
func FormatPageForEmbed(page *Page, inline bool, displayProperties []string) Card {
	card := Card{Title: page.Title(), URL: page.URL}
	if card.Title == "" {
		card.Title = UntitledCard
	}

	names := displayProperties
	if len(names) == 0 {
		names = page.PropertyNames()
	}

	for _, name := range names {
		prop, ok := page.Properties[name]
		if !ok || prop.Type == TypeTitle {
			continue
		}
		value := prop.Display()
		if value == "" {
			continue
		}
		value = truncateRunes(value, maxFieldValue, "...")
		card.Fields = append(card.Fields, CardField{Name: name, Value: value, Inline: inline})
	}
	return card
}

// truncateRunes caps s at max runes, ending it with suffix when cut.
func truncateRunes(s string, max int, suffix string) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-len([]rune(suffix))]) + suffix
}
