package notion

// Block is a page body block in the API's write shape.
type Block map[string]any

// maxTextLength is the API's limit for a single rich text run.
const maxTextLength = 2000

func richTextBody(text string) map[string]any {
	text = truncateRunes(text, maxTextLength, "")
	return map[string]any{
		"rich_text": []RichText{textRun(text)},
	}
}

func HeadingBlock(text string) Block {
	return Block{"object": "block", "type": "heading_2", "heading_2": richTextBody(text)}
}

func ParagraphBlock(text string) Block {
	return Block{"object": "block", "type": "paragraph", "paragraph": richTextBody(text)}
}

func BulletBlock(text string) Block {
	return Block{"object": "block", "type": "bulleted_list_item", "bulleted_list_item": richTextBody(text)}
}

func DividerBlock() Block {
	return Block{"object": "block", "type": "divider", "divider": map[string]any{}}
}

// LinkBlock is a paragraph whose text links to url.
func LinkBlock(label, url string) Block {
	run := map[string]any{
		"type": "text",
		"text": map[string]any{
			"content": label,
			"link":    map[string]string{"url": url},
		},
	}
	return Block{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": map[string]any{"rich_text": []any{run}},
	}
}

// ImageBlock embeds an external image.
func ImageBlock(url string) Block {
	return Block{
		"object": "block",
		"type":   "image",
		"image": map[string]any{
			"type":     "external",
			"external": map[string]string{"url": url},
		},
	}
}
