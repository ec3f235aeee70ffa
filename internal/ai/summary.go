package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/lalithlochan/cardbot/internal/notion"
)

const summaryPrompt = `You summarize Discord support threads for a task board.
Write a short report in plain text with these sections:
## Context
## Key points
## Next steps
Use "- " for list items. Do not invent facts that are not in the conversation.`

// maxTranscript bounds the prompt for very long threads.
const maxTranscript = 12000

// ThreadMessage is one message of the thread being summarized.
type ThreadMessage struct {
	Author  string
	Content string
}

// SummarizeThread asks the model for a structured summary of messages,
// which must be in chronological order.
func (c *Client) SummarizeThread(ctx context.Context, messages []ThreadMessage) (string, error) {
	transcript := Transcript(messages)
	if transcript == "" {
		return "", ErrNoSummary
	}

	msg, err := c.ChatCompletion(ctx, []ChatMessage{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: transcript},
	}, 800)
	if err != nil {
		return "", fmt.Errorf("summarize thread: %w", err)
	}

	summary := strings.TrimSpace(msg.Content)
	if summary == "" {
		return "", ErrNoSummary
	}
	return summary, nil
}

// Transcript renders messages as "author: text" lines, dropping empty ones
// and keeping the most recent part when the thread is too long.
func Transcript(messages []ThreadMessage) string {
	var lines []string
	for _, m := range messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Author, text))
	}

	out := strings.Join(lines, "\n")
	if len(out) > maxTranscript {
		out = out[len(out)-maxTranscript:]
		if i := strings.IndexByte(out, '\n'); i >= 0 {
			out = out[i+1:]
		}
	}
	return out
}

// SummaryBlocks converts a summary into page blocks: markdown headings
// become headings, list items become bullets and other lines paragraphs.
func SummaryBlocks(summary string) []notion.Block {
	var blocks []notion.Block
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#"):
			if text := strings.TrimSpace(strings.TrimLeft(line, "#")); text != "" {
				blocks = append(blocks, notion.HeadingBlock(text))
			}
		case strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") && len(line) > 4:
			blocks = append(blocks, notion.HeadingBlock(strings.Trim(line, "* ")))
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "), strings.HasPrefix(line, "• "):
			_, text, _ := strings.Cut(line, " ")
			blocks = append(blocks, notion.BulletBlock(strings.TrimSpace(text)))
		default:
			blocks = append(blocks, notion.ParagraphBlock(line))
		}
	}
	return blocks
}

// Attachment is an image or video posted in a thread.
type Attachment struct {
	Filename    string
	URL         string
	ContentType string
}

// IsMedia reports whether the attachment should be linked from the card.
func (a Attachment) IsMedia() bool {
	return strings.HasPrefix(a.ContentType, "image/") ||
		strings.HasPrefix(a.ContentType, "video/") ||
		strings.HasSuffix(strings.ToLower(a.Filename), ".gif")
}

// PageContent assembles the body of a card created from a thread: the
// summary section when summary is non-empty, then the media attachments.
func PageContent(summary string, attachments []Attachment) []notion.Block {
	var blocks []notion.Block
	if summary != "" {
		blocks = append(blocks, notion.HeadingBlock("🤖 AI summary"))
		blocks = append(blocks, SummaryBlocks(summary)...)
	}

	var media []Attachment
	for _, a := range attachments {
		if a.IsMedia() {
			media = append(media, a)
		}
	}
	if len(media) == 0 {
		return blocks
	}

	if len(blocks) > 0 {
		blocks = append(blocks, notion.DividerBlock())
	}
	blocks = append(blocks, notion.HeadingBlock("📎 Thread attachments"))
	for _, a := range media {
		if strings.HasPrefix(a.ContentType, "image/") {
			blocks = append(blocks, notion.ImageBlock(a.URL))
			continue
		}
		blocks = append(blocks, notion.LinkBlock(fmt.Sprintf("Video/GIF (%s)", a.Filename), a.URL))
	}
	return blocks
}
