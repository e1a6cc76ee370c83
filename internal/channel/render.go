package channel

import (
	"strings"

	"xeterbot/internal/domain"
)

// HelpText renders a help document as plain text for platforms without
// rich embeds. Markdown bold markers are dropped.
func HelpText(doc *domain.HelpDocument) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(doc.Title)
	if doc.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(doc.Description)
	}
	for _, s := range doc.Sections {
		b.WriteString("\n\n")
		b.WriteString(s.Name)
		b.WriteString("\n")
		b.WriteString(s.Body)
	}
	if doc.Footer != "" {
		b.WriteString("\n\n")
		b.WriteString(doc.Footer)
	}
	return strings.ReplaceAll(b.String(), "**", "")
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
