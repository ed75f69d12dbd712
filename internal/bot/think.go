package bot

import (
	"regexp"
	"strings"

	"komoridev/deepshack/internal/api"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// ExtractThink splits a reply into its reasoning and displayable content.
// Reasoning comes from reasoning_content when the model provides it, else
// from <think> blocks embedded in the content; the blocks are stripped from
// the displayed text either way.
func ExtractThink(msg *api.ChatMessage) (reasoning, content string) {
	matches := thinkBlock.FindAllStringSubmatch(msg.Content, -1)
	content = strings.TrimSpace(thinkBlock.ReplaceAllString(msg.Content, ""))

	if msg.ReasoningContent != "" {
		return strings.TrimSpace(msg.ReasoningContent), content
	}
	if len(matches) == 0 {
		return "", content
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if block := strings.TrimSpace(m[1]); block != "" {
			parts = append(parts, block)
		}
	}
	return strings.Join(parts, "\n"), content
}

// FormatReply renders a reply for display, prefixing the reasoning when
// thinking display is enabled.
func FormatReply(msg *api.ChatMessage, showThinking bool) string {
	reasoning, content := ExtractThink(msg)
	if showThinking && reasoning != "" {
		return reasoning + "\n----\n" + content
	}
	return content
}
