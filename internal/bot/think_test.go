package bot

import (
	"testing"

	"komoridev/deepshack/internal/api"
)

func TestExtractThink(t *testing.T) {
	cases := []struct {
		name      string
		msg       api.ChatMessage
		reasoning string
		content   string
	}{
		{
			name:      "reasoning field",
			msg:       api.ChatMessage{Content: "four", ReasoningContent: "2+2 is 4"},
			reasoning: "2+2 is 4",
			content:   "four",
		},
		{
			name:      "think block",
			msg:       api.ChatMessage{Content: "<think>let me see</think>the answer"},
			reasoning: "let me see",
			content:   "the answer",
		},
		{
			name:      "multiple think blocks",
			msg:       api.ChatMessage{Content: "<think>first</think>a<think>second</think>b"},
			reasoning: "first\nsecond",
			content:   "ab",
		},
		{
			name:      "reasoning field wins over block",
			msg:       api.ChatMessage{Content: "plain", ReasoningContent: "field"},
			reasoning: "field",
			content:   "plain",
		},
		{
			name:      "block stripped even with reasoning field",
			msg:       api.ChatMessage{Content: "<think>embedded</think>visible", ReasoningContent: "field reasoning"},
			reasoning: "field reasoning",
			content:   "visible",
		},
		{
			name:      "no reasoning at all",
			msg:       api.ChatMessage{Content: "  plain text  "},
			reasoning: "",
			content:   "plain text",
		},
		{
			name:      "unclosed tag stays in content",
			msg:       api.ChatMessage{Content: "<think>oops"},
			reasoning: "",
			content:   "<think>oops",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reasoning, content := ExtractThink(&c.msg)
			if reasoning != c.reasoning {
				t.Errorf("reasoning = %q, want %q", reasoning, c.reasoning)
			}
			if content != c.content {
				t.Errorf("content = %q, want %q", content, c.content)
			}
		})
	}
}

func TestFormatReply(t *testing.T) {
	msg := &api.ChatMessage{Content: "four", ReasoningContent: "2+2 is 4"}

	if got := FormatReply(msg, true); got != "2+2 is 4\n----\nfour" {
		t.Errorf("with thinking = %q", got)
	}
	if got := FormatReply(msg, false); got != "four" {
		t.Errorf("without thinking = %q", got)
	}

	plain := &api.ChatMessage{Content: "just text"}
	if got := FormatReply(plain, true); got != "just text" {
		t.Errorf("no reasoning = %q", got)
	}
}
