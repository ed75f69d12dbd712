package irc

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	cases := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "short line passes through",
			text: "hello world",
			max:  100,
			want: []string{"hello world"},
		},
		{
			name: "newlines always split",
			text: "one\ntwo\nthree",
			max:  100,
			want: []string{"one", "two", "three"},
		},
		{
			name: "blank lines dropped",
			text: "one\n\n\ntwo",
			max:  100,
			want: []string{"one", "two"},
		},
		{
			name: "long line breaks at a space",
			text: "aaa bbb ccc",
			max:  7,
			want: []string{"aaa bbb", "ccc"},
		},
		{
			name: "no space forces a hard break",
			text: "aaaaaaaaaa",
			max:  4,
			want: []string{"aaaa", "aaaa", "aa"},
		},
		{
			name: "trailing carriage return trimmed",
			text: "hello\r\nworld",
			max:  100,
			want: []string{"hello", "world"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SplitMessage(c.text, c.max)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("SplitMessage(%q, %d) = %v, want %v", c.text, c.max, got, c.want)
			}
		})
	}
}

func TestSplitMessageRespectsLimit(t *testing.T) {
	text := strings.Repeat("word ", 200)
	for _, line := range SplitMessage(text, 50) {
		if len(line) > 50 {
			t.Errorf("line exceeds limit: %d chars", len(line))
		}
		if line == "" {
			t.Error("empty line emitted")
		}
	}
}

func TestSplitMessageDefaultLimit(t *testing.T) {
	text := strings.Repeat("a", 1000)
	lines := SplitMessage(text, 0)
	if len(lines) < 2 {
		t.Fatal("expected the default limit to apply")
	}
	for _, line := range lines {
		if len(line) > 350 {
			t.Errorf("line exceeds default limit: %d chars", len(line))
		}
	}
}
