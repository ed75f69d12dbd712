package irc

import "strings"

// SplitMessage breaks a reply into IRC-sized lines. Newlines always split;
// lines longer than max break at the last space inside the limit, or hard
// break when there is none.
func SplitMessage(text string, max int) []string {
	if max <= 0 {
		max = 350
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \r")
		if line == "" {
			continue
		}
		for len(line) > max {
			cut := max
			if idx := strings.LastIndexByte(line[:max], ' '); idx > 0 {
				cut = idx
			}
			out = append(out, strings.TrimRight(line[:cut], " "))
			line = strings.TrimLeft(line[cut:], " ")
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
