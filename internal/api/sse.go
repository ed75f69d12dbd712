package api

import "strings"

// FrameKind classifies a parsed server-sent-events line.
type FrameKind int

const (
	FrameData FrameKind = iota
	FrameEvent
	FrameID
	FrameRetry
	FrameComment
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameEvent:
		return "event"
	case FrameID:
		return "id"
	case FrameRetry:
		return "retry"
	case FrameComment:
		return "comment"
	case FrameError:
		return "error"
	}
	return "unknown"
}

// Frame is one typed SSE line. Error frames carry the entire raw line so the
// caller can report the protocol anomaly verbatim.
type Frame struct {
	Kind  FrameKind
	Value string
}

// ParseFrame parses a single SSE line. It is pure and total: every input maps
// to exactly one frame kind or to no frame at all (blank lines and lines
// without a field separator are silently dropped).
func ParseFrame(raw string) (Frame, bool) {
	line := strings.TrimSuffix(raw, "\r")
	if line == "" {
		return Frame{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		return Frame{}, false
	}
	value = strings.TrimLeft(value, " ")

	switch field {
	case "":
		return Frame{Kind: FrameComment, Value: value}, true
	case "data":
		return Frame{Kind: FrameData, Value: value}, true
	case "event":
		return Frame{Kind: FrameEvent, Value: value}, true
	case "id":
		return Frame{Kind: FrameID, Value: value}, true
	case "retry":
		return Frame{Kind: FrameRetry, Value: value}, true
	}
	return Frame{Kind: FrameError, Value: line}, true
}
