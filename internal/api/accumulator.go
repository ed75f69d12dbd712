package api

import (
	"encoding/json"
	"strings"
)

// choiceState is the in-flight accumulation for one choice index.
type choiceState struct {
	index        int
	role         string
	content      strings.Builder
	reasoning    strings.Builder
	finishReason string
	logprobs     json.RawMessage
	toolCalls    []ToolCall
}

// ChunkAccumulator merges a sequence of completion chunks into one coherent
// completion. Choices are keyed by index; text fragments concatenate, scalar
// fields are last-non-null-wins. Chunks may interleave choices in any order;
// the output preserves the order each index was first seen.
type ChunkAccumulator struct {
	id          string
	created     int64
	model       string
	fingerprint string
	usage       *Usage

	order   []int
	choices map[int]*choiceState

	merged int
	done   bool
}

// NewChunkAccumulator returns an empty accumulator.
func NewChunkAccumulator() *ChunkAccumulator {
	return &ChunkAccumulator{
		choices: make(map[int]*choiceState),
	}
}

// Merged reports how many chunks have been merged so far.
func (a *ChunkAccumulator) Merged() int {
	return a.merged
}

// Merge folds one chunk into the accumulator. Calling Merge after Completion
// has finalized the result is a programmer error.
func (a *ChunkAccumulator) Merge(chunk *CompletionChunk) {
	if a.done {
		panic("api: merge into finalized accumulator")
	}

	if chunk.ID != "" {
		a.id = chunk.ID
	}
	if chunk.Created != 0 {
		a.created = chunk.Created
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.SystemFingerprint != "" {
		a.fingerprint = chunk.SystemFingerprint
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}

	for i := range chunk.Choices {
		a.mergeChoice(&chunk.Choices[i])
	}
	a.merged++
}

func (a *ChunkAccumulator) mergeChoice(in *ChunkChoice) {
	st, ok := a.choices[in.Index]
	if !ok {
		st = &choiceState{index: in.Index}
		a.choices[in.Index] = st
		a.order = append(a.order, in.Index)
	}

	if in.Delta.Role != "" {
		st.role = in.Delta.Role
	}
	if in.Delta.Content != nil {
		st.content.WriteString(*in.Delta.Content)
	}
	if in.Delta.ReasoningContent != nil {
		st.reasoning.WriteString(*in.Delta.ReasoningContent)
	}
	if in.FinishReason != nil {
		st.finishReason = *in.FinishReason
	}
	if in.Logprobs != nil {
		st.logprobs = in.Logprobs
	}

	for _, tc := range in.Delta.ToolCalls {
		st.mergeToolCall(tc)
	}
}

// mergeToolCall stitches streamed tool-call fragments together: the id, type
// and name arrive once, the JSON argument text arrives in pieces.
func (st *choiceState) mergeToolCall(in ToolCall) {
	for i := range st.toolCalls {
		cur := &st.toolCalls[i]
		if cur.Index != in.Index {
			continue
		}
		if in.ID != "" {
			cur.ID = in.ID
		}
		if in.Type != "" {
			cur.Type = in.Type
		}
		if in.Function.Name != "" {
			cur.Function.Name = in.Function.Name
		}
		cur.Function.Arguments += in.Function.Arguments
		return
	}
	st.toolCalls = append(st.toolCalls, in)
}

// Completion finalizes the accumulation and returns the assembled result.
// A stream that produced zero merged chunks yields ErrNoData; that guards
// against silent empty responses when the connection drops early.
func (a *ChunkAccumulator) Completion() (*ChatCompletion, error) {
	if a.merged == 0 {
		return nil, ErrNoData
	}
	a.done = true

	out := &ChatCompletion{
		ID:                a.id,
		Object:            "chat.completion",
		Created:           a.created,
		Model:             a.model,
		SystemFingerprint: a.fingerprint,
		Usage:             a.usage,
	}

	for _, idx := range a.order {
		st := a.choices[idx]
		role := st.role
		if role == "" {
			role = RoleAssistant
		}
		out.Choices = append(out.Choices, Choice{
			Index:        st.index,
			FinishReason: st.finishReason,
			Logprobs:     st.logprobs,
			Message: ChatMessage{
				Role:             role,
				Content:          st.content.String(),
				ReasoningContent: st.reasoning.String(),
				ToolCalls:        st.toolCalls,
			},
		})
	}
	return out, nil
}
