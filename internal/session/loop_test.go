package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"komoridev/deepshack/internal/api"
)

type chatResult struct {
	completion *api.ChatCompletion
	err        error
}

// scriptTransport replays canned responses in order and records every
// history snapshot it was handed.
type scriptTransport struct {
	mu       sync.Mutex
	script   []chatResult
	calls    int
	seen     [][]api.ChatMessage
	blockers []chan struct{}
}

func (s *scriptTransport) Chat(ctx context.Context, messages []api.ChatMessage, _ api.ChatOptions) (*api.ChatCompletion, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.seen = append(s.seen, messages)
	var block chan struct{}
	if i < len(s.blockers) {
		block = s.blockers[i]
	}
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if i >= len(s.script) {
		return nil, errors.New("script exhausted")
	}
	return s.script[i].completion, s.script[i].err
}

func (s *scriptTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type scriptExecutor struct {
	result string
	err    error
	calls  int
}

func (e *scriptExecutor) ExecuteCall(_ context.Context, _ api.ToolCall) (string, error) {
	e.calls++
	return e.result, e.err
}

type recordingEmitter struct {
	mu      sync.Mutex
	replies []api.ChatMessage
	notices []string
}

func (e *recordingEmitter) Emit(msg *api.ChatMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replies = append(e.replies, *msg)
}

func (e *recordingEmitter) Notice(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notices = append(e.notices, text)
}

func (e *recordingEmitter) replyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.replies)
}

func reply(content string) chatResult {
	return chatResult{completion: &api.ChatCompletion{
		Choices: []api.Choice{{Message: api.ChatMessage{
			Role:    api.RoleAssistant,
			Content: content,
		}}},
	}}
}

func toolReply(name, args string) chatResult {
	return chatResult{completion: &api.ChatCompletion{
		Choices: []api.Choice{{Message: api.ChatMessage{
			Role: api.RoleAssistant,
			ToolCalls: []api.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: api.FunctionCall{Name: name, Arguments: args},
			}},
		}}},
	}}
}

func loopConfig() LoopConfig {
	return LoopConfig{InputTimeout: 200 * time.Millisecond}
}

func TestRunCompletesOnTerminationPhrase(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{reply("hello there")}}
	emitter := &recordingEmitter{}

	s.Offer("hi")
	s.Offer("done")

	state := s.Run(transport, &scriptExecutor{}, emitter, loopConfig())
	if state != StateCompleted {
		t.Fatalf("state = %v, want completed", state)
	}
	if emitter.replyCount() != 1 {
		t.Fatalf("emitted %d replies, want 1", emitter.replyCount())
	}
	h := s.History()
	if len(h) != 2 || h[0].Role != api.RoleUser || h[1].Role != api.RoleAssistant {
		t.Fatalf("unexpected history: %+v", h)
	}
	if s.Active() {
		t.Error("session should be deactivated after Run returns")
	}
}

func TestRunTimesOutWithoutInput(t *testing.T) {
	s := testSession(t)
	emitter := &recordingEmitter{}

	state := s.Run(&scriptTransport{}, &scriptExecutor{}, emitter, LoopConfig{InputTimeout: 20 * time.Millisecond})
	if state != StateTimedOut {
		t.Fatalf("state = %v, want timed_out", state)
	}
	if len(emitter.notices) != 1 {
		t.Fatalf("notices = %v, want one timeout notice", emitter.notices)
	}
}

func TestRunStripsReasoningBeforePersisting(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{{completion: &api.ChatCompletion{
		Choices: []api.Choice{{Message: api.ChatMessage{
			Role:             api.RoleAssistant,
			Content:          "four",
			ReasoningContent: "2+2 is 4",
		}}},
	}}}}
	emitter := &recordingEmitter{}

	s.Offer("what is 2+2")
	s.Offer("done")
	s.Run(transport, &scriptExecutor{}, emitter, loopConfig())

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if h[1].ReasoningContent != "" {
		t.Errorf("reasoning persisted: %q", h[1].ReasoningContent)
	}
	if emitter.replies[0].ReasoningContent != "2+2 is 4" {
		t.Errorf("emitted message should keep reasoning for display")
	}
}

func TestRunRollbackPhrase(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{reply("first"), reply("second")}}
	emitter := &recordingEmitter{}

	s.Offer("one")
	s.Offer("two")
	s.Offer("rollback")
	s.Offer("done")

	s.Run(transport, &scriptExecutor{}, emitter, loopConfig())

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2 after rollback", len(h))
	}
	if h[1].Content != "first" {
		t.Errorf("tail = %q, want the first assistant turn", h[1].Content)
	}
}

func TestRunRollbackInsufficientHistory(t *testing.T) {
	s := testSession(t)
	emitter := &recordingEmitter{}

	s.Offer("rollback")
	s.Offer("done")

	s.Run(&scriptTransport{}, &scriptExecutor{}, emitter, loopConfig())

	if len(emitter.notices) < 1 {
		t.Fatal("expected a cannot-roll-back notice")
	}
	if emitter.notices[0] != "cannot roll back, not enough history" {
		t.Errorf("notice = %q", emitter.notices[0])
	}
}

func TestRunTransientFailureRollsBackAndContinues(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{
		{err: &api.UpstreamError{Message: "Insufficient Balance"}},
		reply("recovered"),
	}}
	emitter := &recordingEmitter{}

	s.Offer("hello")
	s.Offer("hello again")
	s.Offer("done")

	state := s.Run(transport, &scriptExecutor{}, emitter, loopConfig())
	if state != StateCompleted {
		t.Fatalf("state = %v, want completed", state)
	}
	if transport.callCount() != 2 {
		t.Fatalf("transport called %d times, want 2", transport.callCount())
	}
	// The failed turn's user entry was rolled back, so the second call
	// carries exactly one user message.
	second := transport.seen[1]
	if len(second) != 1 || second[0].Content != "hello again" {
		t.Fatalf("unexpected history on retry: %+v", second)
	}
	if emitter.replyCount() != 1 {
		t.Fatalf("emitted %d replies, want 1", emitter.replyCount())
	}
}

func TestRunTransientFailureAfterToolRoundKeepsEarlierTurns(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{
		reply("ack one"),
		toolReply("get_web_content", `{"url":"https://example.com"}`),
		{err: &api.UpstreamError{Message: "overloaded"}},
	}}
	exec := &scriptExecutor{result: "page text"}
	emitter := &recordingEmitter{}

	s.Offer("one")
	s.Offer("fetch something")
	s.Offer("done")

	state := s.Run(transport, exec, emitter, loopConfig())
	if state != StateCompleted {
		t.Fatalf("state = %v, want completed", state)
	}
	if exec.calls != 1 {
		t.Fatalf("executor called %d times, want 1", exec.calls)
	}

	// The failed round (user, tool-call assistant, tool result) is gone;
	// the first completed turn survives.
	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2: %+v", len(h), h)
	}
	if h[1].Content != "ack one" {
		t.Errorf("tail = %q, want the first assistant turn", h[1].Content)
	}
	if emitter.replyCount() != 1 {
		t.Errorf("emitted %d replies, want 1", emitter.replyCount())
	}
}

func TestRunNonTransientFailureEnds(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{{err: errors.New("boom")}}}
	emitter := &recordingEmitter{}

	s.Offer("hello")
	state := s.Run(transport, &scriptExecutor{}, emitter, loopConfig())
	if state != StateErrored {
		t.Fatalf("state = %v, want errored", state)
	}
}

func TestRunToolRound(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{
		toolReply("get_web_content", `{"url":"https://example.com"}`),
		reply("the page says hi"),
	}}
	exec := &scriptExecutor{result: "hi from the page"}
	emitter := &recordingEmitter{}

	s.Offer("fetch example.com")
	s.Offer("done")

	s.Run(transport, exec, emitter, loopConfig())

	if exec.calls != 1 {
		t.Fatalf("executor called %d times, want 1", exec.calls)
	}
	h := s.History()
	if len(h) != 4 {
		t.Fatalf("history length = %d, want 4", len(h))
	}
	if h[2].Role != api.RoleTool || h[2].ToolCallID != "call_1" {
		t.Errorf("tool entry malformed: %+v", h[2])
	}
	if emitter.replyCount() != 1 || emitter.replies[0].Content != "the page says hi" {
		t.Errorf("unexpected replies: %+v", emitter.replies)
	}
}

func TestRunToolFailureDropsAssistantTurn(t *testing.T) {
	s := testSession(t)
	transport := &scriptTransport{script: []chatResult{
		toolReply("get_web_content", `{}`),
	}}
	exec := &scriptExecutor{err: errors.New("fetch failed")}
	emitter := &recordingEmitter{}

	s.Offer("fetch something")
	s.Offer("done")

	s.Run(transport, exec, emitter, loopConfig())

	h := s.History()
	if len(h) != 1 || h[0].Role != api.RoleUser {
		t.Fatalf("unexpected history after tool failure: %+v", h)
	}
	if emitter.replyCount() != 0 {
		t.Errorf("emitted %d replies, want 0", emitter.replyCount())
	}
}

func TestRunCancelledMidFlight(t *testing.T) {
	r := NewRegistry()
	s := r.Create(context.Background(), "alice")
	block := make(chan struct{})
	transport := &scriptTransport{
		script:   []chatResult{reply("too late")},
		blockers: []chan struct{}{block},
	}
	emitter := &recordingEmitter{}

	s.Offer("hello")

	done := make(chan State, 1)
	go func() {
		defer r.Remove(s.ID)
		done <- s.Run(transport, &scriptExecutor{}, emitter, loopConfig())
	}()

	// Wait until the model call is in flight, then force-stop.
	for transport.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if !r.Stop(s.ID) {
		t.Fatal("stop should succeed while the call is in flight")
	}
	close(block)

	select {
	case state := <-done:
		if state != StateCancelled {
			t.Fatalf("state = %v, want cancelled", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after stop")
	}

	if emitter.replyCount() != 0 {
		t.Error("no reply may be emitted after a force stop")
	}
	if r.Len() != 0 {
		t.Error("session should be unregistered exactly once")
	}
	r.Remove(s.ID) // extra removal stays harmless
}
