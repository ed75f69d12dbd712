package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"komoridev/deepshack/internal/api"
)

// State is where a conversation ended up. Every terminal state is final.
type State int

const (
	StateActive State = iota
	StateCompleted
	StateTimedOut
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// ErrInputTimeout means no message arrived within the configured wait.
var ErrInputTimeout = errors.New("timed out waiting for input")

// ErrStopped means the session was cancelled while waiting.
var ErrStopped = errors.New("session stopped")

// Phrases recognized in multi-turn conversations, matched case-insensitively
// after trimming.
var (
	terminationPhrases = []string{"结束", "取消", "done"}
	rollbackPhrases    = []string{"回滚", "rollback"}
)

// IsTermination reports whether text asks to end the conversation.
func IsTermination(text string) bool {
	return matchPhrase(text, terminationPhrases)
}

// IsRollback reports whether text asks to roll back the last turn.
func IsRollback(text string) bool {
	return matchPhrase(text, rollbackPhrases)
}

func matchPhrase(text string, phrases []string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, p := range phrases {
		if text == p {
			return true
		}
	}
	return false
}

// Session is one logical multi-turn conversation. History is append-only;
// rollback truncates the tail, never mutates entries. The active flag is a
// set-once terminal latch checked before every network call and emission.
type Session struct {
	ID    string
	Owner string

	// MaxHistory bounds the retained history; zero means unlimited.
	MaxHistory int

	mu      sync.Mutex
	history []api.ChatMessage
	active  bool

	input  chan string
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(parent context.Context, id, owner string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:     id,
		Owner:  owner,
		active: true,
		input:  make(chan string, 4),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context carries the session's lifetime; it is done once the session is
// stopped.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Active reports whether the session may still make calls and emit output.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Deactivate latches the session inactive and cancels its context. Returns
// true on the first transition only.
func (s *Session) Deactivate() bool {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()

	if wasActive {
		s.cancel()
	}
	return wasActive
}

// Offer delivers a follow-up message to the conversation without blocking.
// Returns false when the session's input buffer is full or it is inactive.
func (s *Session) Offer(text string) bool {
	if !s.Active() {
		return false
	}
	select {
	case s.input <- text:
		return true
	default:
		return false
	}
}

// AwaitInput blocks for the next message, bounded by timeout and observable
// by cancellation.
func (s *Session) AwaitInput(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text := <-s.input:
		return text, nil
	case <-timer.C:
		return "", ErrInputTimeout
	case <-s.ctx.Done():
		return "", ErrStopped
	}
}

// History returns a copy of the conversation history.
func (s *Session) History() []api.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Len reports the current history length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Append adds one message, trimming the oldest entries past MaxHistory.
func (s *Session) Append(msg api.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
	if s.MaxHistory > 0 && len(s.history) > s.MaxHistory {
		s.history = append(s.history[:0:0], s.history[len(s.history)-s.MaxHistory:]...)
	}
}

// PopLast discards the most recent entry; used when a tool round fails after
// the assistant turn was already appended.
func (s *Session) PopLast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) > 0 {
		s.history = s.history[:len(s.history)-1]
	}
}

// RollbackTurn removes the last full user+assistant pair. Returns false when
// the history is too short, which callers report as "cannot roll back".
func (s *Session) RollbackTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) < 2 {
		return false
	}
	s.history = s.history[:len(s.history)-2]
	return true
}

// RollbackError discards the tail of a failed round after a model call
// error: the unanswered user entry plus any tool exchange that followed it.
// The history is truncated back to the end of the last completed turn (an
// assistant reply without pending tool calls); when no turn ever completed,
// everything goes.
func (s *Session) RollbackError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := len(s.history); n > 0; n = len(s.history) {
		last := s.history[n-1]
		if last.Role == api.RoleAssistant && len(last.ToolCalls) == 0 {
			return
		}
		s.history = s.history[:n-1]
	}
}
