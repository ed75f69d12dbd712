package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"komoridev/deepshack/internal/api"
	"komoridev/deepshack/internal/core"
)

// Transport is the slice of the API client the loop depends on.
type Transport interface {
	Chat(ctx context.Context, messages []api.ChatMessage, opts api.ChatOptions) (*api.ChatCompletion, error)
}

// Executor resolves model-issued tool calls.
type Executor interface {
	ExecuteCall(ctx context.Context, call api.ToolCall) (string, error)
}

// Emitter delivers assistant replies and lifecycle notices back to whatever
// chat surface started the session.
type Emitter interface {
	Emit(msg *api.ChatMessage)
	Notice(text string)
}

// LoopConfig carries everything the turn loop needs beyond the session
// itself.
type LoopConfig struct {
	Options      api.ChatOptions
	InputTimeout time.Duration
	// MaxToolTurns bounds consecutive tool rounds within one turn so a
	// misbehaving model cannot loop forever. Zero means 5.
	MaxToolTurns int
}

const defaultMaxToolTurns = 5

// Run drives the conversation until it reaches a terminal state. Input
// arrives through Offer; the first message may be offered before Run starts.
// Run deactivates the session before returning, so callers only need to
// unregister it.
func (s *Session) Run(t Transport, exec Executor, emit Emitter, cfg LoopConfig) State {
	logger := core.WithSession(core.GetLogger().Named("session"), s.ID, s.Owner)
	defer core.LogDuration(logger, "session", time.Now())
	defer s.Deactivate()

	maxTool := cfg.MaxToolTurns
	if maxTool == 0 {
		maxTool = defaultMaxToolTurns
	}

	for {
		if !s.Active() {
			return StateCancelled
		}

		text, err := s.AwaitInput(cfg.InputTimeout)
		if errors.Is(err, ErrStopped) {
			return StateCancelled
		}
		if err != nil || text == "" {
			emit.Notice("conversation timed out")
			return StateTimedOut
		}

		if IsTermination(text) {
			emit.Notice("conversation ended")
			return StateCompleted
		}
		if IsRollback(text) {
			if s.RollbackTurn() {
				emit.Notice("rolled back the last turn")
			} else {
				emit.Notice("cannot roll back, not enough history")
			}
			continue
		}

		s.Append(api.ChatMessage{Role: api.RoleUser, Content: text})

		state, done := s.turn(t, exec, emit, cfg.Options, maxTool, logger)
		if done {
			return state
		}
	}
}

// turn runs one model exchange including tool rounds. It returns done=true
// only for terminal states; transient failures roll the history back and
// hand control back to the input wait.
func (s *Session) turn(t Transport, exec Executor, emit Emitter, opts api.ChatOptions, maxTool int, logger *zap.SugaredLogger) (State, bool) {
	for round := 0; ; round++ {
		if !s.Active() {
			return StateCancelled, true
		}

		completion, err := t.Chat(s.Context(), s.History(), opts)
		if err != nil {
			if s.ctx.Err() != nil {
				return StateCancelled, true
			}
			if api.IsTransient(err) {
				logger.Warnw("transient model failure, rolling back", "error", err)
				s.RollbackError()
				return StateActive, false
			}
			logger.Errorw("model call failed", "error", err)
			emit.Notice("something went wrong, ending the conversation")
			return StateErrored, true
		}

		msg := completion.First()
		if msg == nil {
			logger.Warnw("completion carried no choices, rolling back")
			s.RollbackError()
			return StateActive, false
		}

		// Reasoning is surfaced at emission time only, never persisted.
		persisted := *msg
		persisted.ReasoningContent = ""
		s.Append(persisted)

		if len(msg.ToolCalls) == 0 {
			if !s.Active() {
				return StateCancelled, true
			}
			emit.Emit(msg)
			return StateActive, false
		}

		if round >= maxTool {
			logger.Warnw("tool round limit reached", "rounds", round)
			s.PopLast()
			return StateActive, false
		}

		// Only the first tool call is serviced even if the model asked
		// for several.
		call := msg.ToolCalls[0]
		if !s.Active() {
			return StateCancelled, true
		}
		result, err := exec.ExecuteCall(s.Context(), call)
		if err != nil {
			logger.Warnw("tool call failed", "tool", call.Function.Name, "error", err)
			s.PopLast()
			return StateActive, false
		}
		s.Append(api.ChatMessage{
			Role:       api.RoleTool,
			ToolCallID: call.ID,
			Content:    result,
		})
	}
}
