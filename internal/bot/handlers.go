package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"komoridev/deepshack/internal/api"
	"komoridev/deepshack/internal/core"
	"komoridev/deepshack/internal/session"
)

// HandleBalance queries the account balance. The front-end gates this behind
// its admin check.
func (b *Bot) HandleBalance(ctx context.Context, m Messenger) {
	bal, err := b.client.QueryBalance(ctx, b.cfg.API.BaseURL, b.cfg.API.APIKey)
	if errors.Is(err, api.ErrBalanceUnsupported) {
		m.SendText("backend does not support balance queries")
		return
	}
	if err != nil {
		b.logger.Errorw("balance query failed", "error", err)
		m.SendText("balance query failed")
		return
	}

	var sb strings.Builder
	if bal.IsAvailable {
		sb.WriteString("balance available")
	} else {
		sb.WriteString("balance exhausted")
	}
	for _, info := range bal.BalanceInfos {
		fmt.Fprintf(&sb, "\n%s: total %s (granted %s, topped up %s)",
			info.Currency, info.TotalBalance, info.GrantedBalance, info.ToppedUpBalance)
	}
	m.SendText(sb.String())
}

// HandleModelList lists the configured models and marks the current default.
func (b *Bot) HandleModelList(m Messenger) {
	def := b.cfg.Settings.DefaultModel()
	var sb strings.Builder
	sb.WriteString("configured models:")
	for _, name := range b.cfg.EnabledModels() {
		marker := ""
		if name == def {
			marker = " (default)"
		}
		fmt.Fprintf(&sb, "\n%s%s", b.cfg.Models[name].Display(), marker)
	}
	m.SendText(sb.String())
}

// HandleSetDefaultModel validates name against the configured models and
// persists it as the default.
func (b *Bot) HandleSetDefaultModel(m Messenger, name string) {
	if _, err := b.cfg.Model(name); err != nil {
		m.SendText(err.Error())
		return
	}
	if err := b.cfg.Settings.SetDefaultModel(name); err != nil {
		b.logger.Errorw("persisting default model failed", "error", err)
		m.SendText("could not persist the default model")
		return
	}
	m.SendText(fmt.Sprintf("default model is now %s", name))
}

// HandleForceStop stops conversations: a privileged caller stops everyone's,
// anyone else stops only their own.
func (b *Bot) HandleForceStop(m Messenger, caller string, privileged bool) {
	var n int
	if privileged {
		n = b.sessions.StopAll()
	} else {
		n = b.sessions.StopOwner(caller)
	}
	if n == 0 {
		m.SendText("no active conversation")
		return
	}
	m.SendText(fmt.Sprintf("stopped %d conversation(s)", n))
}

// HandleChat serves one chat command. Contextual mode spawns a multi-turn
// conversation; otherwise a single exchange with at most one tool round.
// An unknown model override fails here, before any network call.
func (b *Bot) HandleChat(ctx context.Context, m Messenger, caller, content, modelOverride string, contextual bool) {
	model, err := b.cfg.Model(modelOverride)
	if err != nil {
		m.SendText(err.Error())
		return
	}
	opts := b.cfg.ChatOptions(model)
	opts.Tools = b.tools.Specs()

	if contextual {
		b.startSession(ctx, m, caller, content, opts)
		return
	}
	b.singleTurn(ctx, m, caller, content, opts)
}

func (b *Bot) startSession(ctx context.Context, m Messenger, caller, content string, opts api.ChatOptions) {
	s := b.sessions.Create(ctx, caller)
	s.MaxHistory = b.cfg.Session.MaxHistory
	if content != "" {
		s.Offer(content)
	} else {
		m.SendText("conversation started, say something (done to end, rollback to undo a turn)")
	}

	logger := core.WithSession(b.logger, s.ID, caller)
	logger.Infow("conversation started", "model", opts.Model)

	go func() {
		defer b.sessions.Remove(s.ID)
		state := s.Run(b.client, b.tools, &replyEmitter{bot: b, m: m, ctx: s.Context()}, session.LoopConfig{
			Options:      opts,
			InputTimeout: b.cfg.Session.InputTimeout,
		})
		logger.Infow("conversation finished", "state", state.String(), "history", s.Len())
	}()
}

func (b *Bot) singleTurn(ctx context.Context, m Messenger, caller, content string, opts api.ChatOptions) {
	if content != "" {
		b.completeOnce(ctx, m, content, opts)
		return
	}

	// No content given: register a short-lived session so the caller's next
	// message routes here, then answer it once.
	s := b.sessions.Create(ctx, caller)
	m.SendText("what do you want to ask?")
	go func() {
		defer b.sessions.Remove(s.ID)
		defer s.Deactivate()
		text, err := s.AwaitInput(b.cfg.Session.InputTimeout)
		if err != nil {
			m.SendText("timed out waiting for input")
			return
		}
		if session.IsTermination(text) {
			m.SendText("conversation ended")
			return
		}
		b.completeOnce(s.Context(), m, text, opts)
	}()
}

// completeOnce runs one exchange, servicing at most one tool round. A tool
// failure falls back to answering without the tool result.
func (b *Bot) completeOnce(ctx context.Context, m Messenger, content string, opts api.ChatOptions) {
	history := []api.ChatMessage{{Role: api.RoleUser, Content: content}}
	completion, err := b.client.Chat(ctx, history, opts)
	if err != nil {
		b.sendChatError(m, err)
		return
	}
	msg := completion.First()
	if msg == nil {
		m.SendText("the model returned nothing")
		return
	}

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		result, err := b.tools.ExecuteCall(ctx, call)
		if err != nil {
			b.logger.Warnw("tool call failed", "tool", call.Function.Name, "error", err)
		} else {
			assistant := *msg
			assistant.ReasoningContent = ""
			history = append(history, assistant, api.ChatMessage{
				Role:       api.RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
			completion, err = b.client.Chat(ctx, history, opts)
			if err != nil {
				b.sendChatError(m, err)
				return
			}
			if next := completion.First(); next != nil {
				msg = next
			}
		}
	}

	b.deliver(ctx, m, msg)
}

func (b *Bot) sendChatError(m Messenger, err error) {
	var upstream *api.UpstreamError
	if errors.As(err, &upstream) {
		m.SendText(upstream.Message)
		return
	}
	b.logger.Errorw("chat request failed", "error", err)
	m.SendText("request failed, try again later")
}

// replyEmitter adapts a Messenger to the session loop's emitter. Delivery
// runs under the session context so stopping the session also stops any
// in-flight synthesis.
type replyEmitter struct {
	bot *Bot
	m   Messenger
	ctx context.Context
}

func (e *replyEmitter) Emit(msg *api.ChatMessage) { e.bot.deliver(e.ctx, e.m, msg) }
func (e *replyEmitter) Notice(text string)        { e.m.SendText(text) }

// deliver renders one assistant reply and picks the output channel: voice
// when a TTS preset is active, image when markdown rendering is on, plain
// text otherwise.
func (b *Bot) deliver(ctx context.Context, m Messenger, msg *api.ChatMessage) {
	text := FormatReply(msg, b.cfg.Bot.SendThinking)
	if text == "" {
		return
	}

	if b.tts != nil {
		if preset := b.cfg.Settings.TTSPreset(); preset != "" {
			if model, speaker, ok := strings.Cut(preset, "/"); ok {
				_, content := ExtractThink(msg)
				audio, err := b.tts.Synthesize(ctx, content, model, speaker)
				if err == nil {
					m.SendVoice(audio)
					return
				}
				b.logger.Warnw("speech synthesis failed, falling back to text", "error", err)
			}
		}
	}

	if b.cfg.Settings.MarkdownToImage() {
		m.SendImage(text)
		return
	}
	m.SendText(text)
}
