package bot

import (
	"context"

	"go.uber.org/zap"

	"komoridev/deepshack/internal/api"
	"komoridev/deepshack/internal/config"
	"komoridev/deepshack/internal/core"
	"komoridev/deepshack/internal/session"
	"komoridev/deepshack/internal/tools"
)

// Messenger is the outbound surface a front-end hands to the handlers.
// Front-ends that cannot render an image or play audio degrade to text.
type Messenger interface {
	SendText(text string)
	SendImage(markdown string)
	SendVoice(audio []byte)
}

// Transport is what the handlers need from the API client.
type Transport interface {
	Chat(ctx context.Context, messages []api.ChatMessage, opts api.ChatOptions) (*api.ChatCompletion, error)
	QueryBalance(ctx context.Context, baseURL, apiKey string) (*api.Balance, error)
}

// Bot owns the long-lived collaborators behind every command handler.
type Bot struct {
	cfg      *config.Configuration
	client   Transport
	tts      *api.TTSClient
	tools    *tools.Registry
	sessions *session.Registry
	logger   *zap.SugaredLogger
}

func New(cfg *config.Configuration) *Bot {
	reg := tools.NewRegistry()
	reg.Register(tools.NewWebFetch())

	b := &Bot{
		cfg:      cfg,
		client:   api.NewClient(cfg.API.Timeout),
		tools:    reg,
		sessions: session.NewRegistry(),
		logger:   core.GetLogger().Named("bot"),
	}
	if cfg.TTS.Enabled {
		b.tts = api.NewTTSClient(cfg.TTS.BaseURL, cfg.TTS.AccessToken, cfg.TTS.AudioDLURL)
	}
	return b
}

// Offer routes a follow-up message into one of owner's live conversations.
// Returns false when the owner has no session able to take it.
func (b *Bot) Offer(owner, text string) bool {
	for _, s := range b.sessions.Owned(owner) {
		if s.Offer(text) {
			return true
		}
	}
	return false
}

// InConversation reports whether owner has at least one live session.
func (b *Bot) InConversation(owner string) bool {
	return len(b.sessions.Owned(owner)) > 0
}
