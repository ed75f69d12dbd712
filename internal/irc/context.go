package irc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lrstanley/girc"
	"go.uber.org/zap"

	"komoridev/deepshack/internal/bot"
	"komoridev/deepshack/internal/config"
)

// ChatContextInterface provides all context a command needs to handle one
// IRC message. It doubles as the outbound Messenger for the handlers.
type ChatContextInterface interface {
	context.Context
	bot.Messenger

	IsAddressed() bool
	IsAdmin() bool
	Valid() bool
	IsPrivate() bool
	GetCommand() string
	GetSource() string
	GetArgs() []string

	// AppContext is the process lifetime, for work that outlives this
	// message (conversation sessions).
	AppContext() context.Context

	GetConfig() *config.Configuration
	GetLogger() *zap.SugaredLogger
}

type ChatContext struct {
	context.Context

	cfg       *config.Configuration
	appCtx    context.Context
	client    *girc.Client
	event     *girc.Event
	args      []string
	logger    *zap.SugaredLogger
	requestID string
}

var _ ChatContextInterface = (*ChatContext)(nil)

// NewChatContext wraps one IRC event. The embedded context is bounded by the
// API timeout; the returned cancel must be deferred by the caller.
func NewChatContext(parent context.Context, cfg *config.Configuration, client *girc.Client, e *girc.Event) (ChatContextInterface, context.CancelFunc) {
	timedctx, cancel := context.WithTimeout(parent, cfg.API.Timeout)

	requestID := generateRequestID()

	if e.Source == nil {
		e.Source = &girc.Source{Name: cfg.Server.Channel}
	}

	ctx := &ChatContext{
		Context:   timedctx,
		cfg:       cfg,
		appCtx:    parent,
		client:    client,
		event:     e,
		args:      strings.Fields(e.Last()),
		requestID: requestID,
		logger: zap.S().With(
			"request_id", requestID,
			"channel", e.Params[0],
			"source", e.Source.Name,
		),
	}

	if ctx.IsAddressed() {
		ctx.args = ctx.args[1:]
	}
	return ctx, cancel
}

func (c *ChatContext) AppContext() context.Context {
	return c.appCtx
}

func (c *ChatContext) GetConfig() *config.Configuration {
	return c.cfg
}

func (c *ChatContext) GetLogger() *zap.SugaredLogger {
	return c.logger
}

func (c *ChatContext) IsAddressed() bool {
	return strings.HasPrefix(c.event.Last(), c.client.GetNick())
}

func (c *ChatContext) IsPrivate() bool {
	return !strings.HasPrefix(c.event.Params[0], "#")
}

func (c *ChatContext) IsAdmin() bool {
	hostmask := c.event.Source.String()
	// XXX: if no admins are configured, all hostmasks are admins
	if len(c.cfg.Bot.Admins) == 0 {
		return true
	}
	for _, user := range c.cfg.Bot.Admins {
		if user == hostmask {
			return true
		}
	}
	return false
}

// Valid reports whether the message should be processed at all.
func (c *ChatContext) Valid() bool {
	return (c.IsAddressed() || !c.cfg.Bot.Addressed || c.IsPrivate()) && len(c.args) > 0
}

func (c *ChatContext) GetCommand() string {
	if len(c.args) == 0 {
		return ""
	}
	return strings.ToLower(c.args[0])
}

func (c *ChatContext) GetSource() string {
	return c.event.Source.Name
}

func (c *ChatContext) GetArgs() []string {
	return c.args
}

// SendText replies with text, chunked to the configured line limit.
func (c *ChatContext) SendText(text string) {
	for _, line := range SplitMessage(text, c.cfg.Session.ChunkMax) {
		c.client.Cmd.Reply(*c.event, line)
	}
}

// SendImage degrades to text: IRC cannot render markdown images, so the
// markdown itself is sent.
func (c *ChatContext) SendImage(markdown string) {
	c.SendText(markdown)
}

// SendVoice degrades to a notice: IRC cannot play audio.
func (c *ChatContext) SendVoice(audio []byte) {
	c.SendText(fmt.Sprintf("voice reply ready (%d bytes), but this channel cannot play audio", len(audio)))
}

func generateRequestID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
