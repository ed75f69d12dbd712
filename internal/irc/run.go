package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/girc"
	"go.uber.org/zap"

	"komoridev/deepshack/internal/bot"
	"komoridev/deepshack/internal/config"
)

// Run connects the IRC front-end and blocks until the context is cancelled
// or the connection cannot be re-established.
func Run(ctx context.Context, cfg *config.Configuration) error {
	b := bot.New(cfg)

	registry := NewCommandRegistry()
	registry.Register(&ChatCommand{Bot: b})
	registry.Register(&AskCommand{Bot: b})
	registry.Register(&BalanceCommand{Bot: b})
	registry.Register(&ModelsCommand{Bot: b})
	registry.Register(&SetModelCommand{Bot: b})
	registry.Register(&StopCommand{Bot: b})
	registry.Register(&TTSCommand{Bot: b})
	registry.Register(&MarkdownCommand{Bot: b})
	registry.Register(&HelpCommand{Registry: registry})
	registry.Register(&FallbackCommand{Bot: b})

	client := girc.New(girc.Config{
		Server:    cfg.Server.Server,
		Port:      cfg.Server.Port,
		Nick:      cfg.Server.Nick,
		User:      "deepshack",
		Name:      "deepshack",
		SSL:       cfg.Server.SSL,
		TLSConfig: &tls.Config{InsecureSkipVerify: cfg.Server.TLSInsecure},
	})

	if cfg.Server.SASLNick != "" && cfg.Server.SASLPass != "" {
		client.Config.SASL = &girc.SASLPlain{
			User: cfg.Server.SASLNick,
			Pass: cfg.Server.SASLPass,
		}
	}

	go func() {
		<-ctx.Done()
		client.Quit("shutting down")
		zap.S().Info("irc client closed")
	}()

	client.Handlers.AddBg(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		zap.S().Infof("joining channel: %s", cfg.Server.Channel)
		c.Cmd.Join(cfg.Server.Channel)
	})

	client.Handlers.AddBg(girc.JOIN, func(c *girc.Client, e girc.Event) {
		if e.Source.Name != cfg.Server.Nick || cfg.Bot.Greeting == "" {
			return
		}
		cctx, cancel := NewChatContext(ctx, cfg, c, &e)
		defer cancel()
		b.HandleChat(cctx, cctx, cfg.Server.Nick, cfg.Bot.Greeting, "", false)
	})

	client.Handlers.AddBg(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		cctx, cancel := NewChatContext(ctx, cfg, c, &e)
		defer cancel()

		if cctx.Valid() {
			cctx.GetLogger().Infof(">> %s", strings.Join(e.Params[1:], " "))
			registry.Dispatch(cctx)
			return
		}

		// Unaddressed messages still reach a live conversation.
		if b.InConversation(e.Source.Name) {
			b.Offer(e.Source.Name, e.Last())
		}
	})

	const maxRetries = 5
	for i := range maxRetries {
		if ctx.Err() != nil {
			return nil
		}

		zap.S().Infow("connecting to server",
			"server", client.Config.Server,
			"port", client.Config.Port,
			"tls", client.Config.SSL,
			"sasl", client.Config.SASL != nil,
		)

		if err := client.Connect(); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			zap.S().Errorw("connection failed", "error", err)
			zap.S().Infof("reconnecting in 5 seconds (attempt %d/%d)", i+1, maxRetries)

			select {
			case <-time.After(5 * time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	}

	return fmt.Errorf("failed to connect after %d attempts", maxRetries)
}
