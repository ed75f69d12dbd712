package irc

import (
	"sort"
	"strings"

	"komoridev/deepshack/internal/bot"
)

// Command defines one chat-reachable bot command.
type Command interface {
	Name() string
	Usage() string
	Execute(ctx ChatContextInterface)
	AdminOnly() bool
}

// CommandRegistry manages command registration and dispatch. A command with
// an empty name becomes the fallback for unmatched input.
type CommandRegistry struct {
	commands map[string]Command
	fallback Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]Command)}
}

func (r *CommandRegistry) Register(cmd Command) {
	if cmd.Name() == "" {
		r.fallback = cmd
		return
	}
	r.commands[cmd.Name()] = cmd
}

// Dispatch routes the message to its command, or the fallback. Returns false
// when nothing could handle it.
func (r *CommandRegistry) Dispatch(ctx ChatContextInterface) bool {
	cmd, ok := r.commands[ctx.GetCommand()]
	if !ok {
		if r.fallback == nil {
			return false
		}
		r.fallback.Execute(ctx)
		return true
	}

	if cmd.AdminOnly() && !ctx.IsAdmin() {
		ctx.SendText("you don't have permission to do that")
		return true
	}
	cmd.Execute(ctx)
	return true
}

// All returns the named commands sorted by name.
func (r *CommandRegistry) All() []Command {
	cmds := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	return cmds
}

func rest(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return strings.Join(args[1:], " ")
}

// ChatCommand starts a multi-turn conversation.
type ChatCommand struct {
	Bot *bot.Bot
}

func (c *ChatCommand) Name() string    { return "chat" }
func (c *ChatCommand) Usage() string   { return "chat [message] - start a conversation" }
func (c *ChatCommand) AdminOnly() bool { return false }

func (c *ChatCommand) Execute(ctx ChatContextInterface) {
	c.Bot.HandleChat(ctx.AppContext(), ctx, ctx.GetSource(), rest(ctx.GetArgs()), "", true)
}

// AskCommand is a single exchange against a named model.
type AskCommand struct {
	Bot *bot.Bot
}

func (c *AskCommand) Name() string    { return "ask" }
func (c *AskCommand) Usage() string   { return "ask <model> <message> - one-shot question to a specific model" }
func (c *AskCommand) AdminOnly() bool { return false }

func (c *AskCommand) Execute(ctx ChatContextInterface) {
	args := ctx.GetArgs()
	if len(args) < 3 {
		ctx.SendText(c.Usage())
		return
	}
	c.Bot.HandleChat(ctx.AppContext(), ctx, ctx.GetSource(), strings.Join(args[2:], " "), args[1], false)
}

// BalanceCommand reports the account balance.
type BalanceCommand struct {
	Bot *bot.Bot
}

func (c *BalanceCommand) Name() string    { return "balance" }
func (c *BalanceCommand) Usage() string   { return "balance - show the account balance" }
func (c *BalanceCommand) AdminOnly() bool { return true }

func (c *BalanceCommand) Execute(ctx ChatContextInterface) {
	c.Bot.HandleBalance(ctx, ctx)
}

// ModelsCommand lists the configured models.
type ModelsCommand struct {
	Bot *bot.Bot
}

func (c *ModelsCommand) Name() string    { return "models" }
func (c *ModelsCommand) Usage() string   { return "models - list configured models" }
func (c *ModelsCommand) AdminOnly() bool { return false }

func (c *ModelsCommand) Execute(ctx ChatContextInterface) {
	c.Bot.HandleModelList(ctx)
}

// SetModelCommand changes the persisted default model.
type SetModelCommand struct {
	Bot *bot.Bot
}

func (c *SetModelCommand) Name() string    { return "setmodel" }
func (c *SetModelCommand) Usage() string   { return "setmodel <name> - set the default model" }
func (c *SetModelCommand) AdminOnly() bool { return true }

func (c *SetModelCommand) Execute(ctx ChatContextInterface) {
	args := ctx.GetArgs()
	if len(args) < 2 {
		ctx.SendText(c.Usage())
		return
	}
	c.Bot.HandleSetDefaultModel(ctx, args[1])
}

// StopCommand ends conversations: admins end everyone's, others their own.
type StopCommand struct {
	Bot *bot.Bot
}

func (c *StopCommand) Name() string    { return "stop" }
func (c *StopCommand) Usage() string   { return "stop - end your conversation (admins end all)" }
func (c *StopCommand) AdminOnly() bool { return false }

func (c *StopCommand) Execute(ctx ChatContextInterface) {
	c.Bot.HandleForceStop(ctx, ctx.GetSource(), ctx.IsAdmin())
}

// TTSCommand manages voice output presets.
type TTSCommand struct {
	Bot *bot.Bot
}

func (c *TTSCommand) Name() string    { return "tts" }
func (c *TTSCommand) Usage() string   { return "tts list|set <model/speaker>|off - manage voice replies" }
func (c *TTSCommand) AdminOnly() bool { return true }

func (c *TTSCommand) Execute(ctx ChatContextInterface) {
	args := ctx.GetArgs()
	if len(args) < 2 {
		ctx.SendText(c.Usage())
		return
	}
	switch strings.ToLower(args[1]) {
	case "list":
		c.Bot.HandleTTSModels(ctx, ctx)
	case "set":
		if len(args) < 3 {
			ctx.SendText(c.Usage())
			return
		}
		c.Bot.HandleSetTTSPreset(ctx, args[2])
	case "off":
		c.Bot.HandleSetTTSPreset(ctx, "")
	default:
		ctx.SendText(c.Usage())
	}
}

// MarkdownCommand toggles rendering replies as markdown images.
type MarkdownCommand struct {
	Bot *bot.Bot
}

func (c *MarkdownCommand) Name() string    { return "markdown" }
func (c *MarkdownCommand) Usage() string   { return "markdown on|off - render replies as images" }
func (c *MarkdownCommand) AdminOnly() bool { return true }

func (c *MarkdownCommand) Execute(ctx ChatContextInterface) {
	args := ctx.GetArgs()
	if len(args) < 2 {
		ctx.SendText(c.Usage())
		return
	}
	c.Bot.HandleSetMarkdown(ctx, strings.EqualFold(args[1], "on"))
}

// HelpCommand lists all registered commands.
type HelpCommand struct {
	Registry *CommandRegistry
}

func (c *HelpCommand) Name() string    { return "help" }
func (c *HelpCommand) Usage() string   { return "help - show this list" }
func (c *HelpCommand) AdminOnly() bool { return false }

func (c *HelpCommand) Execute(ctx ChatContextInterface) {
	var sb strings.Builder
	sb.WriteString("commands:")
	for _, cmd := range c.Registry.All() {
		sb.WriteString("\n" + cmd.Usage())
	}
	ctx.SendText(sb.String())
}

// FallbackCommand handles anything that is not a command: follow-ups route
// into the sender's live conversation, everything else is a single exchange.
type FallbackCommand struct {
	Bot *bot.Bot
}

func (c *FallbackCommand) Name() string    { return "" }
func (c *FallbackCommand) Usage() string   { return "" }
func (c *FallbackCommand) AdminOnly() bool { return false }

func (c *FallbackCommand) Execute(ctx ChatContextInterface) {
	text := strings.Join(ctx.GetArgs(), " ")
	if c.Bot.Offer(ctx.GetSource(), text) {
		return
	}
	c.Bot.HandleChat(ctx.AppContext(), ctx, ctx.GetSource(), text, "", false)
}
