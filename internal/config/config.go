package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"komoridev/deepshack/internal/api"
)

// Configuration is the full runtime configuration, grouped by concern.
type Configuration struct {
	Server   *ServerConfig
	Bot      *BotConfig
	Session  *SessionConfig
	API      *APIConfig
	TTS      *TTSConfig
	Models   map[string]*ModelConfig
	Settings *Settings
}

// ServerConfig is the IRC front-end connection.
type ServerConfig struct {
	Nick        string
	Server      string
	Port        int
	Channel     string
	SSL         bool
	TLSInsecure bool
	SASLNick    string
	SASLPass    string
}

// BotConfig is chat behavior.
type BotConfig struct {
	Admins       []string
	Verbose      bool
	Addressed    bool
	Greeting     string
	SendThinking bool
}

// SessionConfig bounds multi-turn conversations.
type SessionConfig struct {
	InputTimeout time.Duration
	MaxHistory   int
	ChunkMax     int
}

// APIConfig is the global model endpoint configuration; per-model entries
// may override pieces of it.
type APIConfig struct {
	Timeout time.Duration
	APIKey  string
	BaseURL string
	Prompt  string
	Stream  bool
}

// TTSConfig is the speech synthesis backend.
type TTSConfig struct {
	Enabled     bool
	BaseURL     string
	AccessToken string
	AudioDLURL  string
}

// YamlSource implements cli.ValueSource for a map loaded from YAML
type YamlSource struct {
	data map[string]any
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	if v, ok := y.data[y.key]; ok {
		// Handle slices by joining with comma
		if slice, ok := v.([]any); ok {
			var strs []string
			for _, item := range slice {
				strs = append(strs, fmt.Sprintf("%v", item))
			}
			return strings.Join(strs, ","), true
		}
		return fmt.Sprintf("%v", v), true
	}
	return "", false
}

func (y *YamlSource) String() string   { return "yaml" }
func (y *YamlSource) GoString() string { return "yaml" }

func getConfigPath() string {
	if v := os.Getenv("DEEPSHACK_CONFIG"); v != "" {
		return v
	}
	for i, arg := range os.Args {
		if arg == "--config" || arg == "-b" {
			if i+1 < len(os.Args) {
				return os.Args[i+1]
			}
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

// GetFlags builds the CLI flag set. Each flag resolves env var > YAML config
// file > default.
func GetFlags() []cli.Flag {
	configPath := getConfigPath()
	var configData map[string]any
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			_ = yaml.Unmarshal(data, &configData)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", configPath, err)
		}
	}

	src := func(key string, env ...string) cli.ValueSourceChain {
		chain := cli.ValueSourceChain{}
		for _, e := range env {
			chain.Chain = append(chain.Chain, cli.EnvVar(e))
		}
		if configData != nil {
			chain.Chain = append(chain.Chain, &YamlSource{data: configData, key: key})
		}
		return chain
	}

	return []cli.Flag{
		// Config file
		&cli.StringFlag{Name: "config", Aliases: []string{"b"}, Usage: "use the named configuration file", Sources: cli.EnvVars("DEEPSHACK_CONFIG")},

		// IRC client
		&cli.StringFlag{Name: "nick", Aliases: []string{"n"}, Value: "deepshack", Usage: "bot's nickname on the irc server", Sources: src("nick", "DEEPSHACK_NICK")},
		&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Value: "localhost", Usage: "irc server address", Sources: src("server", "DEEPSHACK_SERVER")},
		&cli.BoolFlag{Name: "tls", Aliases: []string{"e"}, Usage: "enable TLS for the IRC connection", Sources: src("tls", "DEEPSHACK_TLS")},
		&cli.BoolFlag{Name: "tlsinsecure", Usage: "skip TLS certificate verification", Sources: src("tlsinsecure", "DEEPSHACK_TLSINSECURE")},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 6667, Usage: "irc server port", Sources: src("port", "DEEPSHACK_PORT")},
		&cli.StringFlag{Name: "channel", Aliases: []string{"c"}, Usage: "irc channel to join", Sources: src("channel", "DEEPSHACK_CHANNEL")},
		&cli.StringFlag{Name: "saslnick", Usage: "nick used for SASL", Sources: src("saslnick", "DEEPSHACK_SASLNICK")},
		&cli.StringFlag{Name: "saslpass", Usage: "password for SASL plain", Sources: src("saslpass", "DEEPSHACK_SASLPASS")},

		// Bot behavior
		&cli.StringSliceFlag{Name: "admins", Aliases: []string{"A"}, Usage: "comma-separated list of hostmasks allowed to administrate the bot", Sources: src("admins", "DEEPSHACK_ADMINS")},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable verbose logging", Sources: src("verbose", "DEEPSHACK_VERBOSE")},
		&cli.BoolFlag{Name: "addressed", Aliases: []string{"a"}, Value: true, Usage: "require bot be addressed by nick for response", Sources: src("addressed", "DEEPSHACK_ADDRESSED")},
		&cli.StringFlag{Name: "greeting", Value: "hello.", Usage: "greeting sent when the bot joins the channel", Sources: src("greeting", "DEEPSHACK_GREETING")},
		&cli.BoolFlag{Name: "sendthinking", Value: true, Usage: "prefix replies with the model's reasoning when available", Sources: src("sendthinking", "DEEPSHACK_SENDTHINKING")},

		// Model API
		&cli.StringFlag{Name: "apikey", Usage: "DeepSeek API key", Sources: src("apikey", "DEEPSHACK_APIKEY")},
		&cli.StringFlag{Name: "baseurl", Value: api.DefaultBaseURL, Usage: "chat completions API base URL", Sources: src("baseurl", "DEEPSHACK_BASEURL")},
		&cli.StringFlag{Name: "model", Value: "deepseek-chat", Usage: "default model name", Sources: src("model", "DEEPSHACK_MODEL")},
		&cli.StringFlag{Name: "prompt", Value: "You are a helpful assistant.", Usage: "system prompt", Sources: src("prompt", "DEEPSHACK_PROMPT")},
		&cli.BoolFlag{Name: "stream", Value: true, Usage: "use streaming completions", Sources: src("stream", "DEEPSHACK_STREAM")},
		&cli.DurationFlag{Name: "apitimeout", Aliases: []string{"t"}, Value: time.Minute * 5, Usage: "timeout for each completion request", Sources: src("apitimeout", "DEEPSHACK_APITIMEOUT")},

		// Sessions
		&cli.DurationFlag{Name: "inputtimeout", Value: time.Second * 60, Usage: "how long a conversation waits for the next message", Sources: src("inputtimeout", "DEEPSHACK_INPUTTIMEOUT")},
		&cli.IntFlag{Name: "sessionhistory", Aliases: []string{"H"}, Value: 250, Usage: "maximum number of history entries per conversation", Sources: src("sessionhistory", "DEEPSHACK_SESSIONHISTORY")},
		&cli.IntFlag{Name: "chunkmax", Aliases: []string{"m"}, Value: 350, Usage: "maximum number of characters to send as a single message", Sources: src("chunkmax", "DEEPSHACK_CHUNKMAX")},

		// Speech
		&cli.BoolFlag{Name: "tts", Usage: "enable speech synthesis", Sources: src("tts", "DEEPSHACK_TTS")},
		&cli.StringFlag{Name: "ttsurl", Usage: "speech backend base URL", Sources: src("ttsurl", "DEEPSHACK_TTSURL")},
		&cli.StringFlag{Name: "ttstoken", Usage: "speech backend access token", Sources: src("ttstoken", "DEEPSHACK_TTSTOKEN")},
		&cli.StringFlag{Name: "audiodlurl", Usage: "URL the speech backend serves audio from", Sources: src("audiodlurl", "DEEPSHACK_AUDIODLURL")},

		// Persisted state
		&cli.StringFlag{Name: "statefile", Value: "deepshack-state.json", Usage: "path of the persisted settings document", Sources: src("statefile", "DEEPSHACK_STATEFILE")},
	}
}

// Load assembles the Configuration from parsed flags, the YAML model table,
// and the persisted settings document.
func Load(cmd *cli.Command) (*Configuration, error) {
	cfg := &Configuration{
		Server: &ServerConfig{
			Nick:        cmd.String("nick"),
			Server:      cmd.String("server"),
			Port:        int(cmd.Int("port")),
			Channel:     cmd.String("channel"),
			SSL:         cmd.Bool("tls"),
			TLSInsecure: cmd.Bool("tlsinsecure"),
			SASLNick:    cmd.String("saslnick"),
			SASLPass:    cmd.String("saslpass"),
		},
		Bot: &BotConfig{
			Admins:       cmd.StringSlice("admins"),
			Verbose:      cmd.Bool("verbose"),
			Addressed:    cmd.Bool("addressed"),
			Greeting:     cmd.String("greeting"),
			SendThinking: cmd.Bool("sendthinking"),
		},
		Session: &SessionConfig{
			InputTimeout: cmd.Duration("inputtimeout"),
			MaxHistory:   int(cmd.Int("sessionhistory")),
			ChunkMax:     int(cmd.Int("chunkmax")),
		},
		API: &APIConfig{
			Timeout: cmd.Duration("apitimeout"),
			APIKey:  cmd.String("apikey"),
			BaseURL: cmd.String("baseurl"),
			Prompt:  cmd.String("prompt"),
			Stream:  cmd.Bool("stream"),
		},
		TTS: &TTSConfig{
			Enabled:     cmd.Bool("tts"),
			BaseURL:     cmd.String("ttsurl"),
			AccessToken: cmd.String("ttstoken"),
			AudioDLURL:  cmd.String("audiodlurl"),
		},
	}

	models, err := loadModels(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		// Always expose the flag-configured default model.
		models = map[string]*ModelConfig{
			cmd.String("model"): {Name: cmd.String("model")},
		}
	}
	cfg.Models = models

	settings, err := LoadSettings(cmd.String("statefile"))
	if err != nil {
		return nil, err
	}
	settings.seedDefaultModel(cmd.String("model"))
	cfg.Settings = settings

	if _, ok := cfg.Models[settings.DefaultModel()]; !ok {
		return nil, fmt.Errorf("default model %q is not configured", settings.DefaultModel())
	}
	return cfg, nil
}

// loadModels reads the models table from the YAML config file. The table is
// too structured for flags; it only lives in the file.
func loadModels(path string) (map[string]*ModelConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var doc struct {
		Models map[string]*ModelConfig `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse models table: %w", err)
	}
	for name, m := range doc.Models {
		m.Name = name
	}
	return doc.Models, nil
}

// EnabledModels lists configured model names, sorted.
func (c *Configuration) EnabledModels() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownModel is a configuration mistake: a command referenced a model
// nobody configured. It fails at dispatch time, before any network call.
type ErrUnknownModel struct {
	Name string
}

func (e *ErrUnknownModel) Error() string {
	return fmt.Sprintf("model %q is not configured", e.Name)
}

// Model resolves a model name, or the persisted default when name is empty.
func (c *Configuration) Model(name string) (*ModelConfig, error) {
	if name == "" {
		name = c.Settings.DefaultModel()
	}
	m, ok := c.Models[name]
	if !ok {
		return nil, &ErrUnknownModel{Name: name}
	}
	return m, nil
}

// ChatOptions builds the request options for a model, applying the global
// API configuration wherever the model entry does not override it.
func (c *Configuration) ChatOptions(m *ModelConfig) api.ChatOptions {
	opts := api.ChatOptions{
		BaseURL:          c.API.BaseURL,
		APIKey:           c.API.APIKey,
		Model:            m.Name,
		Prompt:           m.Prompt.Or(c.API.Prompt),
		Stream:           m.Stream.Or(c.API.Stream),
		Temperature:      m.Temperature,
		TopP:             m.TopP,
		MaxTokens:        m.MaxTokens,
		FrequencyPenalty: m.FrequencyPenalty,
		PresencePenalty:  m.PresencePenalty,
		Logprobs:         m.Logprobs,
		TopLogprobs:      m.TopLogprobs,
		Stop:             m.Stop,
	}
	if m.BaseURL != "" {
		opts.BaseURL = m.BaseURL
	}
	if m.APIKey != "" {
		opts.APIKey = m.APIKey
	}
	return opts
}
