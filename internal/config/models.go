package config

import "komoridev/deepshack/internal/api"

// ModelConfig is one named model entry from the config file. Generation
// parameters are carried as Opt values so an absent key is distinguishable
// from an explicit zero; absent parameters never reach the request body.
type ModelConfig struct {
	Name string `yaml:"-"`

	Alias   string `yaml:"alias"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	Prompt api.Opt[string] `yaml:"prompt"`
	Stream api.Opt[bool]   `yaml:"stream"`

	Temperature      api.Opt[float64]  `yaml:"temperature"`
	TopP             api.Opt[float64]  `yaml:"top_p"`
	MaxTokens        api.Opt[int]      `yaml:"max_tokens"`
	FrequencyPenalty api.Opt[float64]  `yaml:"frequency_penalty"`
	PresencePenalty  api.Opt[float64]  `yaml:"presence_penalty"`
	Logprobs         api.Opt[bool]     `yaml:"logprobs"`
	TopLogprobs      api.Opt[int]      `yaml:"top_logprobs"`
	Stop             api.Opt[[]string] `yaml:"stop"`
}

// Display returns the model name with its alias, if one is configured.
func (m *ModelConfig) Display() string {
	if m.Alias != "" {
		return m.Name + " (" + m.Alias + ")"
	}
	return m.Name
}
