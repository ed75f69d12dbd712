package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"komoridev/deepshack/internal/core"
)

// DefaultBaseURL is the hosted DeepSeek endpoint; model entries may point at
// any OpenAI-compatible server instead.
const DefaultBaseURL = "https://api.deepseek.com"

// ChatOptions are the per-request settings: endpoint, model name, and
// generation parameters. Parameters carried as Opt values are omitted from
// the request body when not given.
type ChatOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	Prompt  string
	Stream  bool

	Temperature      Opt[float64]
	TopP             Opt[float64]
	MaxTokens        Opt[int]
	FrequencyPenalty Opt[float64]
	PresencePenalty  Opt[float64]
	Logprobs         Opt[bool]
	TopLogprobs      Opt[int]
	Stop             Opt[[]string]

	Tools []ToolSpec
}

func (o *ChatOptions) baseURL() string {
	if o.BaseURL == "" {
		return DefaultBaseURL
	}
	return o.BaseURL
}

// body assembles the JSON request document. The system prompt, when
// configured, is prepended exactly once.
func (o *ChatOptions) body(messages []ChatMessage) map[string]any {
	if o.Prompt != "" {
		messages = append([]ChatMessage{{Role: RoleSystem, Content: o.Prompt}}, messages...)
	}

	body := map[string]any{
		"messages": messages,
		"model":    o.Model,
	}
	if v, ok := o.Temperature.Get(); ok {
		body["temperature"] = v
	}
	if v, ok := o.TopP.Get(); ok {
		body["top_p"] = v
	}
	if v, ok := o.MaxTokens.Get(); ok {
		body["max_tokens"] = v
	}
	if v, ok := o.FrequencyPenalty.Get(); ok {
		body["frequency_penalty"] = v
	}
	if v, ok := o.PresencePenalty.Get(); ok {
		body["presence_penalty"] = v
	}
	if v, ok := o.Logprobs.Get(); ok {
		body["logprobs"] = v
	}
	if v, ok := o.TopLogprobs.Get(); ok {
		body["top_logprobs"] = v
	}
	if v, ok := o.Stop.Get(); ok {
		body["stop"] = v
	}
	if len(o.Tools) > 0 {
		body["tools"] = o.Tools
	}
	return body
}

// Client talks to a chat-completions backend. Non-streaming requests run on
// a bounded timeout; streaming requests bound only the dial and response
// headers, never the body read.
type Client struct {
	http    *http.Client
	stream  *http.Client
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewClient builds a client with the given request timeout for
// non-streaming calls.
func NewClient(timeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		stream: &http.Client{
			Transport: &http.Transport{
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   30 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		logger: core.GetLogger().Named("api"),
	}
}

// Chat sends the conversation to the completions endpoint and returns one
// finished completion, streaming or not according to the options.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatCompletion, error) {
	if opts.Stream {
		return c.chatStream(ctx, messages, opts)
	}
	return c.chatOnce(ctx, messages, opts)
}

func (c *Client) chatOnce(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatCompletion, error) {
	body := opts.body(messages)
	resp, err := c.post(ctx, c.http, opts.baseURL()+"/chat/completions", opts.APIKey, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		ChatCompletion
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if payload.Error != nil {
		return nil, &UpstreamError{Message: payload.Error.Message}
	}
	return &payload.ChatCompletion, nil
}

func (c *Client) chatStream(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatCompletion, error) {
	body := opts.body(messages)
	body["stream"] = true

	resp, err := c.post(ctx, c.stream, opts.baseURL()+"/chat/completions", opts.APIKey, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	acc := NewChunkAccumulator()
	start := time.Now()
	defer core.LogDuration(c.logger, "chat_stream", start)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

scan:
	for scanner.Scan() {
		frame, ok := ParseFrame(scanner.Text())
		if !ok {
			continue
		}
		switch frame.Kind {
		case FrameData:
			if frame.Value == "[DONE]" {
				break scan
			}
			var chunk CompletionChunk
			if err := json.Unmarshal([]byte(frame.Value), &chunk); err != nil {
				c.logger.Errorw("discarding malformed chunk", "payload", frame.Value, "error", err)
				continue
			}
			acc.Merge(&chunk)
		case FrameComment:
			c.logger.Debugw("sse comment", "value", frame.Value)
		case FrameError:
			return nil, &UpstreamError{Message: frame.Value}
		}
	}
	if err := scanner.Err(); err != nil {
		// Keep whatever was merged only as a diagnostic; a torn stream is
		// reported, not silently truncated.
		c.logger.Warnw("stream read failed", "merged", acc.Merged(), "error", err)
		return nil, fmt.Errorf("read stream: %w", err)
	}

	return acc.Completion()
}

// QueryBalance fetches the account balance document. HTTP 404 maps to
// ErrBalanceUnsupported.
func (c *Client) QueryBalance(ctx context.Context, baseURL, apiKey string) (*Balance, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/user/balance", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("balance request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrBalanceUnsupported
	}

	var balance Balance
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	return &balance, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, url, apiKey string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	return resp, nil
}
