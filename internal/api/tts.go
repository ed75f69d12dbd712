package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"komoridev/deepshack/internal/core"
)

// TTSClient talks to a GPT-SoVITS-style speech backend: model discovery,
// speaker listing, and single-utterance inference returning audio bytes.
type TTSClient struct {
	base        string
	accessToken string
	audioDLURL  string
	http        *http.Client
	logger      *zap.SugaredLogger
}

// NewTTSClient builds a speech client for the given backend.
func NewTTSClient(baseURL, accessToken, audioDLURL string) *TTSClient {
	return &TTSClient{
		base:        baseURL,
		accessToken: accessToken,
		audioDLURL:  audioDLURL,
		http:        &http.Client{Timeout: 50 * time.Second},
		logger:      core.GetLogger().Named("tts"),
	}
}

// Models lists the speech models the backend offers.
func (t *TTSClient) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts models: status %d", resp.StatusCode)
	}

	var models []string
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("decode tts models: %w", err)
	}
	return models, nil
}

// Speakers lists the speakers available for a speech model.
func (t *TTSClient) Speakers(ctx context.Context, model string) ([]string, error) {
	resp, err := t.postJSON(ctx, t.base+"/spks", map[string]any{"model": model})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Speakers map[string]any `json:"speakers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode speakers: %w", err)
	}
	if len(payload.Speakers) == 0 {
		return nil, fmt.Errorf("no speakers reported for model %q", model)
	}

	speakers := make([]string, 0, len(payload.Speakers))
	for name := range payload.Speakers {
		speakers = append(speakers, name)
	}
	return speakers, nil
}

// Synthesize renders text with the given model and speaker and returns the
// audio bytes. The backend responds with a download URL, which is fetched in
// a second round trip.
func (t *TTSClient) Synthesize(ctx context.Context, text, model, speaker string) ([]byte, error) {
	body := map[string]any{
		"text":         text,
		"model_name":   model,
		"speaker_name": speaker,
		"app_key":      t.accessToken,
		"access_token": t.accessToken,
		"audio_dl_url": t.audioDLURL,
	}
	t.logger.Debugw("synthesizing", "model", model, "speaker", speaker, "chars", len(text))

	resp, err := t.postJSON(ctx, t.base+"/infer_single", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		AudioURL string `json:"audio_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tts response: %w", err)
	}
	if payload.AudioURL == "" {
		return nil, fmt.Errorf("speech synthesis failed: backend returned no audio url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.AudioURL, nil)
	if err != nil {
		return nil, err
	}
	audio, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer audio.Body.Close()
	return io.ReadAll(audio.Body)
}

func (t *TTSClient) postJSON(ctx context.Context, url string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	return resp, nil
}
