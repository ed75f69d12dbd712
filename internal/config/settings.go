package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// settingsDoc is the persisted JSON document: admin-changeable defaults and
// the cached speech model discovery results.
type settingsDoc struct {
	DefaultModel    string              `json:"default_model"`
	TTSPreset       string              `json:"default_tts_preset,omitempty"`
	MarkdownToImage bool                `json:"md_to_pic"`
	TTSModels       map[string][]string `json:"tts_models,omitempty"`
}

// Settings is the mutable, persisted part of the configuration. Every setter
// rewrites the backing file, so an admin change survives restarts.
type Settings struct {
	mu   sync.Mutex
	path string
	doc  settingsDoc
}

// LoadSettings reads the settings document, returning zero-value settings
// when the file does not exist yet.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// save rewrites the document atomically. Callers hold s.mu.
func (s *Settings) save() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *Settings) DefaultModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.DefaultModel
}

// seedDefaultModel fills the in-memory default without touching the file;
// used at load time when no persisted default exists yet.
func (s *Settings) seedDefaultModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.DefaultModel == "" {
		s.doc.DefaultModel = name
	}
}

func (s *Settings) SetDefaultModel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.DefaultModel = name
	return s.save()
}

func (s *Settings) TTSPreset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.TTSPreset
}

func (s *Settings) SetTTSPreset(preset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.TTSPreset = preset
	return s.save()
}

func (s *Settings) MarkdownToImage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.MarkdownToImage
}

func (s *Settings) SetMarkdownToImage(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.MarkdownToImage = enabled
	return s.save()
}

// TTSModels returns the cached speech model/speaker table.
func (s *Settings) TTSModels() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.doc.TTSModels))
	for model, speakers := range s.doc.TTSModels {
		out[model] = append([]string(nil), speakers...)
	}
	return out
}

// CacheTTSModels replaces the cached speech model/speaker table.
func (s *Settings) CacheTTSModels(models map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.TTSModels = models
	return s.save()
}
