package bot

import (
	"context"
	"fmt"
	"strings"
)

// HandleTTSModels discovers the speech backend's model/speaker pairs, caches
// them in the settings document and lists them as presets.
func (b *Bot) HandleTTSModels(ctx context.Context, m Messenger) {
	if b.tts == nil {
		m.SendText("tts is not configured")
		return
	}

	models, err := b.tts.Models(ctx)
	if err != nil {
		b.logger.Errorw("tts model discovery failed", "error", err)
		m.SendText("could not reach the tts backend")
		return
	}

	pairs := make(map[string][]string, len(models))
	for _, model := range models {
		speakers, err := b.tts.Speakers(ctx, model)
		if err != nil {
			b.logger.Warnw("speaker discovery failed", "model", model, "error", err)
			continue
		}
		pairs[model] = speakers
	}
	if err := b.cfg.Settings.CacheTTSModels(pairs); err != nil {
		b.logger.Errorw("caching tts models failed", "error", err)
	}

	var sb strings.Builder
	sb.WriteString("tts presets:")
	for _, model := range models {
		for _, speaker := range pairs[model] {
			fmt.Fprintf(&sb, "\n%s/%s", model, speaker)
		}
	}
	m.SendText(sb.String())
}

// HandleSetTTSPreset activates a model/speaker preset for voice replies, or
// disables voice output when preset is empty.
func (b *Bot) HandleSetTTSPreset(m Messenger, preset string) {
	if preset == "" {
		if err := b.cfg.Settings.SetTTSPreset(""); err != nil {
			b.logger.Errorw("persisting tts preset failed", "error", err)
		}
		m.SendText("voice replies disabled")
		return
	}

	model, speaker, ok := strings.Cut(preset, "/")
	if !ok {
		m.SendText("preset must look like model/speaker")
		return
	}
	if cached := b.cfg.Settings.TTSModels(); len(cached) > 0 {
		found := false
		for _, s := range cached[model] {
			if s == speaker {
				found = true
				break
			}
		}
		if !found {
			m.SendText(fmt.Sprintf("unknown preset %s/%s", model, speaker))
			return
		}
	}

	if err := b.cfg.Settings.SetTTSPreset(preset); err != nil {
		b.logger.Errorw("persisting tts preset failed", "error", err)
		m.SendText("could not persist the preset")
		return
	}
	m.SendText(fmt.Sprintf("voice replies use %s", preset))
}

// HandleSetMarkdown toggles rendering replies as markdown images.
func (b *Bot) HandleSetMarkdown(m Messenger, enabled bool) {
	if err := b.cfg.Settings.SetMarkdownToImage(enabled); err != nil {
		b.logger.Errorw("persisting markdown toggle failed", "error", err)
		m.SendText("could not persist the setting")
		return
	}
	if enabled {
		m.SendText("replies will be rendered as images")
	} else {
		m.SendText("replies will be plain text")
	}
}
