// Package tts resolves text and a voice identity to speech audio through an
// ordered provider chain.
package tts

import (
	"context"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/metrics"
	"github.com/rs/zerolog"
)

// Provider is one link of the synthesis chain. Voice, when set, overrides the
// requested voice; the fallback uses it to pin a neutral stock voice.
type Provider struct {
	Name  string
	Synth core.Synthesizer
	Voice string
}

// Gateway tries the primary provider with the requested voice, then the
// fallback with its fixed voice. There are no retries beyond that one hop.
type Gateway struct {
	primary      Provider
	fallback     *Provider
	defaultVoice string
	log          zerolog.Logger
}

func NewGateway(primary Provider, fallback *Provider, defaultVoice string, log zerolog.Logger) *Gateway {
	return &Gateway{
		primary:      primary,
		fallback:     fallback,
		defaultVoice: defaultVoice,
		log:          log.With().Str("component", "tts").Logger(),
	}
}

// DefaultVoice is the persistent trained voice used when no handle is given.
func (g *Gateway) DefaultVoice() string {
	return g.defaultVoice
}

// Synthesize returns audio, or nil when every provider failed. A nil result
// means speech is unavailable and callers fall back to text.
func (g *Gateway) Synthesize(ctx context.Context, text, voiceID string) []byte {
	if text == "" {
		return nil
	}
	if voiceID == "" {
		voiceID = g.defaultVoice
	}

	if audio := g.attempt(ctx, g.primary, text, voiceID); audio != nil {
		return audio
	}
	if g.fallback != nil {
		if audio := g.attempt(ctx, *g.fallback, text, voiceID); audio != nil {
			return audio
		}
	}
	g.log.Warn().Str("voice_id", voiceID).Err(core.ErrSynthesis).Msg("all providers failed, returning text only")
	return nil
}

func (g *Gateway) attempt(ctx context.Context, p Provider, text, voiceID string) []byte {
	if p.Synth == nil {
		return nil
	}
	if p.Voice != "" {
		voiceID = p.Voice
	}
	audio, err := p.Synth.Synthesize(ctx, text, voiceID)
	if err != nil || len(audio) == 0 {
		metrics.SynthesisCount.WithLabelValues(p.Name, metrics.OutcomeError).Inc()
		g.log.Warn().Err(err).Str("provider", p.Name).Str("voice_id", voiceID).Msg("synthesis failed")
		return nil
	}
	metrics.SynthesisCount.WithLabelValues(p.Name, metrics.OutcomeOK).Inc()
	return audio
}
