package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/lukasbauer/evervoice/internal/core"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAISpeechClient synthesizes with one of OpenAI's stock voices. It serves
// as the generic fallback provider.
type OpenAISpeechClient struct {
	client *openai.Client
	model  openai.SpeechModel
}

var _ core.Synthesizer = (*OpenAISpeechClient)(nil)

// OpenAISpeechConfig holds configuration for the OpenAI speech client.
type OpenAISpeechConfig struct {
	APIKey  string
	BaseURL string // optional, for tests
	Model   string // e.g., "tts-1"
}

func NewOpenAISpeechClient(cfg OpenAISpeechConfig) *OpenAISpeechClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := openai.SpeechModel(cfg.Model)
	if model == "" {
		model = openai.TTSModel1
	}
	return &OpenAISpeechClient{client: openai.NewClientWithConfig(oc), model: model}
}

// Synthesize renders text as MP3. voiceID names a stock voice such as "alloy".
func (c *OpenAISpeechClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	voice := openai.SpeechVoice(voiceID)
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()
	return io.ReadAll(resp)
}
