package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/lukasbauer/evervoice/internal/core"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io"

// DefaultElevenLabsVoice is used when no voice is configured.
const DefaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"

// ElevenLabsClient synthesizes speech and manages cloned voices on ElevenLabs.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	modelID    string
	stability  float64
	similarity float64
	httpClient *http.Client
}

var (
	_ core.Synthesizer = (*ElevenLabsClient)(nil)
	_ core.VoiceCloner = (*ElevenLabsClient)(nil)
)

// ElevenLabsConfig holds configuration for the ElevenLabs client.
type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string       // optional, for tests
	ModelID    string       // e.g., "eleven_multilingual_v2"
	Stability  float64      // 0.0-1.0, use -1 for default (0.5)
	Similarity float64      // 0.0-1.0, use -1 for default (0.75)
	HTTPClient *http.Client // optional shared client with connection pooling
}

// NewElevenLabsClient creates a new ElevenLabs client.
func NewElevenLabsClient(cfg ElevenLabsConfig) *ElevenLabsClient {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}
	stability := cfg.Stability
	if stability < 0 {
		stability = 0.5
	}
	similarity := cfg.Similarity
	if similarity < 0 {
		similarity = 0.75
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ElevenLabsClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		modelID:    modelID,
		stability:  stability,
		similarity: similarity,
		httpClient: httpClient,
	}
}

// ttsRequest represents an ElevenLabs TTS request.
type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to MP3 speech in the given voice.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if voiceID == "" {
		voiceID = DefaultElevenLabsVoice
	}
	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128", c.baseURL, voiceID)

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

type addVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

// CloneVoice creates an instant voice clone from one sample.
func (c *ElevenLabsClient) CloneVoice(ctx context.Context, name string, sample []byte) (string, error) {
	req, err := c.sampleRequest(ctx, c.baseURL+"/v1/voices/add", name, sample)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out addVoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.VoiceID == "" {
		return "", fmt.Errorf("ElevenLabs API error: empty voice_id")
	}
	return out.VoiceID, nil
}

// AddVoiceSample appends a training sample to an existing voice.
func (c *ElevenLabsClient) AddVoiceSample(ctx context.Context, voiceID string, sample []byte) error {
	req, err := c.sampleRequest(ctx, fmt.Sprintf("%s/v1/voices/%s/edit", c.baseURL, voiceID), voiceID, sample)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// DeleteVoice removes a voice and frees its slot.
func (c *ElevenLabsClient) DeleteVoice(ctx context.Context, voiceID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/v1/voices/%s", c.baseURL, voiceID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *ElevenLabsClient) sampleRequest(ctx context.Context, url, name string, sample []byte) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", name); err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}
	part, err := w.CreateFormFile("files", "sample.mp3")
	if err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}
	if _, err := part.Write(sample); err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

// do sends the request and converts non-2xx responses into errors. The caller
// closes the body on success.
func (c *ElevenLabsClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("xi-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ElevenLabs API error: %s - %s", resp.Status, string(respBody))
	}
	return resp, nil
}
