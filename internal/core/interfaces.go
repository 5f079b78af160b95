package core

import "context"

// Message is one turn of a conversation history.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// ChatModel produces a conversational completion.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ChatRequest is a single completion request. Model is optional and selects a
// provider model by name; empty means the provider default.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	History      []Message
	UserText     string
}

// Synthesizer renders text as speech in the given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// VoiceCloner manages provider-side cloned voices.
type VoiceCloner interface {
	// CloneVoice creates a new voice from a sample and returns its handle.
	CloneVoice(ctx context.Context, name string, sample []byte) (string, error)
	// AddVoiceSample appends a training sample to an existing voice.
	AddVoiceSample(ctx context.Context, voiceID string, sample []byte) error
	// DeleteVoice releases a voice and its provider-side slot.
	DeleteVoice(ctx context.Context, voiceID string) error
}
