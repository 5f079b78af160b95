// Package stt transcribes recorded speech.
package stt

import "context"

// TranscriptResult represents a speech-to-text transcription result.
type TranscriptResult struct {
	Text         string  // The transcribed text
	Confidence   float64 // Confidence score (0-1)
	SegmentFinal bool    // The segment text will not change
	SpeechFinal  bool    // The speaker paused; the utterance is complete
}

// Stream is a live connection to a streaming STT provider.
type Stream interface {
	// StreamAudio sends audio data to the STT service.
	StreamAudio(ctx context.Context, audio []byte) error

	// Finish tells the provider no more audio follows. Remaining results are
	// delivered before Results is closed.
	Finish() error

	// Results returns a channel that receives transcription results.
	Results() <-chan TranscriptResult

	// Errors returns a channel that receives errors.
	Errors() <-chan error

	// Close closes the connection to the STT service.
	Close() error
}
