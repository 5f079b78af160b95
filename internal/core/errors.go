package core

import "errors"

// Provider failures. These are degraded at the service boundary.
var (
	ErrTranscription = errors.New("transcription failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
	ErrClone         = errors.New("voice clone failed")
	ErrTrain         = errors.New("voice training failed")
)

// Storage failures. On critical paths these surface to the caller.
var (
	ErrStorageRead  = errors.New("storage read failed")
	ErrStorageWrite = errors.New("storage write failed")
	ErrNotFound     = errors.New("not found")
	ErrTokenExists  = errors.New("share token already exists")
)

// Validation and flow errors.
var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidSlot       = errors.New("invalid slot")
	ErrInvalidTier       = errors.New("invalid tier")
	ErrInvalidPlatform   = errors.New("invalid platform")
	ErrInvalidTransition = errors.New("invalid wizard transition")
	ErrOutOfEnergy       = errors.New("not enough energy")
	ErrSessionClosed     = errors.New("session closed")
	ErrEmptyAudio        = errors.New("audio is empty")
)
