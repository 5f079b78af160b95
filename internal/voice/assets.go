// Package voice stores per-persona audio clips and manages provider-side
// cloned voice handles.
package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/metrics"
	"github.com/lukasbauer/evervoice/internal/objectstore"
	"github.com/rs/zerolog"
)

// Assets is the voice asset store.
type Assets struct {
	blobs        objectstore.Blobs
	cloner       core.VoiceCloner
	defaultVoice string
	log          zerolog.Logger
}

func NewAssets(blobs objectstore.Blobs, cloner core.VoiceCloner, defaultVoice string, log zerolog.Logger) *Assets {
	return &Assets{
		blobs:        blobs,
		cloner:       cloner,
		defaultVoice: defaultVoice,
		log:          log.With().Str("component", "voice").Logger(),
	}
}

// BlobKey is the blob name of a clip: "<user_id>/<slot>_<role>.mp3".
func BlobKey(userID string, role core.Role, slot core.Slot) string {
	return fmt.Sprintf("%s/%s_%s.mp3", userID, slot, role)
}

// DefaultVoiceID is the persistent voice trained by the wizard.
func (a *Assets) DefaultVoiceID() string {
	return a.defaultVoice
}

// UploadClip overwrites the clip in a slot.
func (a *Assets) UploadClip(ctx context.Context, userID string, role core.Role, slot core.Slot, audio []byte) error {
	if len(audio) == 0 {
		return core.ErrEmptyAudio
	}
	if err := a.blobs.Put(ctx, BlobKey(userID, role, slot), audio); err != nil {
		a.log.Error().Err(err).Str("user_id", userID).Str("role", string(role)).Str("slot", string(slot)).Msg("clip upload failed")
		if errors.Is(err, core.ErrStorageWrite) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrStorageWrite, err)
	}
	return nil
}

// GetClip returns the clip in a slot, or nil when the slot is empty.
func (a *Assets) GetClip(ctx context.Context, userID string, role core.Role, slot core.Slot) ([]byte, error) {
	data, err := a.blobs.Get(ctx, BlobKey(userID, role, slot))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, core.ErrStorageRead) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrStorageRead, err)
	}
	return data, nil
}

// HasClip reports whether a slot holds a clip.
func (a *Assets) HasClip(ctx context.Context, userID string, role core.Role, slot core.Slot) (bool, error) {
	data, err := a.GetClip(ctx, userID, role, slot)
	return data != nil, err
}

// DeleteClip empties a slot.
func (a *Assets) DeleteClip(ctx context.Context, userID string, role core.Role, slot core.Slot) error {
	if err := a.blobs.Delete(ctx, BlobKey(userID, role, slot)); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorageWrite, err)
	}
	return nil
}

// TrainDefaultVoice appends a sample to the persistent default voice.
func (a *Assets) TrainDefaultVoice(ctx context.Context, sample []byte) error {
	if len(sample) == 0 {
		return core.ErrEmptyAudio
	}
	if err := a.cloner.AddVoiceSample(ctx, a.defaultVoice, sample); err != nil {
		metrics.VoiceOperations.WithLabelValues("train", metrics.OutcomeError).Inc()
		a.log.Warn().Err(err).Str("voice_id", a.defaultVoice).Msg("voice training failed")
		return fmt.Errorf("%w: %w", core.ErrTrain, err)
	}
	metrics.VoiceOperations.WithLabelValues("train", metrics.OutcomeOK).Inc()
	return nil
}

// CloneGuestVoice creates an ephemeral voice from a guest's sample. On
// failure no handle exists and the caller continues without one.
func (a *Assets) CloneGuestVoice(ctx context.Context, name string, sample []byte) (string, error) {
	if len(sample) == 0 {
		return "", core.ErrEmptyAudio
	}
	id, err := a.cloner.CloneVoice(ctx, name, sample)
	if err != nil {
		metrics.VoiceOperations.WithLabelValues("clone", metrics.OutcomeError).Inc()
		a.log.Warn().Err(err).Str("name", name).Msg("guest voice clone failed")
		return "", fmt.Errorf("%w: %w", core.ErrClone, err)
	}
	metrics.VoiceOperations.WithLabelValues("clone", metrics.OutcomeOK).Inc()
	a.log.Info().Str("voice_id", id).Msg("guest voice cloned")
	return id, nil
}

// DeleteVoice releases a provider voice. Failures are logged and swallowed.
func (a *Assets) DeleteVoice(ctx context.Context, voiceID string) {
	if voiceID == "" {
		return
	}
	if err := a.cloner.DeleteVoice(ctx, voiceID); err != nil {
		metrics.VoiceOperations.WithLabelValues("delete", metrics.OutcomeError).Inc()
		a.log.Warn().Err(err).Str("voice_id", voiceID).Msg("voice delete failed")
		return
	}
	metrics.VoiceOperations.WithLabelValues("delete", metrics.OutcomeOK).Inc()
	a.log.Info().Str("voice_id", voiceID).Msg("voice deleted")
}

// RecordTone stores one of the tone clips and trains the default voice with it.
// A training failure does not undo the stored clip.
func (a *Assets) RecordTone(ctx context.Context, userID string, role core.Role, slot core.Slot, audio []byte) error {
	if !slot.IsTone() {
		return fmt.Errorf("%w: %q is not a tone slot", core.ErrInvalidSlot, slot)
	}
	if err := a.UploadClip(ctx, userID, role, slot, audio); err != nil {
		return err
	}
	if err := a.TrainDefaultVoice(ctx, audio); err != nil {
		a.log.Warn().Err(err).Str("user_id", userID).Str("slot", string(slot)).Msg("tone stored without training")
	}
	return nil
}
