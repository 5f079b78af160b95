// Package audio splices MP3 clips by container concatenation.
package audio

import "bytes"

// Gaps used by the two splice patterns.
const (
	IntroGapMS    = 300
	DialogueGapMS = 400
)

// A silent MPEG-1 Layer III frame: 128 kbps, 44.1 kHz, mono, no padding. The
// zeroed side info means no main data, which decoders play as silence.
const (
	frameBytes   = 417
	frameSamples = 1152
	sampleRate   = 44100
)

var silentFrame = func() []byte {
	f := make([]byte, frameBytes)
	copy(f, []byte{0xFF, 0xFB, 0x90, 0xC0})
	return f
}()

// Silence returns enough silent frames to cover ms milliseconds.
func Silence(ms int) []byte {
	if ms <= 0 {
		return nil
	}
	// ceil(ms * sampleRate / (frameSamples * 1000))
	frames := (ms*sampleRate + frameSamples*1000 - 1) / (frameSamples * 1000)
	return bytes.Repeat(silentFrame, frames)
}

// Concat joins the non-empty clips with gapMS of silence between each pair.
// A single clip is returned unchanged; no clips yields nil.
func Concat(clips [][]byte, gapMS int) []byte {
	var real [][]byte
	for _, c := range clips {
		if len(c) > 0 {
			real = append(real, c)
		}
	}
	switch len(real) {
	case 0:
		return nil
	case 1:
		return real[0]
	}

	gap := Silence(gapMS)
	size := len(gap) * (len(real) - 1)
	for _, c := range real {
		size += len(c)
	}

	out := make([]byte, 0, size)
	for i, c := range real {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, c...)
	}
	return out
}

// SpliceIntro plays intro, a short pause, then main. Without an intro main is
// returned verbatim.
func SpliceIntro(intro, main []byte) []byte {
	if len(intro) == 0 {
		return main
	}
	return Concat([][]byte{intro, main}, IntroGapMS)
}

// SpliceDialogue joins dialogue clips with a longer pause. It returns nil when
// every clip is absent.
func SpliceDialogue(clips [][]byte) []byte {
	return Concat(clips, DialogueGapMS)
}
