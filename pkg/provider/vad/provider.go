// Package vad defines the Engine interface for voice activity detection.
//
// A VAD engine classifies PCM frames as speech or silence and surfaces the
// result as a stateful per-stream session. The recognition pipeline uses it to
// mark the onset of an answer locally, so an utterance starts (and its
// watchdog runs) from the moment the speaker begins, even when the speech
// engine reports no speech-start event of its own.
//
// ProcessFrame is synchronous and must not block: it runs inside the loop that
// streams audio to the speech engine.
package vad

import "fmt"

// Config holds the parameters of a VAD session.
type Config struct {
	// SampleRate is the sample rate of the 16-bit mono PCM frames in Hz.
	SampleRate int

	// FrameSizeMs is the duration of a full frame. Shorter frames (the tail of
	// an input) are accepted; longer ones are rejected.
	FrameSizeMs int

	// SpeechThreshold is the speech probability at or above which a frame
	// counts as speech. Range: [0, 1]. Zero selects the engine default.
	SpeechThreshold float64

	// SilenceThreshold is the speech probability below which a frame counts
	// as silence. Must not exceed SpeechThreshold. Zero selects the engine
	// default.
	SilenceThreshold float64
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("vad: sample rate %d must be positive", c.SampleRate)
	case c.FrameSizeMs <= 0:
		return fmt.Errorf("vad: frame size %dms must be positive", c.FrameSizeMs)
	case c.SpeechThreshold < 0 || c.SpeechThreshold > 1:
		return fmt.Errorf("vad: speech threshold %.2f is out of range [0, 1]", c.SpeechThreshold)
	case c.SilenceThreshold < 0 || c.SilenceThreshold > 1:
		return fmt.Errorf("vad: silence threshold %.2f is out of range [0, 1]", c.SilenceThreshold)
	case c.SpeechThreshold > 0 && c.SilenceThreshold > c.SpeechThreshold:
		return fmt.Errorf("vad: silence threshold %.2f exceeds speech threshold %.2f", c.SilenceThreshold, c.SpeechThreshold)
	}
	return nil
}

// FrameBytes returns the size in bytes of a full 16-bit mono frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// EventType enumerates per-frame detection results.
type EventType int

const (
	// SpeechStart marks the frame in which speech was first confirmed.
	SpeechStart EventType = iota

	// SpeechContinue marks a frame inside a speech segment.
	SpeechContinue

	// SpeechEnd marks the frame in which the speech segment was closed.
	SpeechEnd

	// Silence marks a frame outside any speech segment.
	Silence
)

// String returns the lower-case event name.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is the detection result for a single frame.
type Event struct {
	Type EventType

	// Probability is the speech probability of the frame in [0, 1].
	Probability float64
}

// SessionHandle is the detection state of one audio stream. A session is not
// safe for concurrent use.
type SessionHandle interface {
	// ProcessFrame classifies one frame of little-endian 16-bit mono PCM.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears the detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine creates VAD sessions. Implementations must be safe for concurrent
// use.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
