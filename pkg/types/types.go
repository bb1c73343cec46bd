// Package types holds the data exchanged between speech providers and the
// recognition pipeline. They live here so that providers do not import the
// grammar or hypothesis packages and vice versa.
package types

import "time"

// AudioFrame is a chunk of PCM audio read from an input and sent to a
// speech provider.
type AudioFrame struct {
	// Data is 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks the frame's offset from the start of the stream.
	Timestamp time.Duration
}

// Transcript is a free-form recognition result from an STT provider. Partial
// and final results share this type.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal reports whether the provider committed to this result.
	IsFinal bool

	// Segment marks a final that commits only part of an utterance: the
	// speaker paused but the provider expects more speech. The next
	// transcripts continue the same utterance. Ignored unless IsFinal is set.
	Segment bool

	// Confidence is the overall score in [0, 1]. Zero if not reported.
	Confidence float64

	// Words carries per-word detail when the provider reports it.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint for the provider. Grammar compilation
// emits one per distinct word of the candidate phrases.
type KeywordBoost struct {
	// Keyword is the word to boost.
	Keyword string

	// Boost is the intensity (provider-specific scale).
	Boost float64
}
