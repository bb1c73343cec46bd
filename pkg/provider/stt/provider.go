// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider wraps a streaming recognition service and exposes a uniform
// session abstraction: once opened, a [SessionHandle] accepts raw PCM audio
// and emits two streams of transcripts. Partials are low-latency guesses
// that may change; finals are the provider's committed results. A partial
// with empty text signals that the provider detected the onset of speech.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/choicerec/pkg/types"
)

// ErrNotSupported is returned by optional session operations a provider
// cannot perform.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 tag for recognition (e.g., "en-US"). Empty lets
	// the provider auto-detect the language if it can.
	Language string

	// Keywords are vocabulary hints that raise the recognition probability of
	// the candidate words.
	Keywords []types.KeywordBoost

	// Grammar is an SRGS XML grammar restricting recognition to the candidate
	// phrases. Providers without grammar support ignore it and rely on
	// Keywords instead.
	Grammar []byte
}

// SessionHandle is an open streaming session. Callers must call Close when
// the session is no longer needed. All methods must be safe for concurrent
// use.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM audio matching the StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. The channel is closed when the
	// session ends.
	Partials() <-chan types.Transcript

	// Finals emits committed transcripts. The channel is closed when the
	// session ends.
	Finals() <-chan types.Transcript

	// SetKeywords replaces the active keyword list without restarting the
	// session. Providers that cannot do this return [ErrNotSupported].
	SetKeywords(keywords []types.KeywordBoost) error

	// Close terminates the session, flushes pending audio and releases all
	// resources. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new session. The returned handle is ready to
	// accept audio immediately; the caller owns it and must close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
