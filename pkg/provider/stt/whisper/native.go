//go:build whisper

// The native transcriber links whisper.cpp through its cgo bindings. The
// static library (libwhisper.a) and whisper.h must be reachable through
// LIBRARY_PATH and C_INCLUDE_PATH when building with -tags whisper.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/choicerec/pkg/audio"
)

// nativeRate is the sample rate whisper.cpp models are trained on.
const nativeRate = 16000

// Native transcribes in-process with a whisper.cpp model loaded once and
// shared by all sessions. Every transcription gets its own context, so
// concurrent calls do not interfere.
type Native struct {
	model whisperlib.Model
}

var _ Transcriber = (*Native)(nil)

// NewNative loads the ggml model at modelPath. The caller must Close it.
func NewNative(modelPath string) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Native{model: model}, nil
}

// Close releases the model.
func (n *Native) Close() error {
	return n.model.Close()
}

// Transcribe runs inference on the utterance. req.Prompt is set as the
// initial prompt.
func (n *Native) Transcribe(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if req.Language != "" {
		if err := wctx.SetLanguage(req.Language); err != nil {
			slog.Warn("whisper: unsupported language, using auto-detection", "language", req.Language, "err", err)
		}
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}

	samples := audio.Resample(req.Samples, req.SampleRate, nativeRate)
	pcm := make([]float32, len(samples))
	for i, v := range samples {
		pcm[i] = float32(v) / 32768
	}
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
