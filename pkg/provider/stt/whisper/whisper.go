// Package whisper provides local speech-to-text through whisper.cpp, either
// via a running whisper-server ([Server]) or via the cgo bindings linked into
// the binary ([Native], built with the "whisper" tag).
//
// whisper.cpp transcribes whole recordings rather than streams. A session
// therefore cuts the audio into utterances with a VAD engine and transcribes
// each utterance once it ends. The onset of speech is reported as an empty
// partial; an utterance that outgrows the maximum length is transcribed in
// pieces, each but the last delivered as a segment final. whisper has no
// keyword boosting, so the candidate vocabulary becomes the initial prompt,
// which biases decoding towards those words.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/choicerec/pkg/audio"
	"github.com/MrWong99/choicerec/pkg/provider/stt"
	"github.com/MrWong99/choicerec/pkg/provider/vad"
	"github.com/MrWong99/choicerec/pkg/provider/vad/energy"
	"github.com/MrWong99/choicerec/pkg/types"
)

const (
	defaultLanguage     = "en"
	defaultSampleRate   = 16000
	defaultMaxUtterance = 10 * time.Second

	// frameMs is the duration of the frames handed to the VAD.
	frameMs = 20

	// prerollFrames is the audio kept ahead of a speech onset, since the VAD
	// confirms speech only some frames after it began.
	prerollFrames = 10

	flushTimeout = 30 * time.Second
)

// Request is one utterance to transcribe.
type Request struct {
	// Samples is 16-bit mono PCM.
	Samples []int16

	// SampleRate of Samples in Hz.
	SampleRate int

	// Language is the spoken language, e.g. "en".
	Language string

	// Prompt is the initial prompt that primes the decoder.
	Prompt string
}

// Duration returns the length of the utterance.
func (r Request) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Transcriber runs whisper inference on a complete utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (string, error)
}

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithLanguage sets the default language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the default sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithVAD replaces the engine that splits the stream into utterances.
// Defaults to the energy engine with a 500ms hangover.
func WithVAD(e vad.Engine) Option {
	return func(p *Provider) { p.vad = e }
}

// WithMaxUtterance sets the longest stretch of speech transcribed in one
// piece. Defaults to 10s.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Provider) { p.maxUtterance = d }
}

// Provider implements stt.Provider on top of a [Transcriber].
type Provider struct {
	transcriber  Transcriber
	vad          vad.Engine
	language     string
	sampleRate   int
	maxUtterance time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New returns a provider that transcribes utterances with t.
func New(t Transcriber, opts ...Option) (*Provider, error) {
	if t == nil {
		return nil, errors.New("whisper: transcriber must not be nil")
	}
	p := &Provider{
		transcriber:  t,
		language:     defaultLanguage,
		sampleRate:   defaultSampleRate,
		maxUtterance: defaultMaxUtterance,
	}
	for _, o := range opts {
		o(p)
	}
	if p.vad == nil {
		p.vad = energy.New(energy.WithHangover(500 * time.Millisecond))
	}
	return p, nil
}

// StartStream opens a session. cfg.Keywords become the initial prompt; the
// grammar is ignored.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	// whisper takes ISO 639-1 codes: "en-US" becomes "en".
	lang, _, _ = strings.Cut(strings.ToLower(lang), "-")
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := max(cfg.Channels, 1)

	detector, err := p.vad.NewSession(vad.Config{SampleRate: sr, FrameSizeMs: frameMs})
	if err != nil {
		return nil, fmt.Errorf("whisper: vad session: %w", err)
	}

	s := &session{
		transcriber: p.transcriber,
		detector:    detector,
		language:    lang,
		sampleRate:  sr,
		channels:    ch,
		maxSamples:  int(int64(sr) * int64(p.maxUtterance) / int64(time.Second)),
		prompt:      Prompt(cfg.Keywords),
		audio:       make(chan []byte, 256),
		partials:    make(chan types.Transcript, 64),
		finals:      make(chan types.Transcript, 64),
		done:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop(ctx)

	slog.Debug("whisper: stream started", "language", lang, "sample_rate", sr, "keywords", len(cfg.Keywords))
	return s, nil
}

// Prompt returns the initial prompt for a keyword list: the distinct
// keywords in order, separated by commas.
func Prompt(keywords []types.KeywordBoost) string {
	seen := make(map[string]struct{}, len(keywords))
	words := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		w := strings.TrimSpace(kw.Keyword)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return strings.Join(words, ", ")
}

// ---- session ----

type session struct {
	transcriber Transcriber
	detector    vad.SessionHandle
	language    string
	sampleRate  int
	channels    int
	maxSamples  int

	mu     sync.Mutex
	prompt string

	audio    chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

// SendAudio queues a chunk of 16-bit little-endian PCM.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

func (s *session) Partials() <-chan types.Transcript { return s.partials }

func (s *session) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords replaces the initial prompt of the following utterances.
func (s *session) SetKeywords(keywords []types.KeywordBoost) error {
	p := Prompt(keywords)
	s.mu.Lock()
	s.prompt = p
	s.mu.Unlock()
	return nil
}

// Close transcribes the utterance in progress and ends the session.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.detector.Close()
	})
	return err
}

func (s *session) currentPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// utterance is the speech collected since the last onset.
type utterance struct {
	samples  []int16
	start    time.Duration
	speaking bool
}

// loop owns all buffering state. It frames the incoming audio for the VAD,
// collects speech and transcribes it when the VAD reports its end.
func (s *session) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	frameBytes := s.sampleRate * frameMs / 1000 * 2 * s.channels
	var (
		pending []byte
		preroll [][]int16
		u       utterance
		elapsed time.Duration
	)

	flush := func(fctx context.Context, segment bool) {
		if len(u.samples) == 0 {
			return
		}
		req := Request{Samples: u.samples, SampleRate: s.sampleRate, Language: s.language, Prompt: s.currentPrompt()}
		start := u.start
		u.samples, u.start = nil, elapsed

		text, err := s.transcriber.Transcribe(fctx, req)
		if err != nil {
			slog.Warn("whisper: transcription failed", "err", err, "duration", req.Duration())
		}
		t := types.Transcript{
			Text:      strings.TrimSpace(text),
			IsFinal:   true,
			Segment:   segment,
			Timestamp: start,
			Duration:  req.Duration(),
		}
		select {
		case s.finals <- t:
		default:
			slog.Warn("whisper: final dropped, consumer too slow")
		}
	}

	frame := func(f []byte) {
		mono := audio.Downmix(audio.Decode(f), s.channels)
		ev, err := s.detector.ProcessFrame(audio.Encode(mono))
		at := elapsed
		elapsed += time.Duration(len(mono)) * time.Second / time.Duration(s.sampleRate)
		if err != nil {
			slog.Debug("whisper: vad frame", "err", err)
			return
		}

		switch ev.Type {
		case vad.SpeechStart:
			u.speaking = true
			u.start = max(0, at-time.Duration(len(preroll)*frameMs)*time.Millisecond)
			for _, p := range preroll {
				u.samples = append(u.samples, p...)
			}
			preroll = preroll[:0]
			u.samples = append(u.samples, mono...)
			select {
			case s.partials <- types.Transcript{Timestamp: u.start}:
			default:
			}
		case vad.SpeechContinue:
			u.samples = append(u.samples, mono...)
			if s.maxSamples > 0 && len(u.samples) >= s.maxSamples {
				flush(ctx, true)
			}
		case vad.SpeechEnd:
			u.samples = append(u.samples, mono...)
			u.speaking = false
			flush(ctx, false)
		default:
			if len(preroll) == prerollFrames {
				preroll = preroll[1:]
			}
			preroll = append(preroll, mono)
		}
	}

	consume := func(buf []byte) []byte {
		for len(buf) >= frameBytes {
			frame(buf[:frameBytes])
			buf = buf[frameBytes:]
		}
		return buf
	}

	finish := func() {
		if !u.speaking {
			return
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		flush(fctx, false)
	}

	for {
		select {
		case <-ctx.Done():
			finish()
			return
		case <-s.done:
			// Audio queued before Close still belongs to the session.
			for len(s.audio) > 0 {
				pending = append(pending, <-s.audio...)
			}
			pending = consume(pending)
			finish()
			return
		case chunk := <-s.audio:
			pending = consume(append(pending, chunk...))
		}
	}
}
