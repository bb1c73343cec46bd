// Package energy implements a vad.Engine that classifies frames by their
// signal level. It needs no model and no cgo, which makes it a reasonable
// onset detector for close-talking microphones and recorded answers.
//
// The RMS level of a frame is mapped linearly from [FloorDB, CeilDB] dBFS
// onto a speech probability in [0, 1]. Speech starts after MinSpeech of
// consecutive frames at or above the speech threshold and ends after
// Hangover of consecutive frames below the silence threshold.
package energy

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/choicerec/pkg/audio"
	"github.com/MrWong99/choicerec/pkg/provider/vad"
)

const (
	// FloorDB is the level mapped to probability 0.
	FloorDB = -60.0

	// CeilDB is the level mapped to probability 1.
	CeilDB = -20.0

	defaultSpeechThreshold  = 0.5
	defaultSilenceThreshold = 0.35
	defaultMinSpeech        = 60 * time.Millisecond
	defaultHangover         = 300 * time.Millisecond
)

// Option configures an [Engine].
type Option func(*Engine)

// WithMinSpeech sets how long the level has to stay above the speech
// threshold before speech starts. Default: 60ms.
func WithMinSpeech(d time.Duration) Option {
	return func(e *Engine) { e.minSpeech = d }
}

// WithHangover sets how long the level has to stay below the silence
// threshold before speech ends. Default: 300ms.
func WithHangover(d time.Duration) Option {
	return func(e *Engine) { e.hangover = d }
}

// Engine creates energy-based sessions. It is immutable and safe for
// concurrent use.
type Engine struct {
	minSpeech time.Duration
	hangover  time.Duration
}

var _ vad.Engine = (*Engine)(nil)

// New returns an engine configured with opts.
func New(opts ...Option) *Engine {
	e := &Engine{minSpeech: defaultMinSpeech, hangover: defaultHangover}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = max(defaultSpeechThreshold, cfg.SilenceThreshold)
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = min(defaultSilenceThreshold, cfg.SpeechThreshold)
	}
	frame := time.Duration(cfg.FrameSizeMs) * time.Millisecond
	return &session{
		cfg:      cfg,
		maxBytes: cfg.FrameBytes(),
		onset:    frames(e.minSpeech, frame),
		hangover: frames(e.hangover, frame),
	}, nil
}

// frames returns the number of frames covering d, at least one.
func frames(d, frame time.Duration) int {
	return max(1, int((d+frame-1)/frame))
}

type session struct {
	cfg      vad.Config
	maxBytes int
	onset    int
	hangover int

	speaking bool
	loud     int
	quiet    int
	closed   bool
}

// ProcessFrame implements [vad.SessionHandle].
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, fmt.Errorf("energy: session closed")
	}
	if len(frame) > s.maxBytes || len(frame)%2 != 0 {
		return vad.Event{}, fmt.Errorf("energy: frame of %d bytes does not fit %dms at %d Hz",
			len(frame), s.cfg.FrameSizeMs, s.cfg.SampleRate)
	}

	p := Probability(audio.Decode(frame))
	ev := vad.Event{Probability: p}

	if !s.speaking {
		if p >= s.cfg.SpeechThreshold {
			s.loud++
		} else {
			s.loud = 0
		}
		if s.loud >= s.onset {
			s.speaking, s.loud, s.quiet = true, 0, 0
			ev.Type = vad.SpeechStart
			return ev, nil
		}
		ev.Type = vad.Silence
		return ev, nil
	}

	if p < s.cfg.SilenceThreshold {
		s.quiet++
	} else {
		s.quiet = 0
	}
	if s.quiet >= s.hangover {
		s.speaking, s.loud, s.quiet = false, 0, 0
		ev.Type = vad.SpeechEnd
		return ev, nil
	}
	ev.Type = vad.SpeechContinue
	return ev, nil
}

// Reset implements [vad.SessionHandle].
func (s *session) Reset() {
	s.speaking, s.loud, s.quiet = false, 0, 0
}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.closed = true
	return nil
}

// Probability maps the RMS level of samples onto [0, 1].
func Probability(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v) / 32768
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	return math.Min(1, math.Max(0, (db-FloorDB)/(CeilDB-FloorDB)))
}
