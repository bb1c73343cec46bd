package energy_test

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/choicerec/pkg/audio"
	"github.com/MrWong99/choicerec/pkg/provider/vad"
	"github.com/MrWong99/choicerec/pkg/provider/vad/energy"
)

var cfg = vad.Config{SampleRate: 16000, FrameSizeMs: 20}

// tone returns a 20ms frame of a 440 Hz sine at the given amplitude.
func tone(amplitude float64) []byte {
	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return audio.Encode(samples)
}

func TestProbability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		samples  []int16
		min, max float64
	}{
		{name: "empty", samples: nil, min: 0, max: 0},
		{name: "digital silence", samples: make([]int16, 320), min: 0, max: 0},
		{name: "quiet", samples: audio.Decode(tone(0.0005)), min: 0, max: 0.1},
		{name: "loud", samples: audio.Decode(tone(0.5)), min: 1, max: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if p := energy.Probability(tc.samples); p < tc.min || p > tc.max {
				t.Errorf("Probability = %v, want in [%v, %v]", p, tc.min, tc.max)
			}
		})
	}
}

func TestSession_Segments(t *testing.T) {
	t.Parallel()

	eng := energy.New(energy.WithMinSpeech(40*time.Millisecond), energy.WithHangover(60*time.Millisecond))
	sess, err := eng.NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	quiet, loud := tone(0), tone(0.5)
	frames := [][]byte{quiet, loud, loud, loud, quiet, quiet, quiet, quiet}
	want := []vad.EventType{
		vad.Silence, vad.Silence, vad.SpeechStart, vad.SpeechContinue,
		vad.SpeechContinue, vad.SpeechContinue, vad.SpeechEnd, vad.Silence,
	}
	for i, f := range frames {
		ev, err := sess.ProcessFrame(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.Type != want[i] {
			t.Errorf("frame %d: got %v, want %v", i, ev.Type, want[i])
		}
	}
}

func TestSession_Reset(t *testing.T) {
	t.Parallel()

	sess, err := energy.New(energy.WithMinSpeech(20 * time.Millisecond)).NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if ev, _ := sess.ProcessFrame(tone(0.5)); ev.Type != vad.SpeechStart {
		t.Fatalf("first loud frame: got %v, want speech_start", ev.Type)
	}
	sess.Reset()
	if ev, _ := sess.ProcessFrame(tone(0.5)); ev.Type != vad.SpeechStart {
		t.Errorf("after Reset: got %v, want speech_start", ev.Type)
	}
}

func TestSession_Errors(t *testing.T) {
	t.Parallel()

	eng := energy.New()
	if _, err := eng.NewSession(vad.Config{SampleRate: 16000}); err == nil {
		t.Error("NewSession accepted a zero frame size")
	}
	if _, err := eng.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 0.3, SilenceThreshold: 0.6}); err == nil {
		t.Error("NewSession accepted a silence threshold above the speech threshold")
	}

	sess, err := eng.NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := sess.ProcessFrame(make([]byte, 642)); err == nil {
		t.Error("ProcessFrame accepted an oversized frame")
	}
	if _, err := sess.ProcessFrame(make([]byte, 100)); err != nil {
		t.Errorf("ProcessFrame rejected a short tail frame: %v", err)
	}
	_ = sess.Close()
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := sess.ProcessFrame(tone(0)); err == nil {
		t.Error("ProcessFrame succeeded after Close")
	}
}
