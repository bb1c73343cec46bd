package audio_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/choicerec/pkg/audio"
)

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		samples  []int16
		channels int
		want     []int16
	}{
		{name: "mono unchanged", samples: []int16{1, 2, 3}, channels: 1, want: []int16{1, 2, 3}},
		{name: "stereo", samples: []int16{100, 200, -100, -200}, channels: 2, want: []int16{150, -150}},
		{name: "no overflow", samples: []int16{32767, 32767}, channels: 2, want: []int16{32767}},
		{name: "three channels", samples: []int16{3, 6, 9}, channels: 3, want: []int16{6}},
		{name: "partial frame dropped", samples: []int16{10, 20, 30}, channels: 2, want: []int16{15}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.Downmix(tc.samples, tc.channels); !slices.Equal(got, tc.want) {
				t.Errorf("Downmix() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	same := []int16{100, 200, 300}
	if got := audio.Resample(same, 16000, 16000); !slices.Equal(got, same) {
		t.Errorf("same rate: got %v", got)
	}

	up := audio.Resample([]int16{1000, 2000}, 16000, 48000)
	if len(up) != 6 {
		t.Fatalf("upsample: got %d samples, want 6", len(up))
	}
	if up[0] != 1000 {
		t.Errorf("upsample: first sample %d, want 1000", up[0])
	}
	if last := up[len(up)-1]; last < 1800 || last > 2000 {
		t.Errorf("upsample: last sample %d, want close to 2000", last)
	}

	down := audio.Resample([]int16{100, 200, 300, 400, 500, 600}, 48000, 16000)
	if !slices.Equal(down, []int16{100, 400}) {
		t.Errorf("downsample: got %v, want [100 400]", down)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 32767, -32768}
	pcm := audio.Encode(samples)
	if len(pcm) != 10 {
		t.Fatalf("Encode: got %d bytes, want 10", len(pcm))
	}
	if pcm[2] != 1 || pcm[3] != 0 {
		t.Errorf("Encode is not little-endian: % x", pcm[2:4])
	}
	if got := audio.Decode(append(pcm, 0x7f)); !slices.Equal(got, samples) {
		t.Errorf("Decode() = %v, want %v", got, samples)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := (audio.Format{SampleRate: 48000, Channels: 2}).String(); got != "48000Hz stereo" {
		t.Errorf("String() = %q", got)
	}
	if err := (audio.Format{SampleRate: 16000, Channels: 1}).Validate(); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	for _, f := range []audio.Format{{SampleRate: 0, Channels: 1}, {SampleRate: 16000, Channels: 0}} {
		if err := f.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", f)
		}
	}
}
