package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/choicerec/pkg/types"
)

// DefaultFrame is the frame duration used when none is given.
const DefaultFrame = 20 * time.Millisecond

// Reader yields fixed-duration mono frames at a target sample rate. Input
// with more channels is downmixed, input at another rate is resampled.
// A Reader is not safe for concurrent use.
type Reader struct {
	read    func(n int) ([]int16, error)
	in      Format
	rate    int
	frame   time.Duration
	elapsed time.Duration
	eof     bool
}

func newReader(read func(int) ([]int16, error), in Format, rate int, frame time.Duration) (*Reader, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, fmt.Errorf("audio: target sample rate %d must be positive", rate)
	}
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Reader{read: read, in: in, rate: rate, frame: frame}, nil
}

// NewPCMReader reads raw 16-bit little-endian interleaved PCM in the format
// in from r.
func NewPCMReader(r io.Reader, in Format, rate int, frame time.Duration) (*Reader, error) {
	var buf []byte
	read := func(n int) ([]int16, error) {
		if cap(buf) < n*2 {
			buf = make([]byte, n*2)
		}
		got, err := io.ReadFull(r, buf[:n*2])
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			err = nil
		case err != nil:
			return nil, err
		}
		return Decode(buf[:got]), err
	}
	return newReader(read, in, rate, frame)
}

// NewWAVReader reads a RIFF/WAVE stream. The source format comes from the
// file header; 8, 16, 24 and 32 bit integer PCM is accepted.
func NewWAVReader(rs io.ReadSeeker, rate int, frame time.Duration) (*Reader, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("audio: invalid wav: %w", err)
		}
		return nil, errors.New("audio: invalid wav")
	}
	depth := int(dec.BitDepth)
	switch depth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("audio: unsupported wav bit depth %d", depth)
	}
	in := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}

	buf := &goaudio.IntBuffer{Format: dec.Format()}
	read := func(n int) ([]int16, error) {
		if cap(buf.Data) < n {
			buf.Data = make([]int, n)
		}
		buf.Data = buf.Data[:n]
		got, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, err
		}
		if got == 0 {
			return nil, io.EOF
		}
		out := make([]int16, got)
		for i, v := range buf.Data[:got] {
			out[i] = toInt16(v, depth)
		}
		return out, nil
	}
	return newReader(read, in, rate, frame)
}

// toInt16 scales a sample of the given bit depth to 16 bits. 8-bit WAV is
// unsigned.
func toInt16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// Open opens path as audio input. "-" reads raw PCM in the format in from
// stdin, a ".wav" file is decoded from its header, anything else is read as
// raw PCM in the format in. The returned closer releases the file.
func Open(path string, in Format, rate int, frame time.Duration) (*Reader, io.Closer, error) {
	if path == "-" {
		r, err := NewPCMReader(os.Stdin, in, rate, frame)
		return r, io.NopCloser(os.Stdin), err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	var r *Reader
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		r, err = NewWAVReader(f, rate, frame)
	} else {
		r, err = NewPCMReader(f, in, rate, frame)
	}
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}

// Source returns the format of the input.
func (r *Reader) Source() Format { return r.in }

// Next returns the next frame. The last frame may be shorter than the frame
// duration. Next returns io.EOF once the input is exhausted.
func (r *Reader) Next() (types.AudioFrame, error) {
	if r.eof {
		return types.AudioFrame{}, io.EOF
	}
	want := int(int64(r.in.SampleRate)*int64(r.frame)/int64(time.Second)) * r.in.Channels
	samples, err := r.read(want)
	if errors.Is(err, io.EOF) || (err == nil && len(samples) < want) {
		r.eof = true
		err = nil
	}
	if err != nil {
		return types.AudioFrame{}, fmt.Errorf("audio: read: %w", err)
	}
	if len(samples) == 0 {
		return types.AudioFrame{}, io.EOF
	}

	mono := Resample(Downmix(samples, r.in.Channels), r.in.SampleRate, r.rate)
	frame := types.AudioFrame{
		Data:       Encode(mono),
		SampleRate: r.rate,
		Channels:   1,
		Timestamp:  r.elapsed,
	}
	r.elapsed += time.Duration(len(samples)/r.in.Channels) * time.Second / time.Duration(r.in.SampleRate)
	return frame, nil
}

// Stream passes every frame of r to send until the input is exhausted, send
// fails or ctx is done. With realtime set, frames are paced at the speed they
// would be captured. Stream returns nil at the end of the input.
func Stream(ctx context.Context, r *Reader, realtime bool, send func(types.AudioFrame) error) error {
	var tick <-chan time.Time
	if realtime {
		t := time.NewTicker(r.frame)
		defer t.Stop()
		tick = t.C
	}
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := send(frame); err != nil {
			return err
		}
		if tick == nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}
