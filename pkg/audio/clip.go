// Package audio holds decoded recordings and the signal measurements Orato
// routes on.
//
// A [Clip] keeps both the original WAV bytes (forwarded verbatim to remote
// recognizers and aligners) and a mono float32 rendition in [-1, 1] used for
// local measurements and the native whisper.cpp recognizer. Decoding is done
// with github.com/go-audio/wav; only PCM WAV input is supported.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned when the input is not a valid PCM WAV stream.
var ErrNotWAV = errors.New("audio: not a valid PCM WAV stream")

// Clip is a decoded mono recording.
type Clip struct {
	// Name identifies the clip in logs and temp files (usually the upload
	// file name without extension).
	Name string

	// WAV is the original encoded file.
	WAV []byte

	// Samples is the down-mixed signal normalised to [-1, 1].
	Samples []float32

	// SampleRate is the sample rate of Samples in Hz.
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the playback length in seconds.
func (c *Clip) Seconds() float64 { return c.Duration().Seconds() }

// Decode parses a WAV file held in memory.
func Decode(name string, data []byte) (*Clip, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode %q: %w", name, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrNotWAV
	}

	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(d.BitDepth)
	}
	return &Clip{
		Name:       name,
		WAV:        data,
		Samples:    downmix(buf.Data, buf.Format.NumChannels, depth),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// Load reads and decodes a WAV file from disk.
func Load(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %q: %w", path, err)
	}
	return Decode(stem(path), data)
}

// Read decodes a WAV stream. The whole stream is buffered.
func Read(name string, r io.Reader) (*Clip, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("audio: read %q: %w", name, err)
	}
	return Decode(name, data)
}

// downmix averages interleaved integer samples into normalised mono floats.
func downmix(data []int, channels, bitDepth int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	frames := len(data) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(data[i*channels+ch]) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Encode renders mono samples in [-1, 1] as a 16-bit PCM WAV file.
func Encode(samples []float32, sampleRate int) ([]byte, error) {
	ints := make([]int, len(samples))
	for i, s := range samples {
		v := int(s * 32767)
		ints[i] = max(-32768, min(32767, v))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: close wav: %w", err)
	}
	return out.buf, nil
}

// FromSamples builds a Clip (including its WAV encoding) from raw samples.
func FromSamples(name string, samples []float32, sampleRate int) (*Clip, error) {
	data, err := Encode(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return &Clip{Name: name, WAV: data, Samples: samples, SampleRate: sampleRate}, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	b.pos = pos
	return pos, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
