package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Info is the header summary of a WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ReadInfo reads the WAV header at path without decoding samples.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("audio: %s is not a valid WAV file", path)
	}
	dur, err := dec.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("audio: duration of %s: %w", path, err)
	}
	return Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur,
	}, nil
}

// ReadFile decodes a PCM WAV file into a mono waveform at its native rate.
func ReadFile(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	w, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	return w, nil
}

// DecodeBytes decodes an in-memory WAV file.
func DecodeBytes(data []byte) (*Waveform, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a PCM WAV stream, downmixes it to mono and normalizes samples
// to [-1.0, 1.0].
func Decode(r io.ReadSeeker) (*Waveform, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV stream")
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("unsupported WAV format %d (want PCM)", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read PCM: %w", err)
	}

	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels < 1 {
		channels = 1
	}

	return &Waveform{
		Samples:    downmix(buf.Data, channels, int(dec.BitDepth)),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// downmix averages interleaved integer frames into normalized mono floats.
func downmix(data []int, channels, bitDepth int) []float32 {
	scale := float32(int(1) << (bitDepth - 1))
	offset := 0
	if bitDepth == 8 {
		// 8-bit PCM is unsigned.
		scale = 128
		offset = 128
	}

	frames := len(data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(data[i*channels+c]-offset) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Encode writes w as 16-bit mono PCM WAV.
func Encode(dst io.WriteSeeker, w *Waveform) error {
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(dst, w.SampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: close wav encoder: %w", err)
	}
	return nil
}

// WriteTemp writes w to a fresh temporary WAV file. The returned cleanup
// removes it and is safe to call more than once.
func WriteTemp(w *Waveform) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "gostt_bench_*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("audio: temp file: %w", err)
	}
	path = f.Name()
	cleanup = func() { _ = os.Remove(path) }

	if err := Encode(f, w); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("audio: close temp file: %w", err)
	}
	return path, cleanup, nil
}
