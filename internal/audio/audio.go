// Package audio holds the audio types that flow between corpora and
// transcription backends, plus WAV decoding, encoding and resampling.
//
// Everything handed to a backend is mono float32 at TargetSampleRate.
package audio

import (
	"context"
	"fmt"
	"time"
)

// TargetSampleRate is the only rate backends ever see.
const TargetSampleRate = 16000

// Waveform is decoded mono audio tagged with its sample rate.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the waveform duration.
func (w *Waveform) Seconds() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Kind is the form a Ref carries its audio in.
type Kind int

const (
	KindNone Kind = iota
	KindPath
	KindWaveform
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindWaveform:
		return "waveform"
	default:
		return "none"
	}
}

// FetchFunc loads remote audio into a waveform.
type FetchFunc func(ctx context.Context) (*Waveform, error)

// Ref points at a sample's audio. It is either a path to a WAV file, a
// decoded waveform, or a pending remote fetch that Resolve turns into a
// waveform.
type Ref struct {
	Path     string
	Waveform *Waveform

	label string
	fetch FetchFunc
}

// PathRef references a WAV file on disk.
func PathRef(path string) Ref { return Ref{Path: path} }

// WaveformRef references decoded audio.
func WaveformRef(w *Waveform) Ref { return Ref{Waveform: w} }

// RemoteRef references audio that must be fetched before use. label names
// the remote object in errors and logs.
func RemoteRef(label string, fetch FetchFunc) Ref {
	return Ref{label: label, fetch: fetch}
}

// Kind reports what the ref currently carries. A pending remote ref is KindNone.
func (r Ref) Kind() Kind {
	switch {
	case r.Waveform != nil:
		return KindWaveform
	case r.Path != "":
		return KindPath
	default:
		return KindNone
	}
}

func (r Ref) String() string {
	switch {
	case r.Waveform != nil:
		return fmt.Sprintf("waveform(%.2fs@%dHz)", r.Waveform.Seconds(), r.Waveform.SampleRate)
	case r.Path != "":
		return r.Path
	case r.label != "":
		return r.label
	default:
		return "<empty>"
	}
}

// Resolve fetches a pending ref and conforms the result to mono
// TargetSampleRate. Paths already at the target rate stay paths; other
// paths are decoded and resampled into a waveform.
func (r Ref) Resolve(ctx context.Context) (Ref, error) {
	if r.fetch != nil && r.Waveform == nil && r.Path == "" {
		w, err := r.fetch(ctx)
		if err != nil {
			return Ref{}, fmt.Errorf("audio: fetch %s: %w", r.label, err)
		}
		return WaveformRef(Resample(w, TargetSampleRate)), nil
	}

	switch r.Kind() {
	case KindWaveform:
		if r.Waveform.SampleRate == TargetSampleRate {
			return r, nil
		}
		return WaveformRef(Resample(r.Waveform, TargetSampleRate)), nil
	case KindPath:
		info, err := ReadInfo(r.Path)
		if err != nil {
			return Ref{}, err
		}
		if info.SampleRate == TargetSampleRate && info.Channels == 1 {
			return r, nil
		}
		w, err := ReadFile(r.Path)
		if err != nil {
			return Ref{}, err
		}
		return WaveformRef(Resample(w, TargetSampleRate)), nil
	default:
		return Ref{}, fmt.Errorf("audio: empty reference")
	}
}

// Duration returns the audio length. Pending remote refs must be resolved first.
func (r Ref) Duration() (time.Duration, error) {
	switch r.Kind() {
	case KindWaveform:
		return time.Duration(r.Waveform.Seconds() * float64(time.Second)), nil
	case KindPath:
		info, err := ReadInfo(r.Path)
		if err != nil {
			return 0, err
		}
		return info.Duration, nil
	default:
		return 0, fmt.Errorf("audio: duration of unresolved reference %s", r)
	}
}
