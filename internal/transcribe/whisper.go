//go:build whisper

package transcribe

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
)

// WhisperTranscriber wraps a whisper.cpp model for speech-to-text.
type WhisperTranscriber struct {
	mu    sync.Mutex // whisper_full is not safe on a shared model
	model whisper.Model
}

// NewWhisperTranscriber loads a whisper model from the given path.
// The caller must call Close() when done.
func NewWhisperTranscriber(modelPath string) (Backend, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, errs.Configuration("transcribe: load whisper model %q: %v", modelPath, err)
	}
	return &WhisperTranscriber{model: model}, nil
}

func (t *WhisperTranscriber) Input() audio.Kind { return audio.KindWaveform }

// Close releases the whisper model resources.
func (t *WhisperTranscriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model != nil {
		err := t.model.Close()
		t.model = nil
		return err
	}
	return nil
}

// Transcribe runs the model over mono 16kHz float32 samples. A cancelled
// ctx aborts before the encoder starts.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, in audio.Ref) (string, error) {
	if in.Kind() != audio.KindWaveform {
		return "", fmt.Errorf("transcribe: whisper wants a waveform, got %s", in.Kind())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return "", fmt.Errorf("transcribe: whisper model is closed")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: create context: %w", err)
	}

	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(in.Waveform.Samples, keepGoing, nil, nil); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("transcribe: process: %w", err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: next segment: %w", err)
		}
		segments = append(segments, seg.Text)
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}
