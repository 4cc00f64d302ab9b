//go:build whisper

package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/gostt-bench/internal/audio"
)

// whisperModelPath resolves the path to the whisper model relative to the project root.
func whisperModelPath(t testing.TB) string {
	t.Helper()
	path := os.Getenv("GOSTT_WHISPER_MODEL")
	if path == "" {
		path = filepath.Join("..", "..", "models", "ggml-base.en.bin")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model not found at %s (run 'gostt-bench --download-model base.en' first): %v", path, err)
	}
	return path
}

// jfkRef loads the JFK sample shipped with whisper.cpp as a waveform ref.
func jfkRef(t testing.TB) audio.Ref {
	t.Helper()
	wavPath := filepath.Join("..", "..", "third_party", "whisper.cpp", "samples", "jfk.wav")
	w, err := audio.ReadFile(wavPath)
	if err != nil {
		t.Skipf("JFK sample not found at %s: %v", wavPath, err)
	}
	return audio.WaveformRef(audio.Resample(w, audio.TargetSampleRate))
}

func TestNewWhisperTranscriber(t *testing.T) {
	path := whisperModelPath(t)

	tr, err := NewWhisperTranscriber(path)
	if err != nil {
		t.Fatalf("NewWhisperTranscriber(%q) returned error: %v", path, err)
	}
	if tr.Input() != audio.KindWaveform {
		t.Errorf("Input() = %v, want waveform", tr.Input())
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
}

func TestNewWhisperTranscriberBadPath(t *testing.T) {
	_, err := NewWhisperTranscriber("/nonexistent/model.bin")
	if err == nil {
		t.Fatal("NewWhisperTranscriber with bad path should return error")
	}
}

func TestWhisperTranscribeJFK(t *testing.T) {
	path := whisperModelPath(t)
	ref := jfkRef(t)

	tr, err := NewWhisperTranscriber(path)
	if err != nil {
		t.Fatalf("NewWhisperTranscriber: %v", err)
	}
	defer func() { _ = tr.Close() }()

	text, err := tr.Transcribe(context.Background(), ref)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}

	lower := strings.ToLower(text)
	if !strings.Contains(lower, "ask not what your country") {
		t.Errorf("expected transcript to contain 'ask not what your country', got: %q", text)
	}
}

func TestWhisperTranscribeSilence(t *testing.T) {
	path := whisperModelPath(t)

	tr, err := NewWhisperTranscriber(path)
	if err != nil {
		t.Fatalf("NewWhisperTranscriber: %v", err)
	}
	defer func() { _ = tr.Close() }()

	// Silent audio should not error; whisper may hallucinate text.
	silence := &audio.Waveform{Samples: make([]float32, 16000), SampleRate: audio.TargetSampleRate}
	if _, err := tr.Transcribe(context.Background(), audio.WaveformRef(silence)); err != nil {
		t.Fatalf("Transcribe on silence returned error: %v", err)
	}
}

func TestWhisperTranscribeRejectsPath(t *testing.T) {
	path := whisperModelPath(t)
	tr, err := NewWhisperTranscriber(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tr.Close() }()
	if _, err := tr.Transcribe(context.Background(), audio.PathRef("x.wav")); err == nil {
		t.Error("Transcribe(path) should fail for a waveform backend")
	}
}
