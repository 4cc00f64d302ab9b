// Package transcribe provides speech-to-text backends.
//
// Supported backends:
//   - whisper_cpp: the whisper.cpp whisper-cli executable (default)
//   - whisper: whisper.cpp via Go bindings, built with -tags whisper
//   - exec/<name>: any recognizer process that prints {"text": "..."}
package transcribe

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/config"
	"github.com/chaz8081/gostt-bench/internal/models"
)

// Backend converts one audio sample to text.
type Backend interface {
	// Transcribe returns the hypothesis for in, which is already in the
	// form Input reports.
	Transcribe(ctx context.Context, in audio.Ref) (string, error)
	// Input is the audio form the backend accepts: KindPath or KindWaveform.
	Input() audio.Kind
	// Close releases backend resources.
	Close() error
}

// Bounded is implemented by backends that only accept audio strictly
// between a minimum and maximum duration. Zero means unbounded.
type Bounded interface {
	Bounds() (min, max time.Duration)
}

// Factory constructs a backend for a model variant, e.g. "base" for
// "whisper_cpp/base". An empty variant selects the backend default.
type Factory func(ctx context.Context, variant string) (Backend, error)

// Factories returns the backend constructors keyed by model-id prefix.
func Factories(cfg *config.Config, dl *models.Downloader, log zerolog.Logger) map[string]Factory {
	out := map[string]Factory{
		"whisper_cpp": func(ctx context.Context, variant string) (Backend, error) {
			size := variant
			if size == "" {
				size = cfg.WhisperCPP.DefaultModel
			}
			if err := models.ValidateSize(size); err != nil {
				return nil, err
			}
			modelPath := models.WhisperModelPath(cfg.WhisperCPP.ModelsDir, size)
			if cfg.WhisperCPP.AutoDownload && dl != nil {
				p, err := dl.EnsureWhisper(ctx, cfg.WhisperCPP.ModelsDir, size)
				if err != nil {
					return nil, err
				}
				modelPath = p
			}
			return NewCLI(CLIOptions{
				Command:   cfg.WhisperCPP.Binary,
				ModelPath: modelPath,
				Threads:   cfg.WhisperCPP.Threads,
				Log:       log,
			})
		},
		"whisper": func(ctx context.Context, variant string) (Backend, error) {
			size := variant
			if size == "" {
				size = cfg.Whisper.DefaultModel
			}
			if err := models.ValidateSize(size); err != nil {
				return nil, err
			}
			return NewWhisperTranscriber(models.WhisperModelPath(cfg.Whisper.ModelsDir, size))
		},
	}
	for name, ec := range cfg.Exec {
		out["exec/"+name] = func(ctx context.Context, variant string) (Backend, error) {
			return NewExec(ExecOptions{
				Name:     name,
				Command:  ec.Command,
				Model:    variant,
				MinAudio: seconds(ec.MinAudioSec),
				MaxAudio: seconds(ec.MaxAudioSec),
				Log:      log,
			})
		}
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
