//go:build !whisper

package transcribe

import "github.com/chaz8081/gostt-bench/internal/errs"

// NewWhisperTranscriber reports that the in-process whisper backend was not
// compiled in. Build with -tags whisper and the whisper.cpp static library
// to enable it.
func NewWhisperTranscriber(modelPath string) (Backend, error) {
	return nil, errs.Configuration("transcribe: whisper backend not built (rebuild with -tags whisper); model %s", modelPath)
}
