// Package models fetches whisper.cpp ggml model files.
package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/errs"
)

// DefaultBaseURL hosts the ggml conversions of the whisper models.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

var validSize = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// WhisperModelName returns the ggml file name for a model size such as
// "base" or "large-v3".
func WhisperModelName(size string) string {
	return "ggml-" + size + ".bin"
}

// WhisperModelPath returns where the model for size lives under dir.
func WhisperModelPath(dir, size string) string {
	return filepath.Join(dir, WhisperModelName(size))
}

// ValidateSize rejects sizes that cannot name a model file.
func ValidateSize(size string) error {
	if !validSize.MatchString(size) || strings.Contains(size, "..") {
		return errs.Configuration("invalid whisper model size %q", size)
	}
	return nil
}

// Downloader fetches model files into a local directory.
type Downloader struct {
	BaseURL string
	Client  *http.Client
	// Progress receives a running byte count; nil disables it.
	Progress io.Writer
	Log      zerolog.Logger
}

// NewDownloader returns a downloader for the default model host.
func NewDownloader(progress io.Writer, log zerolog.Logger) *Downloader {
	return &Downloader{BaseURL: DefaultBaseURL, Client: http.DefaultClient, Progress: progress, Log: log}
}

// EnsureWhisper returns the path of the ggml model for size in dir,
// downloading it first if it is missing.
func (d *Downloader) EnsureWhisper(ctx context.Context, dir, size string) (string, error) {
	if err := ValidateSize(size); err != nil {
		return "", err
	}
	destPath := WhisperModelPath(dir, size)

	// Check if already downloaded
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		d.Log.Debug().Str("path", destPath).Int64("bytes", info.Size()).Msg("whisper model present")
		return destPath, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating models dir: %w", err)
	}

	url := strings.TrimRight(d.BaseURL, "/") + "/" + WhisperModelName(size)
	d.Log.Info().Str("url", url).Str("dest", destPath).Msg("downloading whisper model")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading whisper model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s failed: HTTP %d", WhisperModelName(size), resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	var dst io.Writer = f
	if d.Progress != nil {
		dst = &progressWriter{
			writer: f,
			out:    d.Progress,
			total:  resp.ContentLength,
			label:  WhisperModelName(size),
		}
	}

	written, err := io.Copy(dst, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing model file: %w", err)
	}
	if d.Progress != nil {
		fmt.Fprintln(d.Progress)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("moving model file: %w", err)
	}
	d.Log.Info().Str("path", destPath).Float64("mb", float64(written)/(1024*1024)).Msg("whisper model downloaded")
	return destPath, nil
}

// progressWriter wraps an io.Writer and prints download progress to out.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
