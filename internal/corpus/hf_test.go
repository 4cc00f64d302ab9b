package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
	"github.com/chaz8081/gostt-bench/internal/logging"
)

// fakeDatasetsServer serves total rows with columns {audio, text} and WAV
// audio at 8 kHz under /audio/<i>.wav.
type fakeDatasetsServer struct {
	*httptest.Server
	total     int
	token     string
	pageCalls atomic.Int32
	wav       []byte
}

func newFakeDatasetsServer(t *testing.T, total int, token string) *fakeDatasetsServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, 8000, 0.5)
	wav, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	f := &fakeDatasetsServer{total: total, token: token, wav: wav}
	mux := http.NewServeMux()
	mux.HandleFunc("/rows", f.rows)
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(f.wav)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeDatasetsServer) authorized(r *http.Request) bool {
	return f.token == "" || r.Header.Get("Authorization") == "Bearer "+f.token
}

func (f *fakeDatasetsServer) rows(w http.ResponseWriter, r *http.Request) {
	f.pageCalls.Add(1)
	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "gated dataset"})
		return
	}
	q := r.URL.Query()
	if q.Get("dataset") == "" || q.Get("config") == "" || q.Get("split") == "" {
		http.Error(w, "missing params", http.StatusBadRequest)
		return
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	length, _ := strconv.Atoi(q.Get("length"))

	var rows []map[string]any
	for i := offset; i < offset+length && i < f.total; i++ {
		rows = append(rows, map[string]any{
			"row_idx": i,
			"row": map[string]any{
				"audio": []map[string]string{
					{"src": fmt.Sprintf("%s/audio/%d.mp3", f.URL, i), "type": "audio/mpeg"},
					{"src": fmt.Sprintf("%s/audio/%d.wav", f.URL, i), "type": "audio/wav"},
				},
				"text": fmt.Sprintf("row %d", i),
			},
			"truncated_cells": []string{},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"features": []map[string]any{
			{"feature_idx": 0, "name": "audio", "type": map[string]string{"_type": "Audio"}},
			{"feature_idx": 1, "name": "text", "type": map[string]string{"_type": "Value"}},
		},
		"rows":           rows,
		"num_rows_total": f.total,
		"partial":        false,
	})
}

func hfDesc() Descriptor {
	return Descriptor{
		ID:       "org/speech",
		Provider: "hf",
		Params:   map[string]string{"config": "clean", "split": "test"},
		Columns:  map[string]string{"text": ColumnTranscript},
		Mode:     ModeEager,
	}
}

func newHFAdapter(t *testing.T, p *HFProvider, descs ...Descriptor) *Adapter {
	t.Helper()
	reg, err := NewRegistry(descs...)
	if err != nil {
		t.Fatal(err)
	}
	return NewAdapter(reg, map[string]Provider{"hf": p}, logging.Nop())
}

func TestHFEagerPaging(t *testing.T) {
	srv := newFakeDatasetsServer(t, 25, "")
	d := hfDesc()
	d.Start, d.End = 3, 23
	a := newHFAdapter(t, NewHFProvider(HFOptions{Endpoint: srv.URL, PageSize: 8}), d)

	src, err := a.Resolve(context.Background(), d.ID, Options{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	sl := src.(*Slice)
	if sl.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", sl.Len())
	}
	if got := sl.At(0).Transcript; got != "row 3" {
		t.Errorf("first transcript = %q, want %q", got, "row 3")
	}
	if got := sl.At(19).Transcript; got != "row 22" {
		t.Errorf("last transcript = %q, want %q", got, "row 22")
	}
	// 20 rows in pages of 8 from offset 3.
	if calls := srv.pageCalls.Load(); calls != 3 {
		t.Errorf("page requests = %d, want 3", calls)
	}
}

func TestHFStreamingToEnd(t *testing.T) {
	srv := newFakeDatasetsServer(t, 7, "")
	a := newHFAdapter(t, NewHFProvider(HFOptions{Endpoint: srv.URL, PageSize: 3}), hfDesc())

	src, err := a.Resolve(context.Background(), "org/speech", Options{Mode: ModeStreaming})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	got, err := Collect(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 7 {
		t.Errorf("streamed %d rows, want 7", len(got))
	}
}

func TestHFAudioFetchResamples(t *testing.T) {
	srv := newFakeDatasetsServer(t, 2, "secret")
	a := newHFAdapter(t, NewHFProvider(HFOptions{Endpoint: srv.URL, Token: "secret"}), hfDesc())

	src, err := a.Resolve(context.Background(), "org/speech", Options{})
	if err != nil {
		t.Fatal(err)
	}
	s := src.(*Slice).At(1)
	if s.Audio.Kind() != audio.KindNone {
		t.Fatalf("remote audio kind before resolve = %v, want none", s.Audio.Kind())
	}
	ref, err := s.Audio.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Audio.Resolve() error = %v", err)
	}
	if ref.Kind() != audio.KindWaveform {
		t.Fatalf("resolved kind = %v, want waveform", ref.Kind())
	}
	if ref.Waveform.SampleRate != audio.TargetSampleRate {
		t.Errorf("sample rate = %d, want %d", ref.Waveform.SampleRate, audio.TargetSampleRate)
	}
	if n := len(ref.Waveform.Samples); n != 8000 {
		t.Errorf("samples = %d, want 8000 (0.5s at 16 kHz)", n)
	}
}

func TestHFGatedDataset(t *testing.T) {
	srv := newFakeDatasetsServer(t, 2, "secret")
	d := hfDesc()
	d.Params["token"] = "required"

	a := newHFAdapter(t, NewHFProvider(HFOptions{Endpoint: srv.URL}), d)
	_, err := a.Resolve(context.Background(), d.ID, Options{})
	if !errs.Is(err, errs.KindConfiguration) {
		t.Errorf("Resolve() without token error = %v, want configuration error", err)
	}
	if srv.pageCalls.Load() != 0 {
		t.Error("gated dataset was requested without a token")
	}

	a = newHFAdapter(t, NewHFProvider(HFOptions{Endpoint: srv.URL, Token: "wrong"}), d)
	if _, err := a.Resolve(context.Background(), d.ID, Options{}); err == nil {
		t.Error("Resolve() with a rejected token should fail")
	}
}

func TestHFSchemaError(t *testing.T) {
	srv := newFakeDatasetsServer(t, 2, "")
	d := hfDesc()
	d.Columns = nil // raw "text" never becomes "transcript"
	a := newHFAdapter(t, NewHFProvider(HFOptions{Endpoint: srv.URL}), d)
	if _, err := a.Resolve(context.Background(), d.ID, Options{}); !errs.Is(err, errs.KindSchema) {
		t.Errorf("Resolve() error = %v, want schema error", err)
	}
}

func TestHFAudioSource(t *testing.T) {
	tests := []struct {
		name    string
		cell    any
		want    string
		wantErr bool
	}{
		{
			name: "prefers wav",
			cell: []any{
				map[string]any{"src": "a.mp3", "type": "audio/mpeg"},
				map[string]any{"src": "a.wav", "type": "audio/wav"},
			},
			want: "a.wav",
		},
		{
			name: "falls back to first source",
			cell: []any{map[string]any{"src": "a.mp3", "type": "audio/mpeg"}},
			want: "a.mp3",
		},
		{name: "single object", cell: map[string]any{"src": "b.wav", "type": "audio/wav"}, want: "b.wav"},
		{name: "empty list", cell: []any{}, wantErr: true},
		{name: "wrong type", cell: 42.0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hfAudioSource(tt.cell)
			if (err != nil) != tt.wantErr {
				t.Fatalf("hfAudioSource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("hfAudioSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadHFToken(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	tokenFile := filepath.Join(dir, "huggingface_token")

	t.Run("missing everywhere", func(t *testing.T) {
		t.Setenv("GOSTT_TEST_HF", "")
		tok, err := LoadHFToken("GOSTT_TEST_HF", envFile, tokenFile)
		if err != nil || tok != "" {
			t.Errorf("LoadHFToken() = %q, %v; want empty, nil", tok, err)
		}
	})

	if err := os.WriteFile(tokenFile, []byte("from-file\nignored\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Run("token file", func(t *testing.T) {
		t.Setenv("GOSTT_TEST_HF", "")
		tok, _ := LoadHFToken("GOSTT_TEST_HF", envFile, tokenFile)
		if tok != "from-file" {
			t.Errorf("LoadHFToken() = %q, want from-file", tok)
		}
	})

	var env bytes.Buffer
	env.WriteString("GOSTT_TEST_HF=from-dotenv\n")
	if err := os.WriteFile(envFile, env.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	t.Run("dotenv beats token file", func(t *testing.T) {
		t.Setenv("GOSTT_TEST_HF", "")
		tok, _ := LoadHFToken("GOSTT_TEST_HF", envFile, tokenFile)
		if tok != "from-dotenv" {
			t.Errorf("LoadHFToken() = %q, want from-dotenv", tok)
		}
	})

	t.Run("environment beats dotenv", func(t *testing.T) {
		t.Setenv("GOSTT_TEST_HF", "from-env")
		tok, _ := LoadHFToken("GOSTT_TEST_HF", envFile, tokenFile)
		if tok != "from-env" {
			t.Errorf("LoadHFToken() = %q, want from-env", tok)
		}
	})
}
