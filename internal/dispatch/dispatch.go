// Package dispatch routes transcription requests to backends by model id.
//
// A model id is "<prefix>" or "<prefix>/<variant>", for example
// "whisper_cpp/base" or "exec/moonshine". Backends are constructed on first
// use and cached for the life of the Dispatcher.
package dispatch

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
	"github.com/chaz8081/gostt-bench/internal/transcribe"
)

type route struct {
	prefix  string
	factory transcribe.Factory
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	routes []route
	log    zerolog.Logger

	backends sync.Map // model id -> transcribe.Backend
	mu       sync.Mutex
}

// New builds a dispatcher over factories keyed by model-id prefix.
func New(factories map[string]transcribe.Factory, log zerolog.Logger) *Dispatcher {
	routes := make([]route, 0, len(factories))
	for prefix, f := range factories {
		routes = append(routes, route{prefix: prefix, factory: f})
	}
	// Longest prefix first so "exec/moonshine" beats "exec".
	sort.Slice(routes, func(i, j int) bool {
		if len(routes[i].prefix) != len(routes[j].prefix) {
			return len(routes[i].prefix) > len(routes[j].prefix)
		}
		return routes[i].prefix < routes[j].prefix
	})
	return &Dispatcher{routes: routes, log: log}
}

// Models lists the routable prefixes.
func (d *Dispatcher) Models() []string {
	out := make([]string, len(d.routes))
	for i, r := range d.routes {
		out[i] = r.prefix
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) lookup(modelID string) (route, string, bool) {
	for _, r := range d.routes {
		if modelID == r.prefix {
			return r, "", true
		}
		if strings.HasPrefix(modelID, r.prefix+"/") {
			return r, modelID[len(r.prefix)+1:], true
		}
	}
	return route{}, "", false
}

// Backend returns the cached backend for modelID, constructing it on first
// use. Concurrent first calls construct it once. Failed constructions are
// not cached.
func (d *Dispatcher) Backend(ctx context.Context, modelID string) (transcribe.Backend, error) {
	if b, ok := d.backends.Load(modelID); ok {
		return b.(transcribe.Backend), nil
	}

	r, variant, ok := d.lookup(modelID)
	if !ok {
		return nil, errs.Configuration("unknown model %q", modelID).WithDetail("models", d.Models())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.backends.Load(modelID); ok {
		return b.(transcribe.Backend), nil
	}

	start := time.Now()
	b, err := r.factory(ctx, variant)
	if err != nil {
		if errs.KindOf(err) != "" {
			return nil, err
		}
		return nil, errs.Dispatch(err, "constructing backend for %s", modelID)
	}
	d.log.Info().Str("model", modelID).Dur("took", time.Since(start)).Msg("backend ready")
	d.backends.Store(modelID, b)
	return b, nil
}

// Prepare constructs and caches the backend for modelID without
// transcribing anything.
func (d *Dispatcher) Prepare(ctx context.Context, modelID string) error {
	_, err := d.Backend(ctx, modelID)
	return err
}

// Transcribe runs modelID over in, converting the audio to the form the
// backend accepts. Temporary files made for the call are removed before it
// returns.
func (d *Dispatcher) Transcribe(ctx context.Context, modelID string, in audio.Ref) (string, error) {
	b, err := d.Backend(ctx, modelID)
	if err != nil {
		return "", err
	}

	if in.Kind() == audio.KindNone {
		if in, err = in.Resolve(ctx); err != nil {
			return "", errs.Audio(err, "loading audio")
		}
	}

	if bb, ok := b.(transcribe.Bounded); ok {
		if err := checkBounds(bb, in); err != nil {
			return "", err
		}
	}

	conv, cleanup, err := convert(in, b.Input())
	if err != nil {
		return "", err
	}
	defer cleanup()

	text, err := b.Transcribe(ctx, conv)
	if err != nil {
		return "", errs.Dispatch(err, "%s", modelID)
	}
	return text, nil
}

func checkBounds(b transcribe.Bounded, in audio.Ref) error {
	lo, hi := b.Bounds()
	if lo <= 0 && hi <= 0 {
		return nil
	}
	dur, err := in.Duration()
	if err != nil {
		return errs.Audio(err, "measuring audio")
	}
	if (lo > 0 && dur <= lo) || (hi > 0 && dur >= hi) {
		return errs.Audio(nil, "audio duration %s outside (%s, %s)", dur, lo, hi).
			WithDetail("duration", dur.Seconds())
	}
	return nil
}

// convert returns in as the requested kind. The cleanup func is never nil.
func convert(in audio.Ref, want audio.Kind) (audio.Ref, func(), error) {
	noop := func() {}
	switch {
	case in.Kind() == want:
		return in, noop, nil
	case want == audio.KindPath && in.Kind() == audio.KindWaveform:
		path, cleanup, err := audio.WriteTemp(in.Waveform)
		if err != nil {
			return audio.Ref{}, noop, errs.Audio(err, "writing temporary WAV")
		}
		return audio.PathRef(path), cleanup, nil
	case want == audio.KindWaveform && in.Kind() == audio.KindPath:
		w, err := audio.ReadFile(in.Path)
		if err != nil {
			return audio.Ref{}, noop, errs.Audio(err, "decoding %s", in.Path)
		}
		return audio.WaveformRef(audio.Resample(w, audio.TargetSampleRate)), noop, nil
	default:
		return audio.Ref{}, noop, errs.Audio(nil, "cannot convert %s audio to %s", in.Kind(), want)
	}
}

// Close releases every cached backend.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errList []error
	d.backends.Range(func(key, value any) bool {
		if err := value.(transcribe.Backend).Close(); err != nil {
			errList = append(errList, err)
		}
		d.backends.Delete(key)
		return true
	})
	return errors.Join(errList...)
}
