// Package eval runs transcription backends over corpora and scores them.
package eval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/corpus"
	"github.com/chaz8081/gostt-bench/internal/errs"
	"github.com/chaz8081/gostt-bench/internal/textnorm"
)

// Transcriber is the dispatch contract the executor depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, modelID string, in audio.Ref) (string, error)
}

// Prediction is one scored sample.
type Prediction struct {
	Index      int
	Hypothesis string
	Reference  string
	// Elapsed is the wall time of the transcription call.
	Elapsed       time.Duration
	AudioDuration time.Duration
}

// Options controls a Run.
type Options struct {
	// Corpus tags sample errors.
	Corpus string
	// Concurrency is the worker count; values below 1 mean 1.
	Concurrency int
	// SampleTimeout bounds each sample when positive.
	SampleTimeout time.Duration
	// NormalizeReference and NormalizeHypothesis default to identity.
	NormalizeReference  textnorm.Func
	NormalizeHypothesis textnorm.Func
	Log                 zerolog.Logger
}

// Run transcribes every sample of src with modelID and returns predictions
// ordered by sample index. The first failing sample cancels the run and is
// returned as a *errs.SampleError; calls still in flight are abandoned.
func Run(ctx context.Context, src corpus.Source, t Transcriber, modelID string, opts Options) ([]Prediction, error) {
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	normRef, normHyp := opts.NormalizeReference, opts.NormalizeHypothesis
	if normRef == nil {
		normRef = textnorm.Identity
	}
	if normHyp == nil {
		normHyp = textnorm.Identity
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		srcMu   sync.Mutex // guards src and pulled
		pulled  int
		resMu   sync.Mutex
		results []Prediction
	)

	next := func() (corpus.Sample, bool, error) {
		srcMu.Lock()
		defer srcMu.Unlock()
		smp, ok, err := src.Next(gctx)
		if err != nil {
			return corpus.Sample{}, false, sampleErr(opts.Corpus, pulled, err)
		}
		if ok {
			pulled++
		}
		return smp, ok, nil
	}

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				smp, ok, err := next()
				if err != nil || !ok {
					return err
				}
				p, err := runSample(gctx, t, modelID, smp, opts.SampleTimeout)
				if err != nil {
					return sampleErr(opts.Corpus, smp.Index, err)
				}
				p.Reference = normRef(smp.Transcript)
				p.Hypothesis = normHyp(p.Hypothesis)

				opts.Log.Debug().
					Int("index", p.Index).
					Dur("elapsed", p.Elapsed).
					Dur("audio", p.AudioDuration).
					Msg("sample done")

				resMu.Lock()
				results = append(results, p)
				resMu.Unlock()
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results, nil
}

func sampleErr(corpusID string, index int, err error) error {
	var se *errs.SampleError
	if errors.As(err, &se) {
		return err
	}
	return &errs.SampleError{Corpus: corpusID, Index: index, Err: err}
}

type callResult struct {
	text string
	err  error
}

func runSample(ctx context.Context, t Transcriber, modelID string, smp corpus.Sample, timeout time.Duration) (Prediction, error) {
	sctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	timedOut := func() bool {
		return timeout > 0 && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	}

	ref, err := smp.Audio.Resolve(sctx)
	if err != nil {
		if timedOut() {
			return Prediction{}, errs.Timeout(err, "loading audio exceeded %s", timeout)
		}
		return Prediction{}, errs.Audio(err, "loading audio %s", smp.Audio)
	}
	dur, err := ref.Duration()
	if err != nil {
		return Prediction{}, errs.Audio(err, "measuring audio %s", ref)
	}

	// The call runs in its own goroutine so cancellation does not wait on a
	// backend that ignores its context.
	done := make(chan callResult, 1)
	start := time.Now()
	go func() {
		text, err := t.Transcribe(sctx, modelID, ref)
		done <- callResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		elapsed := time.Since(start)
		if r.err != nil {
			if timedOut() {
				return Prediction{}, errs.Timeout(r.err, "transcription exceeded %s", timeout)
			}
			return Prediction{}, r.err
		}
		return Prediction{
			Index:         smp.Index,
			Hypothesis:    r.text,
			Elapsed:       elapsed,
			AudioDuration: dur,
		}, nil
	case <-sctx.Done():
		if timedOut() {
			return Prediction{}, errs.Timeout(sctx.Err(), "transcription exceeded %s", timeout)
		}
		return Prediction{}, sctx.Err()
	}
}
