package eval

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/corpus"
	"github.com/chaz8081/gostt-bench/internal/errs"
	"github.com/chaz8081/gostt-bench/internal/metrics"
)

// Request is one evaluation invocation.
type Request struct {
	Model         string
	Corpora       []string
	Concurrency   int
	Limit         int
	SampleTimeout time.Duration
	Streaming     bool
	WER           bool
	RTF           bool
}

// CorpusReport holds the scores for one corpus.
type CorpusReport struct {
	Corpus      string
	Samples     int
	WER         metrics.WERResult
	RTF         []float64
	MeanRTF     float64
	Predictions []Prediction
}

// Report is the outcome of a Request.
type Report struct {
	RunID   string
	Model   string
	Started time.Time
	Elapsed time.Duration
	WER     bool
	RTF     bool
	Corpora []CorpusReport
}

// Resolver yields corpus descriptors and sample sources.
type Resolver interface {
	Descriptor(id string) (corpus.Descriptor, error)
	Resolve(ctx context.Context, id string, opts corpus.Options) (corpus.Source, error)
}

// Backends is the dispatch contract the harness depends on.
type Backends interface {
	Transcriber
	// Prepare constructs the backend for modelID so that neither its
	// construction time nor its failure is charged to a sample.
	Prepare(ctx context.Context, modelID string) error
}

// Harness evaluates one model over a list of corpora.
type Harness struct {
	Corpora     Resolver
	Transcriber Backends
	// Out receives the per-corpus score lines; nil discards them.
	Out io.Writer
	Log zerolog.Logger
}

// Evaluate runs req corpus by corpus, printing each corpus' scores as soon
// as it completes. Unknown corpora and unbuildable models fail before any
// corpus is resolved. Otherwise it stops at the first failing corpus.
func (h *Harness) Evaluate(ctx context.Context, req Request) (*Report, error) {
	if req.Model == "" {
		return nil, errs.Configuration("no model selected")
	}
	if len(req.Corpora) == 0 {
		return nil, errs.Configuration("no corpora selected")
	}
	if !req.WER && !req.RTF {
		req.WER = true
	}

	descs := make([]corpus.Descriptor, len(req.Corpora))
	for i, id := range req.Corpora {
		d, err := h.Corpora.Descriptor(id)
		if err != nil {
			return nil, err
		}
		if _, _, err := d.Normalizers(); err != nil {
			return nil, errs.Configuration("corpus %q: %v", id, err)
		}
		descs[i] = d
	}

	rep := &Report{
		RunID:   uuid.NewString(),
		Model:   req.Model,
		Started: time.Now(),
		WER:     req.WER,
		RTF:     req.RTF,
	}
	log := h.Log.With().Str("run_id", rep.RunID).Str("model", req.Model).Logger()
	log.Info().Strs("corpora", req.Corpora).Int("concurrency", req.Concurrency).Msg("evaluation started")

	prepStart := time.Now()
	if err := h.Transcriber.Prepare(ctx, req.Model); err != nil {
		log.Error().Err(err).Msg("backend unavailable")
		return rep, err
	}
	log.Debug().Dur("took", time.Since(prepStart)).Msg("backend prepared")

	for _, d := range descs {
		cr, err := h.evaluateCorpus(ctx, log, d, req)
		if err != nil {
			log.Error().Err(err).Str("corpus", d.ID).Msg("corpus failed")
			return rep, err
		}
		rep.Corpora = append(rep.Corpora, *cr)
		if h.Out != nil {
			if err := cr.Write(h.Out, req.WER, req.RTF); err != nil {
				return rep, fmt.Errorf("eval: writing report: %w", err)
			}
		}
	}
	rep.Elapsed = time.Since(rep.Started)
	log.Info().Dur("elapsed", rep.Elapsed).Msg("evaluation finished")
	return rep, nil
}

func (h *Harness) evaluateCorpus(ctx context.Context, log zerolog.Logger, d corpus.Descriptor, req Request) (*CorpusReport, error) {
	id := d.ID
	normRef, normHyp, err := d.Normalizers()
	if err != nil {
		return nil, errs.Configuration("corpus %q: %v", id, err)
	}

	opts := corpus.Options{Limit: req.Limit}
	if req.Streaming {
		opts.Mode = corpus.ModeStreaming
	}
	src, err := h.Corpora.Resolve(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	clog := log.With().Str("corpus", id).Logger()
	start := time.Now()
	preds, err := Run(ctx, src, h.Transcriber, req.Model, Options{
		Corpus:              id,
		Concurrency:         req.Concurrency,
		SampleTimeout:       req.SampleTimeout,
		NormalizeReference:  normRef,
		NormalizeHypothesis: normHyp,
		Log:                 clog,
	})
	if err != nil {
		return nil, err
	}

	cr := &CorpusReport{Corpus: id, Samples: len(preds), Predictions: preds}
	if req.WER {
		pairs := make([]metrics.Pair, len(preds))
		for i, p := range preds {
			pairs[i] = metrics.Pair{Hypothesis: p.Hypothesis, Reference: p.Reference}
		}
		cr.WER = metrics.CorpusWER(pairs)
	}
	if req.RTF {
		for _, p := range preds {
			rtf, err := metrics.RTF(p.Elapsed, p.AudioDuration)
			if err != nil {
				return nil, &errs.SampleError{Corpus: id, Index: p.Index, Err: errs.Audio(err, "computing RTF")}
			}
			cr.RTF = append(cr.RTF, rtf)
		}
		cr.MeanRTF = metrics.MeanRTF(cr.RTF)
	}
	clog.Info().
		Int("samples", cr.Samples).
		Float64("wer", cr.WER.WER).
		Float64("mean_rtf", cr.MeanRTF).
		Dur("took", time.Since(start)).
		Msg("corpus scored")
	return cr, nil
}

// Write prints the enabled score lines for the corpus.
func (c *CorpusReport) Write(w io.Writer, wer, rtf bool) error {
	if wer {
		if _, err := fmt.Fprintf(w, "WER on %s: %v\n", c.Corpus, c.WER.WER); err != nil {
			return err
		}
	}
	if rtf {
		if _, err := fmt.Fprintf(w, "RTF on %s: mean %.4f over %d samples\n", c.Corpus, c.MeanRTF, len(c.RTF)); err != nil {
			return err
		}
	}
	return nil
}
