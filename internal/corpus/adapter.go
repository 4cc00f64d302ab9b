package corpus

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
)

// Row is one raw dataset record keyed by raw column name.
type Row map[string]any

// RowStream yields raw rows from a provider.
type RowStream interface {
	// Columns lists the raw column names. It is known before the first row.
	Columns() []string
	Next(ctx context.Context) (Row, bool, error)
	Close() error
}

// Provider loads rows for a descriptor and turns audio cells into refs.
type Provider interface {
	// Open starts reading d at row offset.
	Open(ctx context.Context, d Descriptor, offset int) (RowStream, error)
	// AudioRef interprets a raw audio cell.
	AudioRef(d Descriptor, cell any) (audio.Ref, error)
}

// Options override descriptor settings at resolve time.
type Options struct {
	// Mode replaces the descriptor's mode when set.
	Mode Mode
	// Limit caps the number of samples when positive.
	Limit int
}

// Adapter resolves corpus ids into sample sources.
type Adapter struct {
	registry  *Registry
	providers map[string]Provider
	log       zerolog.Logger
}

// NewAdapter returns an adapter over registry. providers is keyed by the
// descriptor Provider field.
func NewAdapter(registry *Registry, providers map[string]Provider, log zerolog.Logger) *Adapter {
	return &Adapter{registry: registry, providers: providers, log: log}
}

// Descriptor returns the registered descriptor for id.
func (a *Adapter) Descriptor(id string) (Descriptor, error) {
	return a.registry.Get(id)
}

// Resolve builds the sample source for corpus id. Unknown ids and providers
// fail with a configuration error; a schema missing audio or transcript after
// renaming fails with a schema error before any sample is produced.
func (a *Adapter) Resolve(ctx context.Context, id string, opts Options) (Source, error) {
	d, err := a.registry.Get(id)
	if err != nil {
		return nil, err
	}
	p, ok := a.providers[d.Provider]
	if !ok {
		return nil, errs.Configuration("corpus %q: no loader for provider %q", d.ID, d.Provider)
	}

	mode := d.Mode
	if opts.Mode != "" {
		mode = opts.Mode
	}

	rows, err := p.Open(ctx, d, d.Start)
	if err != nil {
		return nil, err
	}
	// A corpus with no rows has no columns to check.
	if cols := rows.Columns(); cols != nil {
		if missing := MissingColumns(cols, d.Columns); len(missing) > 0 {
			rows.Close()
			return nil, errs.Schema("corpus %q: missing canonical columns %v", d.ID, missing).WithDetail("columns", cols)
		}
	}

	toSample := func(r Row) (Sample, error) {
		c, err := Canonicalize(r, d.Columns)
		if err != nil {
			return Sample{}, err
		}
		ref, err := p.AudioRef(d, c[ColumnAudio])
		if err != nil {
			return Sample{}, err
		}
		transcript, ok := c[ColumnTranscript].(string)
		if !ok {
			return Sample{}, errs.Schema("corpus %q: transcript cell is %T, want string", d.ID, c[ColumnTranscript])
		}
		return Sample{Audio: ref, Transcript: transcript}, nil
	}

	want := -1
	if d.End > 0 {
		want = d.End - d.Start
	}
	if opts.Limit > 0 && (want < 0 || opts.Limit < want) {
		want = opts.Limit
	}

	log := a.log.With().Str("corpus", d.ID).Str("provider", d.Provider).Str("mode", string(mode)).Logger()

	if mode == ModeStreaming {
		log.Debug().Int("start", d.Start).Int("cap", want).Msg("streaming corpus")
		next := func(ctx context.Context) (Sample, bool, error) {
			r, ok, err := rows.Next(ctx)
			if err != nil || !ok {
				return Sample{}, ok, err
			}
			smp, err := toSample(r)
			return smp, err == nil, err
		}
		var src Source = NewStream(next, rows.Close)
		if want >= 0 {
			src = Take(src, want)
		}
		return src, nil
	}

	defer rows.Close()
	var samples []Sample
	for want < 0 || len(samples) < want {
		r, ok, err := rows.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		smp, err := toSample(r)
		if err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	log.Debug().Int("samples", len(samples)).Int("start", d.Start).Msg("materialized corpus slice")
	return NewSlice(samples), nil
}

// MissingColumns lists the canonical columns that renaming raw with mapping
// does not produce.
func MissingColumns(raw []string, mapping map[string]string) []string {
	have := make(map[string]bool, len(raw))
	for _, c := range raw {
		if m, ok := mapping[c]; ok {
			have[m] = true
		} else {
			have[c] = true
		}
	}
	var missing []string
	for _, want := range []string{ColumnAudio, ColumnTranscript} {
		if !have[want] {
			missing = append(missing, want)
		}
	}
	return missing
}

// Canonicalize renames r's columns with mapping and keeps only the canonical
// audio and transcript columns.
func Canonicalize(r Row, mapping map[string]string) (Row, error) {
	out := make(Row, 2)
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	// Mapped columns win over raw columns that already carry a canonical name.
	sort.Slice(keys, func(i, j int) bool {
		_, mi := mapping[keys[i]]
		_, mj := mapping[keys[j]]
		if mi != mj {
			return !mi
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		name := k
		if m, ok := mapping[k]; ok {
			name = m
		}
		if name == ColumnAudio || name == ColumnTranscript {
			out[name] = r[k]
		}
	}
	for _, want := range []string{ColumnAudio, ColumnTranscript} {
		if _, ok := out[want]; !ok {
			return nil, errs.Schema("row missing column %q", want)
		}
	}
	return out, nil
}
