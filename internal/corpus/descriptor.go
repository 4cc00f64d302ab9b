// Package corpus turns named speech corpora into uniform streams of
// (audio, transcript) samples.
//
// A Registry holds static Descriptors. An Adapter resolves a corpus id
// through the registry and the descriptor's Provider into a Source, renaming
// raw columns to the canonical {audio, transcript} schema on the way.
package corpus

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
	"github.com/chaz8081/gostt-bench/internal/textnorm"
)

// Canonical column names.
const (
	ColumnAudio      = "audio"
	ColumnTranscript = "transcript"
)

// Mode selects how a corpus is sampled.
type Mode string

const (
	// ModeEager materializes the bounded slice [Start, End).
	ModeEager Mode = "eager"
	// ModeStreaming yields the same window lazily; the source cannot be
	// restarted.
	ModeStreaming Mode = "streaming"
)

// Descriptor is the static configuration of one corpus.
type Descriptor struct {
	ID       string            `yaml:"id" validate:"required"`
	Provider string            `yaml:"provider" validate:"required,oneof=manifest hf minio"`
	Params   map[string]string `yaml:"params"`
	// Columns maps raw column names to canonical ones.
	Columns    map[string]string `yaml:"columns" validate:"dive,oneof=audio transcript"`
	SampleRate int               `yaml:"sample_rate" validate:"omitempty,eq=16000"`
	// ReferenceNormalizer and HypothesisNormalizer name textnorm functions.
	// Empty means identity.
	ReferenceNormalizer  string `yaml:"reference_normalizer"`
	HypothesisNormalizer string `yaml:"hypothesis_normalizer"`
	Mode                 Mode   `yaml:"mode" validate:"omitempty,oneof=eager streaming"`
	Start                int    `yaml:"start" validate:"gte=0"`
	// End bounds the sampled window; 0 reads to the end of the corpus.
	End int `yaml:"end" validate:"omitempty,gtfield=Start"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the named normalizers exist.
func (d *Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return errs.Configuration("corpus %q: invalid descriptor: %v", d.ID, err)
	}
	for _, name := range []string{d.ReferenceNormalizer, d.HypothesisNormalizer} {
		if _, err := textnorm.Lookup(name); err != nil {
			return errs.Configuration("corpus %q: %v", d.ID, err)
		}
	}
	return nil
}

// Param returns a loader parameter or def when unset.
func (d *Descriptor) Param(key, def string) string {
	if v, ok := d.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// Normalizers returns the reference and hypothesis normalizers.
func (d *Descriptor) Normalizers() (ref, hyp textnorm.Func, err error) {
	if ref, err = textnorm.Lookup(d.ReferenceNormalizer); err != nil {
		return nil, nil, err
	}
	if hyp, err = textnorm.Lookup(d.HypothesisNormalizer); err != nil {
		return nil, nil, err
	}
	return ref, hyp, nil
}

// TargetSampleRate is the rate every sample is delivered at.
func (d *Descriptor) TargetSampleRate() int { return audio.TargetSampleRate }

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.ID, d.Provider, d.Mode)
}

// Builtin returns the corpora the harness evaluates by default: the first
// 100 test samples of SPGISpeech, Earnings-22 (chunked) and AMI (IHM).
func Builtin() []Descriptor {
	return []Descriptor{
		{
			ID:       "kensho/spgispeech",
			Provider: "hf",
			Params:   map[string]string{"dataset": "kensho/spgispeech", "config": "test", "split": "test", "token": "required"},
			Mode:     ModeEager,
			End:      100,
		},
		{
			ID:       "distil-whisper/earnings22",
			Provider: "hf",
			Params:   map[string]string{"dataset": "distil-whisper/earnings22", "config": "chunked", "split": "test"},
			Columns:  map[string]string{"transcription": ColumnTranscript},
			Mode:     ModeEager,
			End:      100,
		},
		{
			ID:       "edinburghcstr/ami",
			Provider: "hf",
			Params:   map[string]string{"dataset": "edinburghcstr/ami", "config": "ihm", "split": "test"},
			Columns:  map[string]string{"text": ColumnTranscript},
			// AMI references are already uppercase with dotted single letters;
			// hypotheses are rewritten into that convention.
			HypothesisNormalizer: "ami",
			Mode:                 ModeEager,
			End:                  100,
		},
	}
}
