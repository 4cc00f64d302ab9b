package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	apperrors "github.com/kbukum/gokit/errors"
	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/config"
	"github.com/chaz8081/gostt-bench/internal/corpus"
	"github.com/chaz8081/gostt-bench/internal/dispatch"
	"github.com/chaz8081/gostt-bench/internal/errs"
	"github.com/chaz8081/gostt-bench/internal/eval"
	"github.com/chaz8081/gostt-bench/internal/logging"
	"github.com/chaz8081/gostt-bench/internal/models"
	"github.com/chaz8081/gostt-bench/internal/transcribe"
)

// options holds the parsed command line.
type options struct {
	configPath    string
	model         string
	corpora       string
	all           bool
	wer           bool
	rtf           bool
	streaming     bool
	concurrency   int
	limit         int
	timeout       time.Duration
	downloadModel string
	writeConfig   bool
	list          bool

	// set records which flags appeared on the command line.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("gostt-bench", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{set: map[string]bool{}}
	fs.StringVar(&o.configPath, "config", "", "path to config file (default: ~/.config/gostt-bench/config.yaml)")
	fs.StringVar(&o.model, "model", "", "model id, e.g. whisper_cpp/base or exec/<name>")
	fs.StringVar(&o.corpora, "corpus", "", "comma-separated corpus ids")
	fs.BoolVar(&o.all, "all", false, "evaluate every registered corpus")
	fs.BoolVar(&o.wer, "wer", false, "report word error rate")
	fs.BoolVar(&o.rtf, "rtf", false, "report real-time factor")
	fs.BoolVar(&o.streaming, "streaming", false, "pull samples lazily instead of materialising the slice")
	fs.IntVar(&o.concurrency, "concurrency", 0, "samples transcribed in parallel")
	fs.IntVar(&o.limit, "limit", 0, "cap on samples per corpus (0 = no cap)")
	fs.DurationVar(&o.timeout, "timeout", 0, "per-sample deadline (0 = none)")
	fs.StringVar(&o.downloadModel, "download-model", "", "download the ggml whisper model of this size and exit")
	fs.BoolVar(&o.writeConfig, "write-config", false, "write the default config file and exit")
	fs.BoolVar(&o.list, "list", false, "list corpora and model prefixes and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply overlays flags given on the command line onto the config defaults.
func (o *options) apply(cfg *config.Config) {
	if o.set["model"] {
		cfg.Eval.Model = o.model
	}
	if o.set["corpus"] {
		cfg.Eval.Corpora = splitList(o.corpora)
	}
	if o.set["concurrency"] {
		cfg.Eval.Concurrency = o.concurrency
	}
	if o.set["limit"] {
		cfg.Eval.Limit = o.limit
	}
	if o.set["timeout"] {
		cfg.Eval.SampleTimeout = o.timeout
	}
	if o.set["streaming"] {
		cfg.Eval.Streaming = o.streaming
	}
	// Naming any metric replaces the configured metric set.
	if o.set["wer"] || o.set["rtf"] {
		cfg.Eval.WER = o.wer
		cfg.Eval.RTF = o.rtf
	}
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// minioOptions fills unset MinIO fields from the MINIO_ENDPOINT,
// MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY and MINIO_USE_SSL variables.
func minioOptions(c config.MinIOConfig, getenv func(string) string) corpus.MinIOOptions {
	opts := corpus.MinIOOptions{
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UseSSL:          c.UseSSL,
	}
	if opts.Endpoint == "" {
		opts.Endpoint = getenv("MINIO_ENDPOINT")
	}
	if opts.AccessKeyID == "" {
		opts.AccessKeyID = getenv("MINIO_ACCESS_KEY_ID")
	}
	if opts.SecretAccessKey == "" {
		opts.SecretAccessKey = getenv("MINIO_SECRET_ACCESS_KEY")
	}
	if !opts.UseSSL {
		opts.UseSSL, _ = strconv.ParseBool(getenv("MINIO_USE_SSL"))
	}
	return opts
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "gostt-bench: %v\n", err)
		return 2
	}

	if o.writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fmt.Fprintf(stderr, "gostt-bench: %v\n", err)
			return 1
		}
		if path == "" {
			fmt.Fprintf(stdout, "Config already exists at %s\n", config.DefaultConfigPath())
		} else {
			fmt.Fprintf(stdout, "Wrote default config to %s\n", path)
		}
		return 0
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "gostt-bench: config: %v\n", err)
		return 1
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "gostt-bench: config validation: %v\n", err)
		return 1
	}

	log := logging.New(stderr, config.ParseLogLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dl := models.NewDownloader(stderr, log)
	if o.downloadModel != "" {
		path, err := dl.EnsureWhisper(ctx, cfg.WhisperCPP.ModelsDir, o.downloadModel)
		if err != nil {
			log.Error().Err(err).Msg("model download failed")
			return 1
		}
		fmt.Fprintf(stdout, "Model ready at %s\n", path)
		return 0
	}

	registry, err := corpus.NewRegistry(corpus.Builtin()...)
	if err != nil {
		log.Error().Err(err).Msg("building corpus registry")
		return 1
	}
	if cfg.CorporaFile != "" {
		if err := registry.LoadFile(cfg.CorporaFile); err != nil {
			log.Error().Err(err).Str("path", cfg.CorporaFile).Msg("loading corpora file")
			return 1
		}
	}

	factories := transcribe.Factories(cfg, dl, log)
	d := dispatch.New(factories, log)
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn().Err(err).Msg("closing backends")
		}
	}()

	if o.list {
		fmt.Fprintln(stdout, "Corpora:")
		for _, id := range registry.SortedIDs() {
			fmt.Fprintf(stdout, "  %s\n", id)
		}
		fmt.Fprintln(stdout, "Models:")
		for _, m := range d.Models() {
			fmt.Fprintf(stdout, "  %s\n", m)
		}
		return 0
	}

	providers, err := buildProviders(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("configuring corpus providers")
		return 1
	}

	corpora := cfg.Eval.Corpora
	if o.all {
		corpora = registry.IDs()
	}

	h := &eval.Harness{
		Corpora:     corpus.NewAdapter(registry, providers, log),
		Transcriber: d,
		Out:         stdout,
		Log:         log,
	}
	rep, err := h.Evaluate(ctx, eval.Request{
		Model:         cfg.Eval.Model,
		Corpora:       corpora,
		Concurrency:   cfg.Eval.Concurrency,
		Limit:         cfg.Eval.Limit,
		SampleTimeout: cfg.Eval.SampleTimeout,
		Streaming:     cfg.Eval.Streaming,
		WER:           cfg.Eval.WER,
		RTF:           cfg.Eval.RTF,
	})
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	log.Debug().Str("run_id", rep.RunID).Int("corpora", len(rep.Corpora)).Msg("done")
	return 0
}

// buildProviders wires the corpus providers. The minio provider is always
// registered; without an endpoint it fails on first use.
func buildProviders(cfg *config.Config, log zerolog.Logger) (map[string]corpus.Provider, error) {
	token, err := corpus.LoadHFToken(cfg.HuggingFace.TokenEnv, cfg.HuggingFace.EnvFile, cfg.HuggingFace.TokenFile)
	if err != nil {
		return nil, err
	}
	if token == "" {
		log.Debug().Msg("no Hugging Face token found; gated datasets will fail")
	}

	var store corpus.ObjectStore
	if mo := minioOptions(cfg.MinIO, os.Getenv); mo.Endpoint != "" {
		if store, err = corpus.NewMinIOStore(mo); err != nil {
			return nil, err
		}
	}

	return map[string]corpus.Provider{
		"manifest": corpus.ManifestProvider{},
		"hf": corpus.NewHFProvider(corpus.HFOptions{
			Endpoint: cfg.HuggingFace.Endpoint,
			Token:    token,
			PageSize: cfg.HuggingFace.PageSize,
		}),
		"minio": corpus.MinIOProvider{Store: store},
	}, nil
}

// reportError prints the failure with the sample it came from, if any.
func reportError(w io.Writer, err error) {
	var se *errs.SampleError
	if errors.As(err, &se) {
		fmt.Fprintf(w, "Evaluation failed on %s sample %d: %v\n", se.Corpus, se.Index, se.Err)
	} else {
		fmt.Fprintf(w, "Evaluation failed: %v\n", err)
	}
	if kind := errs.KindOf(err); kind != "" {
		fmt.Fprintf(w, "  kind: %s\n", kind)
	}
	if e, ok := apperrors.AsAppError(err); ok {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, e.Details[k])
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}
