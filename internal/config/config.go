package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"` // "console" or "json"
	Eval        EvalConfig        `yaml:"eval"`
	CorporaFile string            `yaml:"corpora_file"`
	WhisperCPP  WhisperCPPConfig  `yaml:"whisper_cpp"`
	Whisper     WhisperConfig     `yaml:"whisper"`
	Exec        map[string]Exec   `yaml:"exec"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
	MinIO       MinIOConfig       `yaml:"minio"`
}

// EvalConfig holds the evaluation request defaults.
type EvalConfig struct {
	Model         string        `yaml:"model"`
	Corpora       []string      `yaml:"corpora"`
	Concurrency   int           `yaml:"concurrency"`
	Limit         int           `yaml:"limit"`          // 0 = no cap
	SampleTimeout time.Duration `yaml:"sample_timeout"` // 0 = no deadline
	Streaming     bool          `yaml:"streaming"`
	WER           bool          `yaml:"wer"`
	RTF           bool          `yaml:"rtf"`
}

// WhisperCPPConfig configures the whisper-cli process backend.
type WhisperCPPConfig struct {
	Binary       string `yaml:"binary"`
	ModelsDir    string `yaml:"models_dir"`
	DefaultModel string `yaml:"default_model"`
	Threads      int    `yaml:"threads"`
	AutoDownload bool   `yaml:"auto_download"`
}

// WhisperConfig configures the in-process whisper.cpp bindings backend.
type WhisperConfig struct {
	ModelsDir    string `yaml:"models_dir"`
	DefaultModel string `yaml:"default_model"`
}

// Exec configures a generic recognizer process selected as "exec/<name>".
// The command receives --audio <wav> and prints {"text": "..."} on stdout.
type Exec struct {
	Command     string  `yaml:"command"`
	MinAudioSec float64 `yaml:"min_audio_sec"`
	MaxAudioSec float64 `yaml:"max_audio_sec"`
}

// HuggingFaceConfig configures the datasets-server corpus provider.
type HuggingFaceConfig struct {
	Endpoint  string `yaml:"endpoint"`
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
	EnvFile   string `yaml:"env_file"`
	PageSize  int    `yaml:"page_size"`
}

// MinIOConfig configures the object-storage corpus provider. Empty fields
// fall back to the MINIO_* environment variables.
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-bench")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the default directory for downloaded models.
func DefaultModelsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "gostt-bench", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Eval: EvalConfig{
			Model:       "whisper_cpp/base",
			Concurrency: 1,
			WER:         true,
		},
		WhisperCPP: WhisperCPPConfig{
			Binary:       "whisper-cli",
			ModelsDir:    DefaultModelsDir(),
			DefaultModel: "base",
		},
		Whisper: WhisperConfig{
			ModelsDir:    DefaultModelsDir(),
			DefaultModel: "base.en",
		},
		Exec: map[string]Exec{},
		HuggingFace: HuggingFaceConfig{
			Endpoint:  "https://datasets-server.huggingface.co",
			TokenEnv:  "HF_TOKEN",
			TokenFile: ".venv/huggingface_token",
			EnvFile:   ".env",
			PageSize:  100,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.CorporaFile = expandTilde(cfg.CorporaFile)
	cfg.WhisperCPP.Binary = expandTilde(cfg.WhisperCPP.Binary)
	cfg.WhisperCPP.ModelsDir = expandTilde(cfg.WhisperCPP.ModelsDir)
	cfg.Whisper.ModelsDir = expandTilde(cfg.Whisper.ModelsDir)
	cfg.HuggingFace.TokenFile = expandTilde(cfg.HuggingFace.TokenFile)
	cfg.HuggingFace.EnvFile = expandTilde(cfg.HuggingFace.EnvFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Eval.Model == "" {
		return fmt.Errorf("eval.model must not be empty")
	}

	if c.Eval.Concurrency < 1 {
		return fmt.Errorf("eval.concurrency must be >= 1, got %d", c.Eval.Concurrency)
	}

	if c.Eval.Limit < 0 {
		return fmt.Errorf("eval.limit must be >= 0, got %d", c.Eval.Limit)
	}

	if c.Eval.SampleTimeout < 0 {
		return fmt.Errorf("eval.sample_timeout must be >= 0, got %s", c.Eval.SampleTimeout)
	}

	if c.WhisperCPP.Binary == "" {
		return fmt.Errorf("whisper_cpp.binary must not be empty")
	}

	for name, e := range c.Exec {
		if strings.TrimSpace(e.Command) == "" {
			return fmt.Errorf("exec.%s.command must not be empty", name)
		}
		if e.MaxAudioSec > 0 && e.MinAudioSec > e.MaxAudioSec {
			return fmt.Errorf("exec.%s: min_audio_sec %.2f exceeds max_audio_sec %.2f", name, e.MinAudioSec, e.MaxAudioSec)
		}
	}

	if c.HuggingFace.PageSize < 1 || c.HuggingFace.PageSize > 100 {
		return fmt.Errorf("huggingface.page_size must be in [1, 100], got %d", c.HuggingFace.PageSize)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be \"console\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

// ParseLogLevel maps a config log level to a zerolog level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

const defaultConfigHeader = `# gostt-bench configuration
# Model ids: whisper_cpp[/size], whisper[/size], exec/<name>
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" if a file existed.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultConfigHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
