package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
)

// processWaitDelay bounds how long a killed recognizer's children may hold
// its output pipes open.
const processWaitDelay = 2 * time.Second

// CLIOptions configures a CLIBackend.
type CLIOptions struct {
	// Command is the whisper-cli invocation, possibly with extra flags.
	Command   string
	ModelPath string
	Threads   int
	Log       zerolog.Logger
}

// CLIBackend runs whisper.cpp's whisper-cli once per sample.
type CLIBackend struct {
	args      []string
	modelPath string
	threads   int
	log       zerolog.Logger
}

// NewCLI checks that the executable and model exist.
func NewCLI(opts CLIOptions) (*CLIBackend, error) {
	args, err := shellwords.NewParser().Parse(opts.Command)
	if err != nil {
		return nil, errs.Configuration("whisper_cpp: parse command %q: %v", opts.Command, err)
	}
	if len(args) == 0 {
		return nil, errs.Configuration("whisper_cpp: command is empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, errs.Configuration("whisper_cpp: %s not found: %v", args[0], err)
	}
	if info, err := os.Stat(opts.ModelPath); err != nil || info.IsDir() {
		return nil, errs.Configuration("whisper_cpp: model %s not found (try --download-model)", opts.ModelPath)
	}
	return &CLIBackend{args: args, modelPath: opts.ModelPath, threads: opts.Threads, log: opts.Log}, nil
}

func (b *CLIBackend) Input() audio.Kind { return audio.KindPath }

func (b *CLIBackend) Transcribe(ctx context.Context, in audio.Ref) (string, error) {
	if in.Kind() != audio.KindPath {
		return "", fmt.Errorf("whisper_cpp: want a file path, got %s", in.Kind())
	}
	args := append([]string{}, b.args[1:]...)
	args = append(args, "-m", b.modelPath, "--no-timestamps")
	if b.threads > 0 {
		args = append(args, "-t", strconv.Itoa(b.threads))
	}
	args = append(args, "-f", in.Path)

	cmd := exec.CommandContext(ctx, b.args[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = processWaitDelay

	b.log.Debug().Str("audio", in.Path).Strs("args", args).Msg("running whisper-cli")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whisper-cli failed: %w: %s", err, lastLine(stderr.String()))
	}
	return joinLines(stdout.String()), nil
}

func (b *CLIBackend) Close() error { return nil }

// joinLines trims each output line and joins the non-empty ones.
func joinLines(s string) string {
	var parts []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
