package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
)

// ExecOptions configures an ExecBackend.
type ExecOptions struct {
	Name    string
	Command string
	// Model is passed as --model when set.
	Model    string
	MinAudio time.Duration
	MaxAudio time.Duration
	Log      zerolog.Logger
}

// ExecBackend runs an external recognizer per sample. The process gets
// --audio <wav> [--model <variant>] and prints {"text": "..."} or plain
// text on stdout.
type ExecBackend struct {
	name     string
	cmd      []string
	model    string
	min, max time.Duration
	log      zerolog.Logger
}

type execResult struct {
	Text string `json:"text"`
}

func NewExec(opts ExecOptions) (*ExecBackend, error) {
	args, err := shellwords.NewParser().Parse(opts.Command)
	if err != nil {
		return nil, errs.Configuration("exec/%s: parse command: %v", opts.Name, err)
	}
	if len(args) == 0 {
		return nil, errs.Configuration("exec/%s: command is empty", opts.Name)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, errs.Configuration("exec/%s: %s not found: %v", opts.Name, args[0], err)
	}
	return &ExecBackend{
		name:  opts.Name,
		cmd:   args,
		model: opts.Model,
		min:   opts.MinAudio,
		max:   opts.MaxAudio,
		log:   opts.Log,
	}, nil
}

func (b *ExecBackend) Input() audio.Kind { return audio.KindPath }

func (b *ExecBackend) Bounds() (min, max time.Duration) { return b.min, b.max }

func (b *ExecBackend) Transcribe(ctx context.Context, in audio.Ref) (string, error) {
	if in.Kind() != audio.KindPath {
		return "", fmt.Errorf("exec/%s: want a file path, got %s", b.name, in.Kind())
	}
	cmdArgs := append([]string{}, b.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", in.Path)
	if b.model != "" {
		cmdArgs = append(cmdArgs, "--model", b.model)
	}

	command := exec.CommandContext(ctx, b.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = processWaitDelay

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("exec/%s command failed: %w: %s", b.name, err, lastLine(stderr.String()))
	}
	return parseExecOutput(stdout.Bytes())
}

func (b *ExecBackend) Close() error { return nil }

func parseExecOutput(out []byte) (string, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return joinLines(string(trimmed)), nil
	}
	var resp execResult
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return "", fmt.Errorf("decode recognizer response: %w", err)
	}
	return joinLines(resp.Text), nil
}
