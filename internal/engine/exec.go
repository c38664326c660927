package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/mattn/go-shellwords"
)

// execSynth drives a command-line synthesizer such as espeak-ng. Each
// utterance spawns one subprocess: text goes in on stdin, a WAV stream
// comes back on stdout (espeak-ng --stdout), and the decoded PCM is
// delivered in chunks sized by chunk_duration_ms.
//
// Parameters are remembered and turned into command-line flags on the
// next invocation; there is no engine state to reject a value, so a
// set always succeeds once the name is known.
type execSynth struct {
	cmd []string
	cfg config.EngineConfig
	log *slog.Logger

	mu        sync.Mutex
	params    map[string]int
	voice     string
	proc      *exec.Cmd
	cancelled bool
}

func NewExecSynth(cfg config.EngineConfig, log *slog.Logger) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execSynth{
		cmd:    args,
		cfg:    cfg,
		log:    log.With(slog.String("component", "engine-exec")),
		params: make(map[string]int),
		voice:  cfg.Voice,
	}, nil
}

func (e *execSynth) Initialize(ctx context.Context) (int, error) {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return 0, fmt.Errorf("engine binary not found: %w", err)
	}
	e.log.Info("exec engine ready",
		slog.String("command", strings.Join(e.cmd, " ")),
		slog.Int("sample_rate", e.cfg.SampleRate))
	return e.cfg.SampleRate, nil
}

func (e *execSynth) SetParameter(name string, value int) error {
	switch name {
	case ParamFrequency, ParamPitch, ParamRate, ParamVolume, ParamPunctuation, ParamCapitals:
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
	e.mu.Lock()
	e.params[name] = value
	e.mu.Unlock()
	return nil
}

func (e *execSynth) SetVoice(name string) error {
	if name == "" {
		return fmt.Errorf("voice name empty")
	}
	e.mu.Lock()
	e.voice = name
	e.mu.Unlock()
	return nil
}

func (e *execSynth) Synthesize(ctx context.Context, text string, deliver func(pcm []int16) error) error {
	args := e.buildArgs()
	base := e.cmd[0]

	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine command: %w", err)
	}
	e.mu.Lock()
	e.proc = cmd
	e.cancelled = false
	e.mu.Unlock()

	err := cmd.Wait()

	e.mu.Lock()
	e.proc = nil
	cancelled := e.cancelled
	e.mu.Unlock()

	// A kill, whether from Cancel or the context, is an interruption,
	// not an engine failure.
	if cancelled || ctx.Err() != nil {
		return ErrCancelled
	}
	if err != nil {
		return fmt.Errorf("engine command failed: %w: %s", err, stderr.String())
	}

	samples, rate, err := decodeWAV(stdout.Bytes())
	if err != nil {
		return fmt.Errorf("decode engine output: %w", err)
	}
	if rate != e.cfg.SampleRate {
		e.log.Warn("engine sample rate differs from configured rate",
			slog.Int("engine_rate", rate),
			slog.Int("configured_rate", e.cfg.SampleRate))
	}

	chunk := e.cfg.SampleRate * e.cfg.Channels * e.cfg.ChunkDurationMS / 1000
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < len(samples); start += chunk {
		end := start + chunk
		if end > len(samples) {
			end = len(samples)
		}
		if err := deliver(samples[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Cancel kills the current subprocess, if any. The interrupted
// Synthesize call returns ErrCancelled.
func (e *execSynth) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	proc := e.proc
	e.mu.Unlock()
	if proc != nil && proc.Process != nil {
		_ = proc.Process.Kill()
	}
}

func (e *execSynth) Shutdown() error {
	e.Cancel()
	return nil
}

func (e *execSynth) buildArgs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{}, e.cmd[1:]...)
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	if v, ok := e.params[ParamRate]; ok {
		args = append(args, "-s", strconv.Itoa(v))
	}
	if v, ok := e.params[ParamPitch]; ok {
		args = append(args, "-p", strconv.Itoa(v))
	}
	if v, ok := e.params[ParamVolume]; ok {
		args = append(args, "-a", strconv.Itoa(v))
	}
	if v, ok := e.params[ParamCapitals]; ok {
		args = append(args, "-k", strconv.Itoa(v))
	}
	if v, ok := e.params[ParamPunctuation]; ok && v > 0 {
		args = append(args, "--punct")
	}
	// frequency (espeak's inflection range) has no command-line flag;
	// the value is accepted and kept but cannot be forwarded.
	return args
}

func decodeWAV(data []byte) ([]int16, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read wav: %w", err)
	}
	if buf.Format == nil {
		return nil, 0, fmt.Errorf("wav stream missing format")
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, buf.Format.SampleRate, nil
}
