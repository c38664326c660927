package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-speech/internal/config"
)

// ErrCancelled reports that Cancel interrupted the synthesis in
// progress. The partial output is dropped, not delivered.
var ErrCancelled = errors.New("synthesis cancelled")

// Well-known parameter names, passed to SetParameter in engine-native
// units.
const (
	ParamFrequency   = "frequency"
	ParamPitch       = "pitch"
	ParamRate        = "rate"
	ParamVolume      = "volume"
	ParamPunctuation = "punctuation"
	ParamCapitals    = "capitals"
)

// Synthesizer is the contract for a speech engine adapter.
//
// Synthesize runs synchronously on the caller's goroutine and invokes
// deliver zero or more times with chunks of 16-bit PCM before
// returning. When deliver returns a non-nil error the adapter stops
// synthesizing immediately and returns that error unchanged, so the
// caller can distinguish its own abort from an engine failure.
type Synthesizer interface {
	// Initialize prepares the engine and reports its output sample rate.
	Initialize(ctx context.Context) (int, error)
	SetParameter(name string, value int) error
	SetVoice(name string) error
	Synthesize(ctx context.Context, text string, deliver func(pcm []int16) error) error
	// Cancel aborts any in-flight synthesis, which then returns
	// ErrCancelled. Safe to call from any goroutine at any time.
	Cancel()
	Shutdown() error
}

// New builds the synthesizer selected by cfg.Mode.
func New(cfg config.EngineConfig, log *slog.Logger) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg), nil
	case "exec":
		return NewExecSynth(cfg, log)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
