package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-speech/internal/bus"
	"github.com/loqalabs/loqa-speech/internal/config"
)

// State describes a sink's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned for writes after Close.
var ErrClosed = errors.New("audio sink closed")

// Sink consumes synthesized PCM.
//
// WriteChunk accepts as many samples as the sink can take right now
// and returns that count; it never blocks waiting for space, so the
// caller stays free to poll its cancellation state between writes.
// DiscardBuffered drops everything queued but not yet played, as
// immediately as the backend allows.
type Sink interface {
	Open(sampleRate int) error
	WriteChunk(samples []int16) (int, error)
	DiscardBuffered() error
	State() State
	Close() error
}

// New builds the sink selected by cfg.Backend. The bus backend needs a
// live connection; the others ignore it.
func New(cfg config.AudioConfig, channels int, busClient *bus.Client, nodeID string, log *slog.Logger) (Sink, error) {
	switch cfg.Backend {
	case "portaudio":
		return newPortAudioSink(cfg, channels, log), nil
	case "oto":
		return newOtoSink(cfg, channels, log), nil
	case "bus":
		if busClient == nil {
			return nil, errors.New("bus audio backend requires a bus connection")
		}
		return newBusSink(cfg, channels, busClient, nodeID, log), nil
	case "none":
		return newNoneSink(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
