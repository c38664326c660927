package engine

import (
	"context"
	"math"
	"sync"

	"github.com/loqalabs/loqa-speech/internal/config"
)

// mockSynth renders a fixed tone instead of speech, long enough to be
// proportional to the text. It keeps development machines bootable
// without a synthesizer installed.
type mockSynth struct {
	cfg config.EngineConfig

	mu     sync.Mutex
	params map[string]int
	voice  string
}

func NewMockSynth(cfg config.EngineConfig) Synthesizer {
	return &mockSynth{cfg: cfg, params: make(map[string]int), voice: cfg.Voice}
}

func (m *mockSynth) Initialize(ctx context.Context) (int, error) {
	return m.cfg.SampleRate, nil
}

func (m *mockSynth) SetParameter(name string, value int) error {
	m.mu.Lock()
	m.params[name] = value
	m.mu.Unlock()
	return nil
}

func (m *mockSynth) SetVoice(name string) error {
	m.mu.Lock()
	m.voice = name
	m.mu.Unlock()
	return nil
}

func (m *mockSynth) Synthesize(ctx context.Context, text string, deliver func(pcm []int16) error) error {
	// 40ms of tone per character, capped at two seconds
	totalMS := 40 * len(text)
	if totalMS > 2000 {
		totalMS = 2000
	}
	total := m.cfg.SampleRate * m.cfg.Channels * totalMS / 1000
	chunk := m.cfg.SampleRate * m.cfg.Channels * m.cfg.ChunkDurationMS / 1000
	if chunk < 1 {
		chunk = 1
	}

	const freq = 440.0
	for offset := 0; offset < total; offset += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := chunk
		if offset+n > total {
			n = total - offset
		}
		pcm := make([]int16, n)
		for i := range pcm {
			t := float64(offset+i) / float64(m.cfg.SampleRate*m.cfg.Channels)
			pcm[i] = int16(0.2 * math.MaxInt16 * math.Sin(2*math.Pi*freq*t))
		}
		if err := deliver(pcm); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSynth) Cancel() {}

func (m *mockSynth) Shutdown() error { return nil }
