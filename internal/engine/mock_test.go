package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-speech/internal/config"
)

func mockEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Mode:            "mock",
		SampleRate:      22050,
		Channels:        1,
		ChunkDurationMS: 100,
	}
}

func TestMockSynthDeliversProportionalAudio(t *testing.T) {
	m := NewMockSynth(mockEngineConfig())
	rate, err := m.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if rate != 22050 {
		t.Fatalf("rate = %d, want 22050", rate)
	}

	var total int
	text := strings.Repeat("x", 10) // 400ms of tone
	err = m.Synthesize(context.Background(), text, func(pcm []int16) error {
		if len(pcm) == 0 {
			t.Fatalf("empty chunk delivered")
		}
		if len(pcm) > 2205 {
			t.Fatalf("chunk of %d samples exceeds 100ms", len(pcm))
		}
		total += len(pcm)
		return nil
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if want := 22050 * 400 / 1000; total != want {
		t.Fatalf("delivered %d samples, want %d", total, want)
	}
}

func TestMockSynthReturnsDeliverErrorUnchanged(t *testing.T) {
	m := NewMockSynth(mockEngineConfig())
	abort := errors.New("delivery aborted")

	calls := 0
	err := m.Synthesize(context.Background(), strings.Repeat("x", 20), func(pcm []int16) error {
		calls++
		if calls == 2 {
			return abort
		}
		return nil
	})
	if !errors.Is(err, abort) {
		t.Fatalf("synthesize error = %v, want the deliver error", err)
	}
	if calls != 2 {
		t.Fatalf("delivery continued after error: %d calls", calls)
	}
}

func TestMockSynthHonorsContext(t *testing.T) {
	m := NewMockSynth(mockEngineConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Synthesize(ctx, "never rendered", func(pcm []int16) error {
		t.Fatalf("chunk delivered despite cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("synthesize error = %v, want context.Canceled", err)
	}
}

func TestMockSynthRecordsParameters(t *testing.T) {
	m := NewMockSynth(mockEngineConfig())
	if err := m.SetParameter(ParamRate, 254); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := m.SetVoice("en-GB"); err != nil {
		t.Fatalf("set voice: %v", err)
	}
	ms := m.(*mockSynth)
	if ms.params[ParamRate] != 254 {
		t.Fatalf("rate not recorded: %v", ms.params)
	}
	if ms.voice != "en-GB" {
		t.Fatalf("voice = %q, want en-GB", ms.voice)
	}
}
