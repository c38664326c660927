package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/loqalabs/loqa-speech/internal/config"
)

// otoDeviceBuffer is the driver-side buffer handed to oto. It stays
// deliberately small so playback tracks the ring closely; the
// configurable buffer_ms applies to the ring in front of it.
const otoDeviceBuffer = 50 * time.Millisecond

// otoSink plays PCM through the oto library. The player pulls from a
// ring that serves silence when empty, which keeps one long-lived
// player running across utterances instead of re-creating it per
// utterance.
type otoSink struct {
	cfg      config.AudioConfig
	channels int
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	otoCtx *oto.Context
	player *oto.Player
	ring   *Ring
}

func newOtoSink(cfg config.AudioConfig, channels int, log *slog.Logger) Sink {
	return &otoSink{
		cfg:      cfg,
		channels: channels,
		log:      log.With(slog.String("component", "audio-oto")),
	}
}

func (o *otoSink) Open(sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateClosed {
		return ErrClosed
	}

	capacity := sampleRate * o.channels * 2 * o.cfg.BufferMS / 1000
	o.ring = NewRing(capacity)

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: o.channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   otoDeviceBuffer,
	})
	if err != nil {
		return fmt.Errorf("create oto context: %w", err)
	}
	<-ready

	o.otoCtx = ctx
	o.player = ctx.NewPlayer(o.ring)
	o.player.Play()
	o.state = StateRunning
	o.log.Info("audio sink open",
		slog.String("backend", "oto"),
		slog.Int("sample_rate", sampleRate),
		slog.Int("buffer_bytes", capacity))
	return nil
}

func (o *otoSink) WriteChunk(samples []int16) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return 0, ErrClosed
	}

	// whole samples only, so the byte stream never splits mid-sample
	n := o.ring.Free() / 2
	if n > len(samples) {
		n = len(samples)
	}
	if n == 0 {
		return 0, nil
	}
	o.ring.Push(samplesToBytes(samples[:n]))
	return n, nil
}

func (o *otoSink) DiscardBuffered() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ring != nil {
		o.ring.Clear()
	}
	if o.state != StateRunning || o.player == nil {
		return nil
	}
	// Recycle the player: closing it drops whatever the device side has
	// already pulled, so a stop silences more than just the ring.
	err := o.player.Close()
	o.player = o.otoCtx.NewPlayer(o.ring)
	o.player.Play()
	if err != nil {
		return fmt.Errorf("recycle oto player: %w", err)
	}
	return nil
}

func (o *otoSink) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *otoSink) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateClosed {
		return nil
	}
	o.state = StateClosed
	if o.ring != nil {
		o.ring.Clear()
	}
	if o.player != nil {
		err := o.player.Close()
		o.player = nil
		return err
	}
	return nil
}
