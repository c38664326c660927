package audio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-speech/internal/bus"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/protocol"
)

// busSink publishes PCM chunks onto the message bus for a remote
// playback node. A discard is forwarded as a marker chunk so the
// receiver can flush whatever it has buffered.
type busSink struct {
	cfg    config.AudioConfig
	client *bus.Client
	nodeID string
	log    *slog.Logger

	mu         sync.Mutex
	state      State
	sequence   uint64
	sampleRate int
	channels   int
}

func newBusSink(cfg config.AudioConfig, channels int, client *bus.Client, nodeID string, log *slog.Logger) Sink {
	return &busSink{
		cfg:      cfg,
		client:   client,
		nodeID:   nodeID,
		channels: channels,
		log:      log.With(slog.String("component", "audio-bus")),
	}
}

func (b *busSink) subject() string {
	return protocol.SubjectAudioOutPrefix + "." + b.cfg.Target
}

func (b *busSink) Open(sampleRate int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return ErrClosed
	}
	if !b.client.Healthy() {
		return fmt.Errorf("bus connection not ready")
	}
	b.sampleRate = sampleRate
	b.state = StateRunning
	b.log.Info("audio sink open",
		slog.String("backend", "bus"),
		slog.String("subject", b.subject()),
		slog.Int("sample_rate", sampleRate))
	return nil
}

func (b *busSink) publish(chunk protocol.AudioChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal audio chunk: %w", err)
	}
	if err := b.client.Conn().Publish(b.subject(), data); err != nil {
		return fmt.Errorf("publish audio chunk: %w", err)
	}
	return nil
}

func (b *busSink) WriteChunk(samples []int16) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateRunning {
		return 0, ErrClosed
	}
	b.sequence++
	err := b.publish(protocol.AudioChunk{
		Source:     b.nodeID,
		Sequence:   b.sequence,
		SampleRate: b.sampleRate,
		Channels:   b.channels,
		PCM:        samplesToBytes(samples),
	})
	if err != nil {
		return 0, err
	}
	return len(samples), nil
}

func (b *busSink) DiscardBuffered() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateRunning {
		return nil
	}
	b.sequence++
	return b.publish(protocol.AudioChunk{
		Source:   b.nodeID,
		Sequence: b.sequence,
		Discard:  true,
	})
}

func (b *busSink) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *busSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return nil
	}
	b.state = StateClosed
	// Give the last published chunks a moment to flush.
	if b.client.Healthy() {
		b.client.Conn().FlushTimeout(2 * time.Second)
	}
	return nil
}
