package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/loqa-speech/internal/config"
)

// portaudioSink writes PCM to the default output device. Writes are
// bounded by the space the device reports, so the caller is never
// parked inside the audio layer while a stop is pending.
type portaudioSink struct {
	cfg      config.AudioConfig
	channels int
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	stream  *portaudio.Stream
	buf     []int16
	started bool
}

func newPortAudioSink(cfg config.AudioConfig, channels int, log *slog.Logger) Sink {
	return &portaudioSink{
		cfg:      cfg,
		channels: channels,
		log:      log.With(slog.String("component", "audio-portaudio")),
	}
}

func (p *portaudioSink) Open(sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return ErrClosed
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	// The stream writes whatever p.buf holds at call time, so the
	// slice is resized per write up to one burst of frames.
	p.buf = make([]int16, p.cfg.BurstFrames*p.channels)
	stream, err := portaudio.OpenDefaultStream(0, p.channels, float64(sampleRate), p.cfg.BurstFrames, &p.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open portaudio stream: %w", err)
	}

	p.stream = stream
	p.state = StateRunning
	p.log.Info("audio sink open",
		slog.String("backend", "portaudio"),
		slog.Int("sample_rate", sampleRate),
		slog.Int("burst_frames", p.cfg.BurstFrames))
	return nil
}

func (p *portaudioSink) WriteChunk(samples []int16) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return 0, ErrClosed
	}

	// A discard aborts the stream; restart it before the next write.
	if !p.started {
		if err := p.stream.Start(); err != nil {
			return 0, fmt.Errorf("start portaudio stream: %w", err)
		}
		p.started = true
	}

	avail, err := p.stream.AvailableToWrite()
	if err != nil {
		return 0, fmt.Errorf("query portaudio buffer: %w", err)
	}
	if avail <= 0 {
		return 0, nil
	}

	n := avail * p.channels
	if max := p.cfg.BurstFrames * p.channels; n > max {
		n = max
	}
	if n > len(samples) {
		n = len(samples)
	}
	n -= n % p.channels
	if n == 0 {
		return 0, nil
	}

	p.buf = p.buf[:n]
	copy(p.buf, samples[:n])
	if err := p.stream.Write(); err != nil {
		// Underflow still consumes the frames; report them written
		// and let playback continue.
		p.log.Debug("portaudio write", slogError(err))
	}
	return n, nil
}

func (p *portaudioSink) DiscardBuffered() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || !p.started {
		return nil
	}
	p.started = false
	if err := p.stream.Abort(); err != nil {
		return fmt.Errorf("abort portaudio stream: %w", err)
	}
	return nil
}

func (p *portaudioSink) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *portaudioSink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return nil
	}
	p.state = StateClosed
	var first error
	if p.stream != nil {
		if p.started {
			if err := p.stream.Abort(); err != nil && first == nil {
				first = err
			}
		}
		if err := p.stream.Close(); err != nil && first == nil {
			first = err
		}
		p.stream = nil
	}
	if err := portaudio.Terminate(); err != nil && first == nil {
		first = err
	}
	return first
}
