package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/engine"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Sink writes are polled, not blocked on: a refused write is retried
// every sinkPollInterval with a fresh look at the stop flag in between.
// sinkPollLimit caps the polling at one second of refusals, after
// which the device is treated as wedged.
const (
	sinkPollInterval = 2 * time.Millisecond
	sinkPollLimit    = 500
)

// Recorder receives a record of executed commands. Implementations
// must tolerate calls from the worker goroutine; a nil Recorder
// disables journaling.
type Recorder interface {
	RecordSpoken(text string)
	RecordParam(param string, value int)
	RecordVoice(voice string)
	RecordStop(discarded int)
}

// Speaker owns the command queue and the single worker goroutine that
// drains it. Producers append commands with Enqueue and cancel
// everything with RequestStop; the worker is the only goroutine that
// talks to the engine and removes queue entries, which is what lets a
// failed command stay at the head for retry.
type Speaker struct {
	cfg   config.SpeechConfig
	log   *slog.Logger
	eng   engine.Synthesizer
	sink  audio.Sink
	store *Store
	queue *Queue
	gate  *Gate

	// Journal and OnStopped are optional hooks, assigned before Start.
	// OnStopped runs on the requester's goroutine after its stop has
	// been acknowledged.
	Journal   Recorder
	OnStopped func()

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	// lastFailure is touched only by the worker goroutine.
	lastFailure string

	meter      metric.Meter
	spokenDone atomic.Int64
	paramsDone atomic.Int64
	voicesDone atomic.Int64
	retries    atomic.Int64
	stops      atomic.Int64
}

func NewSpeaker(cfg config.SpeechConfig, eng engine.Synthesizer, sink audio.Sink, log *slog.Logger) *Speaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		cfg:    cfg,
		log:    log.With(slog.String("component", "speech-worker")),
		eng:    eng,
		sink:   sink,
		store:  NewStore(cfg),
		queue:  NewQueue(),
		gate:   NewGate(),
		ctx:    ctx,
		cancel: cancel,
		meter:  otel.Meter("github.com/loqalabs/loqa-speech/speech"),
	}
	if err := s.initMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

// Start initializes the engine, opens the audio sink at the engine's
// sample rate, pushes the configured startup voice and parameters and
// launches the worker goroutine. Engine and sink failures here are
// fatal; once the loop is running, command failures are retried
// instead. Startup parameter rejections are logged and skipped so an
// engine with a reduced parameter set still comes up.
func (s *Speaker) Start(ctx context.Context) error {
	rate, err := s.eng.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	if err := s.sink.Open(rate); err != nil {
		return fmt.Errorf("open audio sink: %w", err)
	}

	if voice := s.store.Voice(); voice != "" {
		if err := s.eng.SetVoice(voice); err != nil {
			s.log.Warn("startup voice rejected", slog.String("voice", voice), slogError(err))
		}
	}
	for _, p := range []Param{ParamFrequency, ParamPitch, ParamRate, ParamVolume, ParamPunctuation} {
		if err := s.eng.SetParameter(p.String(), Native(p, s.store.Get(p))); err != nil {
			s.log.Warn("startup parameter rejected", slog.String("param", p.String()), slogError(err))
		}
	}
	// Capital announcements stay off; the controlling client decides
	// how capitals are presented.
	if err := s.eng.SetParameter(engine.ParamCapitals, 0); err != nil {
		s.log.Warn("startup parameter rejected", slog.String("param", engine.ParamCapitals), slogError(err))
	}

	s.running.Store(true)
	s.wg.Add(1)
	go s.loop()
	s.log.Info("speech worker started", slog.Int("sample_rate", rate))
	return nil
}

// Enqueue appends cmd for the worker and returns without waiting for
// it to run. Stop commands are rejected; stops bypass the queue via
// RequestStop.
func (s *Speaker) Enqueue(cmd Command) error {
	if cmd.Kind == KindStop {
		return ErrStopNotQueued
	}
	if !s.running.Load() {
		return ErrClosed
	}
	s.queue.Enqueue(cmd)
	return nil
}

// RequestStop cancels the current utterance, discards every queued
// command and all buffered audio, and returns once the worker has
// acknowledged. Safe to call from any goroutine, including several at
// once; each caller returns after its own request is acknowledged.
func (s *Speaker) RequestStop() {
	if !s.running.Load() {
		return
	}
	s.gate.RequestStop(func() {
		if err := s.sink.DiscardBuffered(); err != nil {
			s.log.Warn("discard buffered audio", slogError(err))
		}
	})
	s.queue.Kick()
	// An engine that renders inside Synthesize unblocks here rather
	// than at its next delivery check.
	s.eng.Cancel()
	s.gate.AwaitAcknowledged()
	s.stops.Add(1)
	if s.OnStopped != nil {
		s.OnStopped()
	}
}

// Close stops the worker without draining pending speech, then shuts
// the engine and sink down. Queued commands that never ran are
// dropped.
func (s *Speaker) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	s.queue.Kick()
	s.wg.Wait()

	err := s.eng.Shutdown()
	if cerr := s.sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.log.Info("speech worker stopped", slog.Int("dropped", s.queue.Depth()))
	return err
}

// Healthy reports whether the worker loop is running.
func (s *Speaker) Healthy() bool {
	return s.running.Load()
}

// Depth reports the number of commands waiting for the worker.
func (s *Speaker) Depth() int {
	return s.queue.Depth()
}

// Settings returns the committed voice parameters.
func (s *Speaker) Settings() Settings {
	return s.store.Settings()
}

func (s *Speaker) loop() {
	defer func() {
		// A stop request that raced with shutdown still gets drained
		// and acknowledged; later requesters are released by the gate
		// closing.
		if s.gate.StopPending() {
			s.queue.Drain()
			s.eng.Cancel()
			s.gate.Acknowledge()
		}
		s.gate.Close()
		s.wg.Done()
	}()

	for {
		s.queue.AwaitWork(func() bool {
			return !s.running.Load() || s.gate.StopPending()
		})

		for s.running.Load() && !s.gate.StopPending() {
			cmd, ok := s.queue.Peek()
			if !ok {
				break
			}
			err := s.execute(cmd)
			switch {
			case err == nil:
				s.queue.RemoveHead()
				s.countProcessed(cmd.Kind)
				s.clearFailure()
			case errors.Is(err, ErrStopped):
				// The loop condition sees the pending stop (or the
				// shutdown) and hands control below.
			default:
				// The command stays at the head and is retried; the
				// state it failed against is unchanged, so the retry
				// resolves to the same target.
				s.retries.Add(1)
				s.noteFailure(cmd, err)
			}
		}

		if s.gate.StopPending() {
			discarded := s.queue.Drain()
			s.eng.Cancel()
			s.gate.Acknowledge()
			if s.Journal != nil {
				s.Journal.RecordStop(discarded)
			}
			s.log.Info("stop completed", slog.Int("discarded", discarded))
		}

		if !s.running.Load() {
			return
		}
	}
}

func (s *Speaker) execute(cmd Command) error {
	switch cmd.Kind {
	case KindText:
		return s.speak(cmd.Text)
	case KindParam:
		value, err := s.store.Apply(cmd.Param, cmd.Value, cmd.Adjust, func(p Param, native int) error {
			return s.eng.SetParameter(p.String(), native)
		})
		if err != nil {
			return fmt.Errorf("set %s: %w", cmd.Param, err)
		}
		s.log.Debug("parameter applied", slog.String("param", cmd.Param.String()), slog.Int("value", value))
		if s.Journal != nil {
			s.Journal.RecordParam(cmd.Param.String(), value)
		}
		return nil
	case KindVoice:
		if err := s.store.ApplyVoice(cmd.Voice, s.eng.SetVoice); err != nil {
			return fmt.Errorf("set voice %q: %w", cmd.Voice, err)
		}
		s.log.Debug("voice applied", slog.String("voice", cmd.Voice))
		if s.Journal != nil {
			s.Journal.RecordVoice(cmd.Voice)
		}
		return nil
	default:
		// Unknown kinds are dropped rather than retried; retrying
		// would wedge the queue behind a command that can never
		// succeed.
		s.log.Warn("dropping unknown command kind", slog.Int("kind", int(cmd.Kind)))
		return nil
	}
}

func (s *Speaker) speak(text string) error {
	// A stop consumed on an earlier utterance must not suppress this
	// one.
	s.gate.ClearStopped()

	err := s.eng.Synthesize(s.ctx, text, s.deliver)
	switch {
	case err == nil:
	case errors.Is(err, ErrStopped), errors.Is(err, engine.ErrCancelled), errors.Is(err, context.Canceled):
		// Interruptions, by a stop request or by shutdown, are not
		// synthesis failures.
		return ErrStopped
	default:
		return fmt.Errorf("synthesize: %w", err)
	}
	if s.Journal != nil {
		s.Journal.RecordSpoken(text)
	}
	return nil
}

// deliver pushes one synthesized chunk into the sink. Writes are
// bounded by what the sink will take; each refusal is followed by a
// short sleep and a fresh look at the stop flag, so a stop lands
// within milliseconds even while the device buffer is full.
func (s *Speaker) deliver(pcm []int16) error {
	polls := 0
	for len(pcm) > 0 {
		if s.gate.Stopped() {
			if err := s.sink.DiscardBuffered(); err != nil {
				s.log.Warn("discard buffered audio", slogError(err))
			}
			return ErrStopped
		}
		if s.ctx.Err() != nil {
			return ErrStopped
		}
		n, err := s.sink.WriteChunk(pcm)
		if err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		if n == 0 {
			polls++
			if polls > sinkPollLimit {
				return fmt.Errorf("audio sink stalled for %v", sinkPollLimit*sinkPollInterval)
			}
			time.Sleep(sinkPollInterval)
			continue
		}
		polls = 0
		pcm = pcm[n:]
	}
	return nil
}

func (s *Speaker) countProcessed(kind Kind) {
	switch kind {
	case KindText:
		s.spokenDone.Add(1)
	case KindParam:
		s.paramsDone.Add(1)
	case KindVoice:
		s.voicesDone.Add(1)
	}
}

// noteFailure logs a failure once per distinct error, not once per
// retry attempt; a hot retry against a wedged engine would otherwise
// flood the log.
func (s *Speaker) noteFailure(cmd Command, err error) {
	if s.lastFailure == err.Error() {
		return
	}
	s.lastFailure = err.Error()
	s.log.Warn("command failed, retrying",
		slog.String("kind", cmd.Kind.String()),
		slogError(err))
}

func (s *Speaker) clearFailure() {
	s.lastFailure = ""
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
