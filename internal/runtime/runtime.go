package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/bus"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/control"
	"github.com/loqalabs/loqa-speech/internal/engine"
	"github.com/loqalabs/loqa-speech/internal/journal"
	"github.com/loqalabs/loqa-speech/internal/natsserver"
	"github.com/loqalabs/loqa-speech/internal/presence"
	"github.com/loqalabs/loqa-speech/internal/speech"
)

// Runtime assembles the speech node and owns its lifecycle. Start
// blocks until the context is cancelled, then tears everything down in
// reverse order: control surfaces first so no new work arrives, the
// speech worker next, infrastructure last.
type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	journal    *journal.Store
	speaker    *speech.Speaker
	listener   *control.Listener
	device     *control.DeviceReader
	announcer  *presence.Announcer
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	r.natsServer, err = natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}

	r.busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}

	r.journal, err = journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	synth, err := engine.New(r.cfg.Engine, r.logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	sink, err := audio.New(r.cfg.Audio, r.cfg.Engine.Channels, r.busClient, r.cfg.Node.ID, r.logger)
	if err != nil {
		return fmt.Errorf("build audio sink: %w", err)
	}

	r.speaker = speech.NewSpeaker(r.cfg.Speech, synth, sink, r.logger)
	r.speaker.Journal = r.journal

	r.listener = control.NewListener(r.cfg.Control, control.Info{
		NodeID:  r.cfg.Node.ID,
		Engine:  r.cfg.Engine.Mode,
		Backend: r.cfg.Audio.Backend,
	}, r.busClient, r.speaker, r.logger)
	r.speaker.OnStopped = r.listener.PublishStopped

	// An engine that cannot come up is fatal; there is nothing to
	// retry against.
	if err := r.speaker.Start(ctx); err != nil {
		return fmt.Errorf("start speech worker: %w", err)
	}

	if err := r.listener.Start(); err != nil {
		return fmt.Errorf("start control listener: %w", err)
	}

	r.device = control.NewDeviceReader(r.cfg.Control.DevicePath, r.speaker, r.logger)
	if err := r.device.Start(); err != nil {
		return fmt.Errorf("attach control device: %w", err)
	}

	node := annotateCapabilities(r.cfg.Node, r.cfg.Engine.Mode, r.cfg.Audio.Backend)
	r.announcer = presence.NewAnnouncer(ctx, node, r.busClient, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/journal", r.handleJournal)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("node", r.cfg.Node.ID),
		slog.String("engine", r.cfg.Engine.Mode),
		slog.String("audio_backend", r.cfg.Audio.Backend))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	r.announcer.Close()
	r.device.Close()
	r.listener.Close()
	if err := r.speaker.Close(); err != nil {
		r.logger.Error("speech worker shutdown error", slog.String("error", err.Error()))
	}
	if err := r.journal.Close(); err != nil {
		r.logger.Error("journal close error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	r.natsServer.Shutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// annotateCapabilities stamps the active engine mode and audio backend
// onto the advertised speech.output capability so peers can pick a node
// without a follow-up status query. Attributes set in the config win.
func annotateCapabilities(node config.NodeConfig, engineMode, backend string) config.NodeConfig {
	caps := make([]config.NodeCapability, len(node.Capabilities))
	copy(caps, node.Capabilities)
	for i, c := range caps {
		if c.Name != "speech.output" {
			continue
		}
		attrs := map[string]string{"engine": engineMode, "backend": backend}
		for k, v := range c.Attributes {
			attrs[k] = v
		}
		caps[i].Attributes = attrs
	}
	node.Capabilities = caps
	return node
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.speaker.Healthy() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleJournal(w http.ResponseWriter, req *http.Request) {
	entries, err := r.journal.Recent(req.Context(), 50)
	if err != nil {
		r.logger.Warn("journal query failed", slog.String("error", err.Error()))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
