package control

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-speech/internal/bus"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/protocol"
	"github.com/loqalabs/loqa-speech/internal/speech"
	"github.com/nats-io/nats.go"
)

// Info describes the node for status replies.
type Info struct {
	NodeID  string
	Engine  string
	Backend string
}

// Listener exposes the speech queue on the message bus. Say, param and
// voice requests are queued and acknowledged immediately; stop requests
// are acknowledged only once the worker has drained and cancelled
// everything.
type Listener struct {
	cfg     config.ControlConfig
	info    Info
	bus     *bus.Client
	speaker *speech.Speaker
	subs    []*nats.Subscription
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewListener(cfg config.ControlConfig, info Info, busClient *bus.Client, speaker *speech.Speaker, log *slog.Logger) *Listener {
	return &Listener{
		cfg:     cfg,
		info:    info,
		bus:     busClient,
		speaker: speaker,
		logger:  log.With(slog.String("component", "control-listener")),
	}
}

type ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (l *Listener) subject(op string) string {
	return l.cfg.SubjectPrefix + "." + op
}

func (l *Listener) Start() error {
	handlers := []struct {
		op string
		fn nats.MsgHandler
	}{
		{protocol.ControlSay, l.handleSay},
		{protocol.ControlParam, l.handleParam},
		{protocol.ControlVoice, l.handleVoice},
		{protocol.ControlStop, l.handleStop},
		{protocol.ControlStatus, l.handleStatus},
	}
	for _, h := range handlers {
		sub, err := l.bus.Conn().Subscribe(l.subject(h.op), h.fn)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", l.subject(h.op), err)
		}
		l.subs = append(l.subs, sub)
	}
	l.logger.Info("control listener ready", slog.String("prefix", l.cfg.SubjectPrefix))
	return nil
}

func (l *Listener) Close() {
	for _, sub := range l.subs {
		_ = sub.Drain()
	}
	l.wg.Wait()
}

func (l *Listener) Healthy() bool {
	return len(l.subs) > 0
}

func (l *Listener) handleSay(msg *nats.Msg) {
	var req protocol.SayRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.logger.Warn("failed to decode say request", slogError(err))
		l.respondErr(msg, "bad request")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		l.respondErr(msg, "empty text")
		return
	}
	if err := l.speaker.Enqueue(speech.SpeakText(req.Text)); err != nil {
		l.logger.Warn("failed to queue utterance", slogError(err))
		l.respondErr(msg, err.Error())
		return
	}
	l.respondOK(msg)
}

func (l *Listener) handleParam(msg *nats.Msg) {
	var req protocol.ParamRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.logger.Warn("failed to decode param request", slogError(err))
		l.respondErr(msg, "bad request")
		return
	}
	param, ok := speech.ParamByName(req.Param)
	if !ok {
		l.respondErr(msg, fmt.Sprintf("unknown parameter %q", req.Param))
		return
	}
	value, adjust := req.Value, speech.AdjustAbsolute
	if req.Relative {
		adjust = speech.AdjustIncrement
		if value < 0 {
			adjust = speech.AdjustDecrement
			value = -value
		}
	}
	if err := l.speaker.Enqueue(speech.SetParam(param, value, adjust)); err != nil {
		l.logger.Warn("failed to queue parameter change", slogError(err))
		l.respondErr(msg, err.Error())
		return
	}
	l.respondOK(msg)
}

func (l *Listener) handleVoice(msg *nats.Msg) {
	var req protocol.VoiceRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.logger.Warn("failed to decode voice request", slogError(err))
		l.respondErr(msg, "bad request")
		return
	}
	if req.Voice == "" {
		l.respondErr(msg, "empty voice")
		return
	}
	if err := l.speaker.Enqueue(speech.SetVoice(req.Voice)); err != nil {
		l.logger.Warn("failed to queue voice change", slogError(err))
		l.respondErr(msg, err.Error())
		return
	}
	l.respondOK(msg)
}

// handleStop acknowledges only after the worker has fully honored the
// stop, so a requester that got the reply knows the audio is silent.
func (l *Listener) handleStop(msg *nats.Msg) {
	var req protocol.StopRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			l.logger.Warn("failed to decode stop request", slogError(err))
		}
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.speaker.RequestStop()
		l.logger.Debug("stop request honored", slog.String("reason", req.Reason))
		l.respondOK(msg)
	}()
}

func (l *Listener) handleStatus(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	settings := l.speaker.Settings()
	status := protocol.Status{
		NodeID:      l.info.NodeID,
		Healthy:     l.speaker.Healthy(),
		QueueDepth:  l.speaker.Depth(),
		Engine:      l.info.Engine,
		Backend:     l.info.Backend,
		Voice:       settings.Voice,
		Frequency:   settings.Frequency,
		Pitch:       settings.Pitch,
		Rate:        settings.Rate,
		Volume:      settings.Volume,
		Punctuation: settings.Punctuation,
	}
	data, err := json.Marshal(status)
	if err != nil {
		l.logger.Warn("failed to marshal status", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		l.logger.Warn("failed to respond with status", slogError(err))
	}
}

// PublishStopped broadcasts a completed stop. The runtime wires this
// into the speaker's OnStopped hook so device-initiated stops announce
// themselves the same way bus-initiated ones do.
func (l *Listener) PublishStopped() {
	event := protocol.Stopped{
		NodeID:    l.info.NodeID,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal stopped event", slogError(err))
		return
	}
	if err := l.bus.Conn().Publish(l.subject(protocol.ControlStopped), data); err != nil {
		l.logger.Warn("failed to publish stopped event", slogError(err))
	}
}

func (l *Listener) respondOK(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(ack{OK: true})
	if err := msg.Respond(data); err != nil {
		l.logger.Warn("failed to respond", slogError(err))
	}
}

func (l *Listener) respondErr(msg *nats.Msg, reason string) {
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(ack{OK: false, Error: reason})
	if err := msg.Respond(data); err != nil {
		l.logger.Warn("failed to respond", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
