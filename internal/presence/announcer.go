package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-speech/internal/bus"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/protocol"
)

// Capability is one advertised node capability.
type Capability struct {
	Name       string            `json:"name"`
	Tier       string            `json:"tier,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type announceMessage struct {
	NodeID       string       `json:"node_id"`
	Role         string       `json:"role"`
	Capabilities []Capability `json:"capabilities"`
	Timestamp    time.Time    `json:"timestamp"`
}

type heartbeatMessage struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Announcer makes the speech node visible on the control plane: one
// announce on start, then heartbeats on a fixed interval. A leaf node
// only publishes; it does not track its peers.
type Announcer struct {
	cfg       config.NodeConfig
	log       *slog.Logger
	bus       *bus.Client
	heartbeat *time.Ticker
	cancel    context.CancelFunc
}

func NewAnnouncer(ctx context.Context, cfg config.NodeConfig, busClient *bus.Client, log *slog.Logger) *Announcer {
	ctx, cancel := context.WithCancel(ctx)
	a := &Announcer{
		cfg:    cfg,
		log:    log.With(slog.String("component", "presence")),
		bus:    busClient,
		cancel: cancel,
	}

	if err := a.announce(); err != nil {
		a.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	a.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go a.runHeartbeat(ctx)

	return a
}

func (a *Announcer) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.heartbeat != nil {
		a.heartbeat.Stop()
	}
}

func (a *Announcer) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.heartbeat.C:
			if err := a.publishHeartbeat(); err != nil {
				a.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Announcer) announce() error {
	msg := announceMessage{
		NodeID:       a.cfg.ID,
		Role:         a.cfg.Role,
		Capabilities: convertCapabilities(a.cfg.Capabilities),
		Timestamp:    time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return a.bus.Conn().Publish(protocol.SubjectNodeAnnounce, payload)
}

func (a *Announcer) publishHeartbeat() error {
	msg := heartbeatMessage{
		NodeID:    a.cfg.ID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectNodeHeartbeatPrefix, a.cfg.ID)
	return a.bus.Conn().Publish(subject, payload)
}

func convertCapabilities(source []config.NodeCapability) []Capability {
	if len(source) == 0 {
		return nil
	}
	result := make([]Capability, 0, len(source))
	for _, cap := range source {
		result = append(result, Capability{
			Name:       cap.Name,
			Tier:       cap.Tier,
			Attributes: cap.Attributes,
		})
	}
	return result
}
