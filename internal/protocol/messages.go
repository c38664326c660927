package protocol

import "time"

// SayRequest asks the speech node to queue an utterance.
type SayRequest struct {
	Text string `json:"text"`
}

// ParamRequest adjusts a speech parameter. Value is interpreted on the
// 0..9 logical scale; when Relative is set it is added to the current
// value instead of replacing it.
type ParamRequest struct {
	Param    string `json:"param"`
	Value    int    `json:"value"`
	Relative bool   `json:"relative,omitempty"`
}

// VoiceRequest switches the synthesizer voice.
type VoiceRequest struct {
	Voice string `json:"voice"`
}

// StopRequest interrupts the current utterance and flushes everything
// queued behind it.
type StopRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Stopped is broadcast once a stop request has been fully honored:
// queue flushed, synthesis cancelled, buffered audio discarded.
type Stopped struct {
	NodeID    string    `json:"node_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the reply to a status request.
type Status struct {
	NodeID      string `json:"node_id"`
	Healthy     bool   `json:"healthy"`
	QueueDepth  int    `json:"queue_depth"`
	Engine      string `json:"engine"`
	Backend     string `json:"backend"`
	Voice       string `json:"voice"`
	Frequency   int    `json:"frequency"`
	Pitch       int    `json:"pitch"`
	Rate        int    `json:"rate"`
	Volume      int    `json:"volume"`
	Punctuation int    `json:"punctuation"`
}

// AudioChunk carries synthesized PCM to a remote playback target.
// Discard marks a flush point: the receiver should drop any audio it
// has buffered from this source before sequence catches up.
type AudioChunk struct {
	Source     string `json:"source"`
	Sequence   uint64 `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Discard    bool   `json:"discard,omitempty"`
}

// Control subjects hang off the configured prefix ("speech" by
// default), e.g. speech.say, speech.stop.
const (
	ControlSay     = "say"
	ControlParam   = "param"
	ControlVoice   = "voice"
	ControlStop    = "stop"
	ControlStopped = "stopped"
	ControlStatus  = "status"
)

const (
	SubjectNodeAnnounce        = "ctrl.node.announce"
	SubjectNodeHeartbeatPrefix = "ctrl.node.heartbeat"
	SubjectAudioOutPrefix      = "audio.out"
)
