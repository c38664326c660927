package speech

import "errors"

// ErrStopped is returned by the audio delivery path when a stop request
// interrupts an utterance. Engine adapters propagate it unchanged so the
// worker can tell an abort from a synthesis failure.
var ErrStopped = errors.New("speech stopped")

// ErrClosed is returned by Enqueue after the speaker has shut down.
var ErrClosed = errors.New("speaker closed")

// ErrStopNotQueued is returned when a stop command is handed to Enqueue.
// Stops jump the queue; callers use RequestStop instead.
var ErrStopNotQueued = errors.New("stop bypasses the queue; use RequestStop")

// Kind discriminates queued speech commands.
type Kind int

const (
	KindText Kind = iota
	KindParam
	KindVoice
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindParam:
		return "param"
	case KindVoice:
		return "voice"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Param identifies a runtime-adjustable voice parameter.
type Param int

const (
	ParamFrequency Param = iota
	ParamPitch
	ParamRate
	ParamVolume
	ParamPunctuation
)

func (p Param) String() string {
	switch p {
	case ParamFrequency:
		return "frequency"
	case ParamPitch:
		return "pitch"
	case ParamRate:
		return "rate"
	case ParamVolume:
		return "volume"
	case ParamPunctuation:
		return "punctuation"
	default:
		return "unknown"
	}
}

// ParamByName maps the wire name of a parameter to its identifier.
func ParamByName(name string) (Param, bool) {
	switch name {
	case "frequency":
		return ParamFrequency, true
	case "pitch":
		return ParamPitch, true
	case "rate":
		return ParamRate, true
	case "volume":
		return ParamVolume, true
	case "punctuation":
		return ParamPunctuation, true
	default:
		return 0, false
	}
}

// Adjust selects how a parameter value is resolved against the current
// setting.
type Adjust int

const (
	AdjustAbsolute Adjust = iota
	AdjustIncrement
	AdjustDecrement
)

func (a Adjust) String() string {
	switch a {
	case AdjustAbsolute:
		return "absolute"
	case AdjustIncrement:
		return "increment"
	case AdjustDecrement:
		return "decrement"
	default:
		return "unknown"
	}
}

// Command is one unit of queued work. Exactly one payload is meaningful
// per kind: Text for KindText, Param/Value/Adjust for KindParam, Voice
// for KindVoice. Stop commands are never queued.
type Command struct {
	Kind   Kind
	Text   string
	Param  Param
	Value  int
	Adjust Adjust
	Voice  string
}

// SpeakText builds a speak command.
func SpeakText(text string) Command {
	return Command{Kind: KindText, Text: text}
}

// SetParam builds a parameter-change command.
func SetParam(p Param, value int, adjust Adjust) Command {
	return Command{Kind: KindParam, Param: p, Value: value, Adjust: adjust}
}

// SetVoice builds a voice-change command.
func SetVoice(name string) Command {
	return Command{Kind: KindVoice, Voice: name}
}
