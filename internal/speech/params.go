package speech

import (
	"sync"

	"github.com/loqalabs/loqa-speech/internal/config"
)

// Native-unit transforms. Logical values run 0..9 (punctuation 0..2);
// engines want words-per-minute, percentage scales and so on. The
// constants match the classic espeak mapping: rate 5 lands at 254 wpm,
// volume 5 at 132 of 200.
const (
	frequencyMultiplier = 11
	pitchMultiplier     = 11
	rateMultiplier      = 34
	rateOffset          = 84
	volumeMultiplier    = 22
)

// Settings is a point-in-time copy of the committed voice parameters.
type Settings struct {
	Frequency   int
	Pitch       int
	Rate        int
	Volume      int
	Punctuation int
	Voice       string
}

// Store holds the committed logical parameter values. Only the worker
// mutates it, and only after the engine accepted the new value, so the
// stored state always mirrors what the engine last acknowledged. A
// failed apply leaves the store untouched and the retried command
// re-resolves against the unchanged value.
type Store struct {
	mu          sync.RWMutex
	frequency   int
	pitch       int
	rate        int
	volume      int
	punctuation int
	voice       string
}

func NewStore(cfg config.SpeechConfig) *Store {
	return &Store{
		frequency:   cfg.Frequency,
		pitch:       cfg.Pitch,
		rate:        cfg.Rate,
		volume:      cfg.Volume,
		punctuation: cfg.Punctuation,
		voice:       cfg.Voice,
	}
}

// Apply resolves the target logical value for p, converts it to native
// units and hands it to set. The new value is committed only when set
// returns nil; the committed logical value is returned either way
// (unchanged on failure).
func (st *Store) Apply(p Param, value int, adjust Adjust, set func(Param, int) error) (int, error) {
	target := st.Resolve(p, value, adjust)
	if err := set(p, Native(p, target)); err != nil {
		return st.Get(p), err
	}
	st.commit(p, target)
	return target, nil
}

// ApplyVoice commits the voice name only when set accepts it.
func (st *Store) ApplyVoice(name string, set func(string) error) error {
	if err := set(name); err != nil {
		return err
	}
	st.mu.Lock()
	st.voice = name
	st.mu.Unlock()
	return nil
}

// Resolve computes the logical value a command targets: the command
// value itself for absolute mode, or the current committed value plus
// or minus it for the relative modes.
func (st *Store) Resolve(p Param, value int, adjust Adjust) int {
	switch adjust {
	case AdjustIncrement:
		return st.Get(p) + value
	case AdjustDecrement:
		return st.Get(p) - value
	default:
		return value
	}
}

// Native converts a logical value to the engine's unit for p. The
// transforms are fixed and linear; punctuation passes through.
func Native(p Param, logical int) int {
	switch p {
	case ParamFrequency:
		return logical * frequencyMultiplier
	case ParamPitch:
		return logical * pitchMultiplier
	case ParamRate:
		return logical*rateMultiplier + rateOffset
	case ParamVolume:
		return (logical + 1) * volumeMultiplier
	default:
		return logical
	}
}

func (st *Store) Get(p Param) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	switch p {
	case ParamFrequency:
		return st.frequency
	case ParamPitch:
		return st.pitch
	case ParamRate:
		return st.rate
	case ParamVolume:
		return st.volume
	case ParamPunctuation:
		return st.punctuation
	default:
		return 0
	}
}

func (st *Store) Voice() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.voice
}

// Settings snapshots every committed value at once.
func (st *Store) Settings() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return Settings{
		Frequency:   st.frequency,
		Pitch:       st.pitch,
		Rate:        st.rate,
		Volume:      st.volume,
		Punctuation: st.punctuation,
		Voice:       st.voice,
	}
}

func (st *Store) commit(p Param, logical int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch p {
	case ParamFrequency:
		st.frequency = logical
	case ParamPitch:
		st.pitch = logical
	case ParamRate:
		st.rate = logical
	case ParamVolume:
		st.volume = logical
	case ParamPunctuation:
		st.punctuation = logical
	}
}
