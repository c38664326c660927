package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-speech/internal/speech"
)

// ParseLine interprets one line from the control device. Verbs are
// case-insensitive:
//
//	SPEAK <text>        queue an utterance
//	SET <param> <value> set a parameter; +n increments, -n decrements,
//	                    a bare number replaces
//	VOICE <name>        switch voice
//	STOP                cancel speech and flush the queue
//
// The boolean result is true for STOP, which never becomes a queued
// command. Surrounding whitespace is ignored; text after SPEAK is kept
// verbatim.
func ParseLine(line string) (speech.Command, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return speech.Command{}, false, fmt.Errorf("empty line")
	}

	verb := line
	rest := ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		verb, rest = line[:i], strings.TrimSpace(line[i+1:])
	}

	switch strings.ToUpper(verb) {
	case "SPEAK":
		if rest == "" {
			return speech.Command{}, false, fmt.Errorf("speak: missing text")
		}
		return speech.SpeakText(rest), false, nil

	case "STOP":
		if rest != "" {
			return speech.Command{}, false, fmt.Errorf("stop: unexpected argument %q", rest)
		}
		return speech.Command{}, true, nil

	case "SET":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return speech.Command{}, false, fmt.Errorf("set: want <param> <value>, got %q", rest)
		}
		param, ok := speech.ParamByName(strings.ToLower(fields[0]))
		if !ok {
			return speech.Command{}, false, fmt.Errorf("set: unknown parameter %q", fields[0])
		}
		adjust := speech.AdjustAbsolute
		raw := fields[1]
		switch {
		case strings.HasPrefix(raw, "+"):
			adjust = speech.AdjustIncrement
			raw = raw[1:]
		case strings.HasPrefix(raw, "-"):
			adjust = speech.AdjustDecrement
			raw = raw[1:]
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return speech.Command{}, false, fmt.Errorf("set: bad value %q", fields[1])
		}
		return speech.SetParam(param, value, adjust), false, nil

	case "VOICE":
		if rest == "" || strings.ContainsAny(rest, " \t") {
			return speech.Command{}, false, fmt.Errorf("voice: want a single name, got %q", rest)
		}
		return speech.SetVoice(rest), false, nil

	default:
		return speech.Command{}, false, fmt.Errorf("unknown verb %q", verb)
	}
}
