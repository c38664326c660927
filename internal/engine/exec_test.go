package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-speech/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Mode:            "exec",
		Command:         "espeak-ng --stdout",
		Voice:           "en",
		SampleRate:      22050,
		Channels:        1,
		ChunkDurationMS: 100,
	}
}

func newExecForTest(t *testing.T) *execSynth {
	t.Helper()
	synth, err := NewExecSynth(testEngineConfig(), newLogger())
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	return synth.(*execSynth)
}

func TestExecCommandParsing(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Command = `espeak-ng --stdout -x "extra arg"`
	synth, err := NewExecSynth(cfg, newLogger())
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	e := synth.(*execSynth)
	want := []string{"espeak-ng", "--stdout", "-x", "extra arg"}
	if len(e.cmd) != len(want) {
		t.Fatalf("parsed %v, want %v", e.cmd, want)
	}
	for i := range want {
		if e.cmd[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, e.cmd[i], want[i])
		}
	}

	cfg.Command = "   "
	if _, err := NewExecSynth(cfg, newLogger()); err == nil {
		t.Fatalf("expected empty command to be rejected")
	}
}

func TestExecBuildArgs(t *testing.T) {
	e := newExecForTest(t)

	for name, value := range map[string]int{
		ParamRate:        254,
		ParamPitch:       55,
		ParamVolume:      132,
		ParamCapitals:    0,
		ParamPunctuation: 2,
		ParamFrequency:   55,
	} {
		if err := e.SetParameter(name, value); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	if err := e.SetVoice("en-GB"); err != nil {
		t.Fatalf("set voice: %v", err)
	}

	// Flag order is fixed; frequency has no espeak flag and must not
	// appear at all.
	got := e.buildArgs()
	want := []string{"--stdout", "-v", "en-GB", "-s", "254", "-p", "55", "-a", "132", "-k", "0", "--punct"}
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q (full args %v)", i, got[i], want[i], got)
		}
	}
}

func TestExecPunctuationFlagOmittedWhenOff(t *testing.T) {
	e := newExecForTest(t)
	if err := e.SetParameter(ParamPunctuation, 0); err != nil {
		t.Fatalf("set punctuation: %v", err)
	}
	for _, a := range e.buildArgs() {
		if a == "--punct" {
			t.Fatalf("--punct present with punctuation off")
		}
	}
}

func TestExecRejectsUnknownParameter(t *testing.T) {
	e := newExecForTest(t)
	if err := e.SetParameter("inflection", 3); err == nil {
		t.Fatalf("expected unknown parameter to be rejected")
	}
	if err := e.SetVoice(""); err == nil {
		t.Fatalf("expected empty voice to be rejected")
	}
}

func TestExecInitializeRequiresBinary(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Command = "definitely-not-a-real-synth-binary --stdout"
	synth, err := NewExecSynth(cfg, newLogger())
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	if _, err := synth.Initialize(context.Background()); err == nil {
		t.Fatalf("expected missing binary to fail initialization")
	}
}

func TestDecodeWAV(t *testing.T) {
	samples := []int{0, 1000, -1000, 32767, -32768, 42}
	path := filepath.Join(t.TempDir(), "tone.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav file: %v", err)
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 22050},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, 22050, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav file: %v", err)
	}
	decoded, rate, err := decodeWAV(data)
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if rate != 22050 {
		t.Fatalf("decoded rate = %d, want 22050", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(samples))
	}
	for i, want := range samples {
		if int(decoded[i]) != want {
			t.Fatalf("sample %d = %d, want %d", i, decoded[i], want)
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := decodeWAV([]byte("not a wav stream")); err == nil {
		t.Fatalf("expected garbage input to fail decoding")
	}
}
