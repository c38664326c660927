package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Node        NodeConfig      `yaml:"node"`
	Engine      EngineConfig    `yaml:"engine"`
	Audio       AudioConfig     `yaml:"audio"`
	Speech      SpeechConfig    `yaml:"speech"`
	Control     ControlConfig   `yaml:"control"`
	Journal     JournalConfig   `yaml:"journal"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string           `yaml:"id"`
	Role              string           `yaml:"role"`
	HeartbeatInterval int              `yaml:"heartbeat_interval_ms"`
	Capabilities      []NodeCapability `yaml:"capabilities"`
}

type NodeCapability struct {
	Name       string            `yaml:"name"`
	Tier       string            `yaml:"tier"`
	Attributes map[string]string `yaml:"attributes"`
}

type EngineConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	Voice           string `yaml:"voice"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkDurationMS int    `yaml:"chunk_duration_ms"`
}

type AudioConfig struct {
	Backend     string `yaml:"backend"` // portaudio, oto, bus, none
	BufferMS    int    `yaml:"buffer_ms"`
	BurstFrames int    `yaml:"burst_frames"`
	Target      string `yaml:"target"`
}

// SpeechConfig holds the startup values for the runtime-adjustable
// parameters, all on the 0..9 scale except punctuation (0..2). Voice
// is optional; empty leaves the engine's default voice in place.
type SpeechConfig struct {
	Frequency   int    `yaml:"frequency"`
	Pitch       int    `yaml:"pitch"`
	Rate        int    `yaml:"rate"`
	Volume      int    `yaml:"volume"`
	Punctuation int    `yaml:"punctuation"`
	Voice       string `yaml:"voice"`
}

type ControlConfig struct {
	SubjectPrefix string `yaml:"subject_prefix"`
	DevicePath    string `yaml:"device_path"`
}

type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEntries    int    `yaml:"max_entries"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-speech",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9092",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "speech-node-1",
			Role:              "speech-output",
			HeartbeatInterval: 2000,
			Capabilities: []NodeCapability{
				{Name: "speech.output", Tier: "balanced"},
			},
		},
		Engine: EngineConfig{
			Mode:            "mock",
			Command:         "espeak-ng --stdout",
			Voice:           "en",
			SampleRate:      22050,
			Channels:        1,
			ChunkDurationMS: 100,
		},
		Audio: AudioConfig{
			Backend:     "oto",
			BufferMS:    200,
			BurstFrames: 32,
			Target:      "default",
		},
		Speech: SpeechConfig{
			Frequency:   5,
			Pitch:       5,
			Rate:        5,
			Volume:      5,
			Punctuation: 0,
			Voice:       "",
		},
		Control: ControlConfig{
			SubjectPrefix: "speech",
			DevicePath:    "",
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          "./data/speech-journal.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxEntries:    10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SPEECHD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SPEECHD_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SPEECHD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SPEECHD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SPEECHD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SPEECHD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SPEECHD_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SPEECHD_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "SPEECHD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SPEECHD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SPEECHD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SPEECHD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SPEECHD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SPEECHD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SPEECHD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SPEECHD_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "SPEECHD_NODE_ID")
	overrideString(&cfg.Node.Role, "SPEECHD_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "SPEECHD_NODE_HEARTBEAT_INTERVAL_MS")
	overrideString(&cfg.Engine.Mode, "SPEECHD_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "SPEECHD_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Voice, "SPEECHD_ENGINE_VOICE")
	overrideInt(&cfg.Engine.SampleRate, "SPEECHD_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.Channels, "SPEECHD_ENGINE_CHANNELS")
	overrideInt(&cfg.Engine.ChunkDurationMS, "SPEECHD_ENGINE_CHUNK_DURATION_MS")
	overrideString(&cfg.Audio.Backend, "SPEECHD_AUDIO_BACKEND")
	overrideInt(&cfg.Audio.BufferMS, "SPEECHD_AUDIO_BUFFER_MS")
	overrideInt(&cfg.Audio.BurstFrames, "SPEECHD_AUDIO_BURST_FRAMES")
	overrideString(&cfg.Audio.Target, "SPEECHD_AUDIO_TARGET")
	overrideInt(&cfg.Speech.Frequency, "SPEECHD_SPEECH_FREQUENCY")
	overrideInt(&cfg.Speech.Pitch, "SPEECHD_SPEECH_PITCH")
	overrideInt(&cfg.Speech.Rate, "SPEECHD_SPEECH_RATE")
	overrideInt(&cfg.Speech.Volume, "SPEECHD_SPEECH_VOLUME")
	overrideInt(&cfg.Speech.Punctuation, "SPEECHD_SPEECH_PUNCTUATION")
	overrideString(&cfg.Speech.Voice, "SPEECHD_SPEECH_VOICE")
	overrideString(&cfg.Control.SubjectPrefix, "SPEECHD_CONTROL_SUBJECT_PREFIX")
	overrideString(&cfg.Control.DevicePath, "SPEECHD_CONTROL_DEVICE_PATH")
	overrideBool(&cfg.Journal.Enabled, "SPEECHD_JOURNAL_ENABLED")
	overrideString(&cfg.Journal.Path, "SPEECHD_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "SPEECHD_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "SPEECHD_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxEntries, "SPEECHD_JOURNAL_MAX_ENTRIES")
	overrideBool(&cfg.Journal.VacuumOnStart, "SPEECHD_JOURNAL_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if len(cfg.Node.Capabilities) == 0 {
		return errors.New("node.capabilities must not be empty")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.Channels <= 0 {
		return errors.New("engine.channels must be positive")
	}
	if cfg.Engine.ChunkDurationMS <= 0 {
		return errors.New("engine.chunk_duration_ms must be positive")
	}
	switch cfg.Audio.Backend {
	case "portaudio", "oto", "bus", "none":
	default:
		return errors.New("audio.backend must be one of portaudio|oto|bus|none")
	}
	if cfg.Audio.Backend == "bus" && cfg.Audio.Target == "" {
		return errors.New("audio.target must be set when backend=bus")
	}
	if cfg.Audio.BufferMS <= 0 {
		return errors.New("audio.buffer_ms must be positive")
	}
	if cfg.Audio.BurstFrames <= 0 {
		return errors.New("audio.burst_frames must be positive")
	}
	for _, p := range []struct {
		name  string
		value int
	}{
		{"speech.frequency", cfg.Speech.Frequency},
		{"speech.pitch", cfg.Speech.Pitch},
		{"speech.rate", cfg.Speech.Rate},
		{"speech.volume", cfg.Speech.Volume},
	} {
		if p.value < 0 || p.value > 9 {
			return fmt.Errorf("%s must be between 0 and 9", p.name)
		}
	}
	if cfg.Speech.Punctuation < 0 || cfg.Speech.Punctuation > 2 {
		return errors.New("speech.punctuation must be between 0 and 2")
	}
	if cfg.Control.SubjectPrefix == "" {
		return errors.New("control.subject_prefix must not be empty")
	}
	if cfg.Journal.Enabled {
		if cfg.Journal.Path == "" {
			return errors.New("journal.path must not be empty")
		}
		switch cfg.Journal.RetentionMode {
		case "ephemeral", "persistent":
			// ok
		default:
			return errors.New("journal.retention_mode must be one of ephemeral|persistent")
		}
		if cfg.Journal.RetentionDays < 0 {
			return errors.New("journal.retention_days must be >= 0")
		}
		if cfg.Journal.MaxEntries < 0 {
			return errors.New("journal.max_entries must be >= 0")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	return nil
}
