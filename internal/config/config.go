package config

import (
	"errors"
	"fmt"
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
	RuntimeName     string                `yaml:"runtime_name"`
	Environment     string                `yaml:"environment"`
	HTTP            HTTPConfig            `yaml:"http"`
	Telemetry       TelemetryConfig       `yaml:"telemetry"`
	Bus             BusConfig             `yaml:"bus"`
	Node            NodeConfig            `yaml:"node"`
	EventStore      EventStoreConfig      `yaml:"event_store"`
	Capture         CaptureConfig         `yaml:"capture"`
	Recognizer      RecognizerConfig      `yaml:"recognizer"`
	Authorization   AuthorizationConfig   `yaml:"authorization"`
	Session         SessionConfig         `yaml:"session"`
	Transliteration TransliterationConfig `yaml:"transliteration"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// NodeConfig identifies this process on the bus. Capabilities are derived
// from the capture and recognizer sections.
type NodeConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// CaptureConfig selects the input device and the capture-session parameters.
type CaptureConfig struct {
	Backend      string  `yaml:"backend"` // synthetic, wav, portaudio
	Device       string  `yaml:"device"`
	SampleRate   int     `yaml:"sample_rate"`
	Channels     int     `yaml:"channels"`
	BufferFrames int     `yaml:"buffer_frames"`
	WAVPath      string  `yaml:"wav_path"`
	WAVLoop      bool    `yaml:"wav_loop"`
	ToneHz       float64 `yaml:"tone_hz"`
	Category     string  `yaml:"category"`
	Mode         string  `yaml:"mode"`
}

type RecognizerConfig struct {
	Mode           string `yaml:"mode"` // mock, exec, bus
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	PartialEveryMS int    `yaml:"partial_every_ms"`
	PartialBuffers int    `yaml:"partial_every_buffers"`
	QueueDepth     int    `yaml:"queue_depth"`
	TimeoutMS      int    `yaml:"timeout_ms"`
	Serve          bool   `yaml:"serve"`
	// IdleMS evicts served sessions that stop sending frames.
	IdleMS         int    `yaml:"session_idle_ms"`
}

type AuthorizationConfig struct {
	Mode      string `yaml:"mode"` // static, env, bus
	Status    string `yaml:"status"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type SessionConfig struct {
	AutoStart bool   `yaml:"auto_start"`
	ActorID   string `yaml:"actor_id"`
	Privacy   string `yaml:"privacy_scope"`
}

type TransliterationConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-listen",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "listen-node-1",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-listen.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Capture: CaptureConfig{
			Backend:      "synthetic",
			SampleRate:   16000,
			Channels:     1,
			BufferFrames: 1024,
			WAVLoop:      true,
			Category:     "record",
			Mode:         "measurement",
		},
		Recognizer: RecognizerConfig{
			Mode:           "mock",
			Language:       "ja-JP",
			PartialEveryMS: 800,
			PartialBuffers: 8,
			QueueDepth:     256,
			TimeoutMS:      45000,
			IdleMS:         60000,
		},
		Authorization: AuthorizationConfig{
			Mode:      "static",
			Status:    "authorized",
			TimeoutMS: 2000,
		},
		Session: SessionConfig{
			AutoStart: false,
			ActorID:   "local",
			Privacy:   "session",
		},
		Transliteration: TransliterationConfig{
			Enabled: false,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
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
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LOQA_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatInterval, "LOQA_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "LOQA_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Capture.Backend, "LOQA_CAPTURE_BACKEND")
	overrideString(&cfg.Capture.Device, "LOQA_CAPTURE_DEVICE")
	overrideInt(&cfg.Capture.SampleRate, "LOQA_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "LOQA_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.BufferFrames, "LOQA_CAPTURE_BUFFER_FRAMES")
	overrideString(&cfg.Capture.WAVPath, "LOQA_CAPTURE_WAV_PATH")
	overrideBool(&cfg.Capture.WAVLoop, "LOQA_CAPTURE_WAV_LOOP")
	overrideFloat(&cfg.Capture.ToneHz, "LOQA_CAPTURE_TONE_HZ")
	overrideString(&cfg.Capture.Category, "LOQA_CAPTURE_CATEGORY")
	overrideString(&cfg.Capture.Mode, "LOQA_CAPTURE_MODE")
	overrideString(&cfg.Recognizer.Mode, "LOQA_RECOGNIZER_MODE")
	overrideString(&cfg.Recognizer.Command, "LOQA_RECOGNIZER_COMMAND")
	overrideString(&cfg.Recognizer.ModelPath, "LOQA_RECOGNIZER_MODEL_PATH")
	overrideString(&cfg.Recognizer.Language, "LOQA_RECOGNIZER_LANGUAGE")
	overrideInt(&cfg.Recognizer.PartialEveryMS, "LOQA_RECOGNIZER_PARTIAL_EVERY_MS")
	overrideInt(&cfg.Recognizer.PartialBuffers, "LOQA_RECOGNIZER_PARTIAL_EVERY_BUFFERS")
	overrideInt(&cfg.Recognizer.QueueDepth, "LOQA_RECOGNIZER_QUEUE_DEPTH")
	overrideInt(&cfg.Recognizer.TimeoutMS, "LOQA_RECOGNIZER_TIMEOUT_MS")
	overrideInt(&cfg.Recognizer.IdleMS, "LOQA_RECOGNIZER_SESSION_IDLE_MS")
	overrideBool(&cfg.Recognizer.Serve, "LOQA_RECOGNIZER_SERVE")
	overrideString(&cfg.Authorization.Mode, "LOQA_AUTHORIZATION_MODE")
	overrideString(&cfg.Authorization.Status, "LOQA_AUTHORIZATION_STATUS")
	overrideInt(&cfg.Authorization.TimeoutMS, "LOQA_AUTHORIZATION_TIMEOUT_MS")
	overrideBool(&cfg.Session.AutoStart, "LOQA_SESSION_AUTO_START")
	overrideString(&cfg.Session.ActorID, "LOQA_SESSION_ACTOR_ID")
	overrideString(&cfg.Session.Privacy, "LOQA_SESSION_PRIVACY_SCOPE")
	overrideBool(&cfg.Transliteration.Enabled, "LOQA_TRANSLITERATION_ENABLED")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
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
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must exceed heartbeat interval")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}

	switch cfg.Capture.Backend {
	case "synthetic", "portaudio":
	case "wav":
		if cfg.Capture.WAVPath == "" {
			return errors.New("capture.wav_path must be set when backend=wav")
		}
	default:
		return errors.New("capture.backend must be one of synthetic|wav|portaudio")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Capture.BufferFrames <= 0 {
		return errors.New("capture.buffer_frames must be positive")
	}

	switch cfg.Recognizer.Mode {
	case "mock":
	case "exec":
		if cfg.Recognizer.Command == "" {
			return errors.New("recognizer.command must be set when mode=exec")
		}
	case "bus":
		if !cfg.Bus.Enabled {
			return errors.New("recognizer.mode=bus requires bus.enabled")
		}
	default:
		return errors.New("recognizer.mode must be one of mock|exec|bus")
	}
	if cfg.Recognizer.Serve {
		if !cfg.Bus.Enabled {
			return errors.New("recognizer.serve requires bus.enabled")
		}
		if cfg.Recognizer.Mode == "bus" {
			return errors.New("recognizer.serve cannot be combined with mode=bus")
		}
	}
	if cfg.Recognizer.QueueDepth <= 0 {
		return errors.New("recognizer.queue_depth must be >= 1")
	}

	switch cfg.Authorization.Mode {
	case "static", "env":
	case "bus":
		if !cfg.Bus.Enabled {
			return errors.New("authorization.mode=bus requires bus.enabled")
		}
	default:
		return errors.New("authorization.mode must be one of static|env|bus")
	}
	switch cfg.Authorization.Status {
	case "authorized", "denied", "restricted", "not_determined":
	default:
		return errors.New("authorization.status must be one of authorized|denied|restricted|not_determined")
	}
	return nil
}
