package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.BufferFrames != 1024 {
		t.Fatalf("expected default buffer of 1024 frames, got %d", cfg.Capture.BufferFrames)
	}
	if cfg.Capture.Category != "record" || cfg.Capture.Mode != "measurement" {
		t.Fatalf("unexpected capture session defaults: %+v", cfg.Capture)
	}
	if cfg.Recognizer.Mode != "mock" {
		t.Fatalf("expected mock recognizer by default, got %s", cfg.Recognizer.Mode)
	}
	if cfg.EventStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected ephemeral timeline by default, got %s", cfg.EventStore.RetentionMode)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listen.yaml")
	data := []byte(`capture:
  backend: wav
  wav_path: ./speech.wav
  sample_rate: 48000
recognizer:
  mode: exec
  command: "whisper-cli --threads 2"
authorization:
  status: denied
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Capture.Backend != "wav" || cfg.Capture.SampleRate != 48000 {
		t.Fatalf("capture not loaded from file: %+v", cfg.Capture)
	}
	if cfg.Capture.BufferFrames != 1024 {
		t.Fatalf("expected untouched default buffer frames, got %d", cfg.Capture.BufferFrames)
	}
	if cfg.Recognizer.Command != "whisper-cli --threads 2" {
		t.Fatalf("unexpected command %q", cfg.Recognizer.Command)
	}
	if cfg.Authorization.Status != "denied" {
		t.Fatalf("unexpected authorization status %q", cfg.Authorization.Status)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_ENABLED", "true")
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_CAPTURE_SAMPLE_RATE", "44100")
	t.Setenv("LOQA_CAPTURE_TONE_HZ", "440.5")
	t.Setenv("LOQA_RECOGNIZER_MODE", "bus")
	t.Setenv("LOQA_RECOGNIZER_PARTIAL_EVERY_MS", "250")
	t.Setenv("LOQA_AUTHORIZATION_STATUS", "restricted")
	t.Setenv("LOQA_SESSION_AUTO_START", "true")
	t.Setenv("LOQA_TRANSLITERATION_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Capture.SampleRate != 44100 {
		t.Fatalf("expected sample rate override, got %d", cfg.Capture.SampleRate)
	}
	if cfg.Capture.ToneHz != 440.5 {
		t.Fatalf("expected tone override, got %v", cfg.Capture.ToneHz)
	}
	if cfg.Recognizer.Mode != "bus" || cfg.Recognizer.PartialEveryMS != 250 {
		t.Fatalf("expected recognizer overrides, got %+v", cfg.Recognizer)
	}
	if cfg.Authorization.Status != "restricted" {
		t.Fatalf("expected authorization override")
	}
	if !cfg.Session.AutoStart || !cfg.Transliteration.Enabled {
		t.Fatalf("expected boolean overrides")
	}
}

func TestValidateRejectsInvalidCombinations(t *testing.T) {
	cases := map[string]func(*Config){
		"wav without path":   func(c *Config) { c.Capture.Backend = "wav" },
		"unknown backend":    func(c *Config) { c.Capture.Backend = "alsa" },
		"zero buffer frames": func(c *Config) { c.Capture.BufferFrames = 0 },
		"exec without cmd":   func(c *Config) { c.Recognizer.Mode = "exec" },
		"bus recognizer":     func(c *Config) { c.Recognizer.Mode = "bus" },
		"serve without bus":  func(c *Config) { c.Recognizer.Serve = true },
		"bad auth status":    func(c *Config) { c.Authorization.Status = "maybe" },
		"bad retention":      func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"short heartbeat":    func(c *Config) { c.Node.HeartbeatTimeout = c.Node.HeartbeatInterval },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
