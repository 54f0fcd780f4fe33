package audio

import (
	"fmt"

	"github.com/loqalabs/loqa-listen/internal/config"
)

// OpenDevice builds the input device selected by cfg.Backend.
func OpenDevice(cfg config.CaptureConfig) (Device, error) {
	switch cfg.Backend {
	case "synthetic":
		return NewSyntheticDevice(Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}, cfg.ToneHz)
	case "wav":
		return NewWAVDevice(cfg.WAVPath, cfg.WAVLoop)
	case "portaudio":
		return NewPortAudioDevice(cfg.Device)
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
}

// OpenConfigurator returns the capture-session configurator matching the backend.
func OpenConfigurator(cfg config.CaptureConfig) (SessionConfigurator, error) {
	if cfg.Backend == "portaudio" {
		return NewPortAudioConfigurator()
	}
	return NewHostConfigurator(), nil
}
