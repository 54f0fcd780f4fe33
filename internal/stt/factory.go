package stt

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
)

// NewTranscriber returns the batch backend used by the bus Service and the
// streaming adapter.
func NewTranscriber(cfg config.RecognizerConfig) (Transcriber, error) {
	switch cfg.Mode {
	case "exec":
		return NewExecTranscriber(cfg)
	default:
		return NewMockTranscriber(), nil
	}
}

func NewRecognizer(cfg config.RecognizerConfig, busClient *bus.Client, log *slog.Logger) (Recognizer, error) {
	log = log.With(slog.String("component", "recognizer"), slog.String("mode", cfg.Mode))
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(cfg.PartialBuffers), nil
	case "exec":
		t, err := NewExecTranscriber(cfg)
		if err != nil {
			return nil, err
		}
		return NewTranscriberRecognizer(t,
			time.Duration(cfg.PartialEveryMS)*time.Millisecond,
			time.Duration(cfg.TimeoutMS)*time.Millisecond,
			log), nil
	case "bus":
		return NewBusRecognizer(busClient, log)
	default:
		return nil, fmt.Errorf("unsupported recognizer mode %q", cfg.Mode)
	}
}
