package audio

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

type tap struct {
	frames int
	format Format
	fn     TapFunc
}

// Engine owns the capture graph: one input device and at most one tap.
type Engine struct {
	dev     Device
	log     *slog.Logger
	mu      sync.Mutex
	running bool
	tap     atomic.Pointer[tap]
}

func NewEngine(dev Device, log *slog.Logger) (*Engine, error) {
	if dev == nil {
		return nil, ErrNoInputDevice
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{dev: dev, log: log.With(slog.String("component", "audio-engine"))}, nil
}

// InputFormat returns the format negotiated from the input device.
func (e *Engine) InputFormat() (Format, error) {
	format, err := e.dev.InputFormat()
	if err != nil {
		return Format{}, &EngineError{Op: "negotiate format", Err: err}
	}
	if err := format.Validate(); err != nil {
		return Format{}, &EngineError{Op: "negotiate format", Err: err}
	}
	return format, nil
}

// InstallTap registers fn as the only buffer callback, replacing any previous one.
func (e *Engine) InstallTap(bufferFrames int, format Format, fn TapFunc) error {
	if fn == nil {
		return errors.New("tap callback is nil")
	}
	if bufferFrames <= 0 {
		bufferFrames = DefaultBufferFrames
	}
	if err := format.Validate(); err != nil {
		return &EngineError{Op: "install tap", Err: err}
	}
	e.tap.Store(&tap{frames: bufferFrames, format: format, fn: fn})
	return nil
}

func (e *Engine) RemoveTap() {
	e.tap.Store(nil)
}

// Start prepares and starts the device. It is only valid while stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return &EngineError{Op: "start", Err: ErrAlreadyRunning}
	}

	format, frames := Format{}, DefaultBufferFrames
	if t := e.tap.Load(); t != nil {
		format, frames = t.format, t.frames
	} else {
		f, err := e.InputFormat()
		if err != nil {
			return err
		}
		format = f
	}

	if err := e.dev.Prepare(format, frames, e.dispatch); err != nil {
		return &EngineError{Op: "prepare", Err: err}
	}
	if err := e.dev.Start(); err != nil {
		return &EngineError{Op: "start", Err: err}
	}
	e.running = true
	e.log.Debug("audio engine started", slog.String("format", format.String()), slog.Int("buffer_frames", frames))
	return nil
}

// Stop halts the device and removes the tap. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tap.Store(nil)
	if !e.running {
		return
	}
	e.running = false
	if err := e.dev.Stop(); err != nil {
		e.log.Warn("audio device stop failed", slog.String("error", err.Error()))
		return
	}
	e.log.Debug("audio engine stopped")
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) dispatch(buf Buffer) {
	t := e.tap.Load()
	if t == nil {
		return
	}
	t.fn(buf)
}
