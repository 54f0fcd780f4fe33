package session

import (
	"log/slog"
	"sync"
)

// Observer receives presentation updates. All calls are made from the
// session loop goroutine.
type Observer interface {
	SetButtonStatus(enabled bool)
	SetGuideMessage(text string)
	SetResult(text string)
}

// Fanout forwards every call to each observer in order.
type Fanout []Observer

func (f Fanout) SetButtonStatus(enabled bool) {
	for _, o := range f {
		o.SetButtonStatus(enabled)
	}
}

func (f Fanout) SetGuideMessage(text string) {
	for _, o := range f {
		o.SetGuideMessage(text)
	}
}

func (f Fanout) SetResult(text string) {
	for _, o := range f {
		o.SetResult(text)
	}
}

type LogObserver struct {
	log *slog.Logger
}

func NewLogObserver(log *slog.Logger) *LogObserver {
	return &LogObserver{log: log.With(slog.String("component", "ui"))}
}

func (o *LogObserver) SetButtonStatus(enabled bool) {
	o.log.Info("button status", slog.Bool("enabled", enabled))
}

func (o *LogObserver) SetGuideMessage(text string) {
	o.log.Info("guide message", slog.String("text", text))
}

func (o *LogObserver) SetResult(text string) {
	o.log.Info("recognition result", slog.String("text", text))
}

// Snapshot is the last value of each presentation field.
type Snapshot struct {
	ButtonEnabled bool   `json:"button_enabled"`
	Guide         string `json:"guide"`
	Result        string `json:"result"`
	State         string `json:"state"`
	Running       bool   `json:"running"`
}

// StatusObserver keeps the latest presentation state for readers on other
// goroutines.
type StatusObserver struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewStatusObserver() *StatusObserver {
	return &StatusObserver{}
}

func (o *StatusObserver) SetButtonStatus(enabled bool) {
	o.mu.Lock()
	o.snap.ButtonEnabled = enabled
	o.mu.Unlock()
}

func (o *StatusObserver) SetGuideMessage(text string) {
	o.mu.Lock()
	o.snap.Guide = text
	o.mu.Unlock()
}

func (o *StatusObserver) SetResult(text string) {
	o.mu.Lock()
	o.snap.Result = text
	o.mu.Unlock()
}

func (o *StatusObserver) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}
