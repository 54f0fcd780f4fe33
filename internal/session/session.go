package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-listen/internal/audio"
	"github.com/loqalabs/loqa-listen/internal/eventstore"
	"github.com/loqalabs/loqa-listen/internal/stt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var ErrClosed = errors.New("recognition session closed")

// Engine is the capture surface the session drives; *audio.Engine
// satisfies it.
type Engine interface {
	InputFormat() (audio.Format, error)
	InstallTap(bufferFrames int, format audio.Format, fn audio.TapFunc) error
	RemoveTap()
	Start() error
	Stop()
}

// Timeline records lifecycle events; *eventstore.Store satisfies it.
type Timeline interface {
	AppendSession(ctx context.Context, sessionID, actorID, privacy string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

type Transliterator interface {
	Transliterate(text string) string
}

type Options struct {
	Engine         Engine
	Configurator   audio.SessionConfigurator
	Recognizer     stt.Recognizer
	Observer       Observer
	Timeline       Timeline
	Transliterator Transliterator
	Logger         *slog.Logger

	CaptureOptions audio.SessionOptions
	BufferFrames   int
	QueueDepth     int
	Language       string
	ActorID        string
	Privacy        string
}

// handle binds one request to its recognition task. Results carry the id of
// the handle they were issued for.
type handle struct {
	id        uint64
	sessionID string
	req       *stt.Request
	task      stt.Task
	cancel    context.CancelFunc
	span      trace.Span
	started   time.Time
	persisted bool
}

// Session is the recognition state machine. A single loop goroutine owns
// all state; callers, permission completions and recognizer callbacks post
// closures to it. Only the tap path reads the current handle directly.
type Session struct {
	opts    Options
	log     *slog.Logger
	metrics *metrics

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// loop-owned
	state  State
	handle *handle
	nextID uint64

	// set while stop has disabled the button and no finalize has re-enabled it
	buttonHeld bool

	current atomic.Pointer[handle]
	mirror  atomic.Int32
}

func New(opts Options) (*Session, error) {
	switch {
	case opts.Engine == nil:
		return nil, audio.ErrNoInputDevice
	case opts.Recognizer == nil:
		return nil, errors.New("recognition session requires a recognizer")
	case opts.Observer == nil:
		return nil, errors.New("recognition session requires an observer")
	}
	if opts.Configurator == nil {
		opts.Configurator = audio.NewHostConfigurator()
	}
	if opts.CaptureOptions == (audio.SessionOptions{}) {
		opts.CaptureOptions = audio.RecordOptions()
	}
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = audio.DefaultBufferFrames
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With(slog.String("component", "recognition-session"))

	s := &Session{
		opts:    opts,
		log:     log,
		metrics: newMetrics(log),
		events:  make(chan func(), 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			s.shutdown()
			return
		}
	}
}

// Post schedules fn on the session loop.
func (s *Session) Post(fn func()) error {
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	select {
	case s.events <- fn:
		return nil
	case <-s.quit:
		return ErrClosed
	}
}

func (s *Session) call(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	if err := s.Post(func() { errCh <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case err := <-errCh:
			return err
		default:
			return ErrClosed
		}
	}
}

// Start begins a new recognition, discarding any previous one.
func (s *Session) Start(ctx context.Context) error {
	return s.call(ctx, s.start)
}

// Stop ends audio input and waits for the recognizer's final result. It is
// a no-op when nothing is running.
func (s *Session) Stop(ctx context.Context) error {
	return s.call(ctx, s.stop)
}

// Toggle starts when not running and stops otherwise, decided on the loop.
func (s *Session) Toggle(ctx context.Context) error {
	return s.call(ctx, func() error {
		if s.state.Running() {
			return s.stop()
		}
		return s.start()
	})
}

// SetAvailable reflects a change in recognizer availability.
func (s *Session) SetAvailable(available bool) error {
	return s.Post(func() {
		s.log.Info("recognizer availability changed", slog.Bool("available", available))
		if available {
			s.opts.Observer.SetButtonStatus(true)
			s.opts.Observer.SetGuideMessage(GuideSpeak)
			return
		}
		s.opts.Observer.SetButtonStatus(false)
		s.opts.Observer.SetGuideMessage(GuideStart)
	})
}

func (s *Session) IsRunning() bool {
	return s.State().Running()
}

func (s *Session) State() State {
	return State(s.mirror.Load())
}

// Close stops the loop, cancels any recognition and stops capture.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

func (s *Session) start() error {
	if s.handle != nil {
		s.discard(s.handle, "superseded")
	}
	s.opts.Engine.Stop()
	s.setState(Starting)

	if err := s.opts.Configurator.Configure(s.opts.CaptureOptions); err != nil {
		var cfgErr *audio.SessionConfigurationError
		if !errors.As(err, &cfgErr) {
			err = &audio.SessionConfigurationError{Setting: "session", Err: err}
		}
		return s.failStart(nil, err)
	}

	format, err := s.opts.Engine.InputFormat()
	if err != nil {
		return s.failStart(nil, err)
	}

	s.nextID++
	h := &handle{id: s.nextID, sessionID: uuid.NewString(), started: time.Now()}
	req, err := stt.NewRequest(format, stt.RequestOptions{
		ID:             h.sessionID,
		PartialResults: true,
		Language:       s.opts.Language,
		QueueDepth:     s.opts.QueueDepth,
	})
	if err != nil {
		return s.failStart(nil, &audio.EngineError{Op: "format", Err: err})
	}
	h.req = req

	ctx, cancel := context.WithCancel(context.Background())
	ctx, h.span = tracer().Start(ctx, "recognition.session", trace.WithAttributes(
		attribute.String("session.id", h.sessionID),
		attribute.Int64("session.handle", int64(h.id)),
		attribute.String("audio.format", format.String()),
	))
	h.cancel = cancel

	id := h.id
	task, err := s.opts.Recognizer.Recognize(ctx, req, func(res *stt.Result, err error) {
		if postErr := s.Post(func() { s.onResult(id, res, err) }); postErr != nil {
			s.log.Debug("result after close", slog.Uint64("handle", id))
		}
	})
	if err != nil {
		return s.failStart(h, err)
	}
	h.task = task
	s.handle = h
	s.current.Store(h)
	s.record(h, "session.started", nil)

	if err := s.opts.Engine.InstallTap(s.opts.BufferFrames, format, s.tap); err != nil {
		return s.failStart(h, err)
	}
	if err := s.opts.Engine.Start(); err != nil {
		return s.failStart(h, err)
	}

	s.setState(Recording)
	s.log.Info("recognition started",
		slog.String("session_id", h.sessionID),
		slog.Uint64("handle", h.id),
		slog.String("format", format.String()))
	s.opts.Observer.SetGuideMessage(GuideSpeak)
	s.releaseButton()
	return nil
}

func (s *Session) failStart(h *handle, err error) error {
	s.opts.Engine.RemoveTap()
	s.opts.Engine.Stop()
	if h != nil {
		s.record(h, "session.failed", err)
		s.discard(h, "start failed")
	}
	if derr := s.opts.Configurator.Deactivate(); derr != nil {
		s.log.Warn("failed to deactivate capture session", slog.String("error", derr.Error()))
	}
	s.log.Warn("recognition start failed", slog.String("error", err.Error()))
	s.releaseButton()
	s.setState(Idle)
	return err
}

// releaseButton re-enables the control disabled by a stop whose lifecycle
// was superseded before it could finalize.
func (s *Session) releaseButton() {
	if !s.buttonHeld {
		return
	}
	s.buttonHeld = false
	s.opts.Observer.SetButtonStatus(true)
}

func (s *Session) stop() error {
	if s.state != Recording || s.handle == nil {
		return nil
	}
	h := s.handle
	s.opts.Engine.Stop()
	h.req.EndAudio()
	s.setState(Stopping)
	s.record(h, "session.stopping", nil)
	s.log.Info("recognition stopping", slog.String("session_id", h.sessionID), slog.Int64("buffers", h.req.Appended()))
	s.opts.Observer.SetGuideMessage(GuideStart)
	s.opts.Observer.SetButtonStatus(false)
	s.buttonHeld = true
	return nil
}

func (s *Session) tap(buf audio.Buffer) {
	h := s.current.Load()
	if h == nil {
		return
	}
	if err := h.req.Append(buf); err != nil {
		if errors.Is(err, stt.ErrBufferDropped) {
			s.metrics.dropped.Add(context.Background(), 1)
		}
		return
	}
	s.metrics.buffers.Add(context.Background(), 1)
}

func (s *Session) onResult(id uint64, res *stt.Result, err error) {
	h := s.handle
	if h == nil || h.id != id {
		s.metrics.stale.Add(context.Background(), 1)
		s.log.Debug("dropping stale recognition result", slog.Uint64("handle", id))
		return
	}
	if err != nil {
		s.log.Warn("recognition failed", slog.String("session_id", h.sessionID), slog.String("error", err.Error()))
		s.finalize(h, err)
		return
	}
	if res == nil {
		return
	}

	s.metrics.results.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("final", res.Final)))
	s.transliterate(res.Text)
	s.opts.Observer.SetResult(res.Text)
	if res.Final {
		s.finalize(h, nil)
	}
}

// finalize releases h after its terminal callback and re-enables the button.
func (s *Session) finalize(h *handle, cause error) {
	s.setState(Finalizing)
	s.opts.Engine.Stop()
	s.current.Store(nil)
	s.handle = nil
	h.task.Cancel()
	h.cancel()
	if err := s.opts.Configurator.Deactivate(); err != nil {
		s.log.Warn("failed to deactivate capture session", slog.String("error", err.Error()))
	}
	s.opts.Observer.SetButtonStatus(true)
	s.buttonHeld = false

	if cause != nil {
		h.span.RecordError(cause)
		h.span.SetStatus(codes.Error, cause.Error())
	}
	h.span.SetAttributes(attribute.Int64("audio.buffers", h.req.Appended()), attribute.Int64("audio.dropped", h.req.Dropped()))
	h.span.End()
	s.record(h, "session.finalized", cause)
	s.log.Info("recognition finished",
		slog.String("session_id", h.sessionID),
		slog.Duration("elapsed", time.Since(h.started)),
		slog.Bool("error", cause != nil))
	s.setState(Idle)
}

// discard cancels h without waiting; its late callbacks become stale.
func (s *Session) discard(h *handle, reason string) {
	h.req.Cancel()
	if s.current.Load() == h {
		s.current.Store(nil)
	}
	if s.handle == h {
		s.handle = nil
	}
	if h.task != nil {
		h.task.Cancel()
	}
	if h.cancel != nil {
		h.cancel()
	}
	if h.span != nil {
		h.span.AddEvent("discarded", trace.WithAttributes(attribute.String("reason", reason)))
		h.span.End()
	}
	s.record(h, "session.cancelled", nil)
	s.log.Info("recognition discarded", slog.String("session_id", h.sessionID), slog.String("reason", reason))
}

func (s *Session) shutdown() {
	if s.handle != nil {
		s.discard(s.handle, "closed")
		if err := s.opts.Configurator.Deactivate(); err != nil {
			s.log.Warn("failed to deactivate capture session", slog.String("error", err.Error()))
		}
	}
	s.opts.Engine.Stop()
	s.setState(Idle)
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.mirror.Store(int32(next))
	s.metrics.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", prev.String()),
		attribute.String("to", next.String()),
	))
	s.log.Debug("state transition", slog.String("from", prev.String()), slog.String("to", next.String()))
}

func (s *Session) transliterate(text string) {
	if s.opts.Transliterator == nil || text == "" {
		return
	}
	s.log.Debug("transliteration", slog.String("source", text), slog.String("hiragana", s.opts.Transliterator.Transliterate(text)))
}

type timelinePayload struct {
	Handle  uint64 `json:"handle"`
	State   string `json:"state"`
	Buffers int64  `json:"buffers"`
	Dropped int64  `json:"dropped"`
	Error   string `json:"error,omitempty"`
}

func (s *Session) record(h *handle, kind string, cause error) {
	if s.opts.Timeline == nil {
		return
	}
	ctx := context.Background()
	if !h.persisted {
		if err := s.opts.Timeline.AppendSession(ctx, h.sessionID, s.opts.ActorID, s.opts.Privacy); err != nil {
			s.log.Warn("failed to record session", slog.String("error", err.Error()))
			return
		}
		h.persisted = true
	}
	payload := timelinePayload{Handle: h.id, State: s.state.String()}
	if h.req != nil {
		payload.Buffers = h.req.Appended()
		payload.Dropped = h.req.Dropped()
	}
	if cause != nil {
		payload.Error = fmt.Sprintf("%T", cause)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	evt := eventstore.Event{
		SessionID: h.sessionID,
		ActorID:   s.opts.ActorID,
		Type:      kind,
		Payload:   data,
		Privacy:   s.opts.Privacy,
	}
	if h.span != nil {
		evt.TraceID = h.span.SpanContext().TraceID().String()
	}
	if err := s.opts.Timeline.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("failed to record session event", slog.String("error", err.Error()))
	}
}
