package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service answers remote listening nodes: it collects audio frames per
// session from the bus and publishes partial and final transcripts.
type Service struct {
	cfg         config.RecognizerConfig
	bus         *bus.Client
	transcriber Transcriber
	log         *slog.Logger
	sessions    map[string]*sessionState
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	sub         *nats.Subscription
	wg          sync.WaitGroup
	ready       bool
}

type sessionState struct {
	Buffer       []byte
	SampleRate   int
	Channels     int
	LastPartial  time.Time
	LastFrame    time.Time
	Inflight     bool
	PendingFinal bool
}

func NewService(parent context.Context, cfg config.RecognizerConfig, busClient *bus.Client, transcriber Transcriber, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:         cfg,
		bus:         busClient,
		transcriber: transcriber,
		log:         log.With(slog.String("component", "stt-service")),
		sessions:    make(map[string]*sessionState),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Serve {
		return nil
	}
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	if idle := time.Duration(s.cfg.IdleMS) * time.Millisecond; idle > 0 {
		s.wg.Add(1)
		go s.sweep(idle)
	}
	s.log.Info("serving recognition over bus", slog.String("subject", subject))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cfg.Serve || s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slogError(err))
		return
	}
	if frame.SessionID == "" {
		return
	}

	s.mu.Lock()
	if frame.Cancel {
		delete(s.sessions, frame.SessionID)
		s.mu.Unlock()
		s.log.Debug("session cancelled by sender", slog.String("session_id", frame.SessionID))
		return
	}
	state := s.sessions[frame.SessionID]
	if state == nil {
		state = &sessionState{SampleRate: frame.SampleRate, Channels: frame.Channels}
		s.sessions[frame.SessionID] = state
	}
	state.Buffer = append(state.Buffer, frame.PCM...)
	state.LastFrame = time.Now()
	s.mu.Unlock()

	if frame.Final {
		s.scheduleTranscription(frame.SessionID, true)
		return
	}
	if s.shouldSchedulePartial(frame.SessionID) {
		s.scheduleTranscription(frame.SessionID, false)
	}
}

// Sessions reports how many sessions currently hold audio.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) sweep(idle time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.evictIdle(now, idle); n > 0 {
				s.log.Info("evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

// evictIdle drops sessions with no frame for idle that are not transcribing.
func (s *Service) evictIdle(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, state := range s.sessions {
		if !state.Inflight && now.Sub(state.LastFrame) > idle {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (s *Service) shouldSchedulePartial(sessionID string) bool {
	interval := time.Duration(s.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	if state == nil || state.Inflight {
		return false
	}
	if state.LastPartial.IsZero() || time.Since(state.LastPartial) >= interval {
		state.LastPartial = time.Now()
		return true
	}
	return false
}

func (s *Service) scheduleTranscription(sessionID string, final bool) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	if state.Inflight {
		if final {
			state.PendingFinal = true
		}
		s.mu.Unlock()
		return
	}
	pcm := append([]byte(nil), state.Buffer...)
	sampleRate, channels := state.SampleRate, state.Channels
	state.Inflight = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timeout := time.Duration(s.cfg.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		result, err := s.transcriber.Transcribe(ctx, pcm, sampleRate, channels, final)
		switch {
		case err != nil && final:
			s.log.Warn("final transcription failed", slog.String("session_id", sessionID), slogError(err))
			s.publishTranscript(protocol.Transcript{SessionID: sessionID, Error: err.Error()})
		case err != nil:
			s.log.Warn("partial transcription failed", slog.String("session_id", sessionID), slogError(err))
		case final || result.Text != "":
			s.publishTranscript(protocol.Transcript{
				SessionID:  sessionID,
				Text:       result.Text,
				Partial:    !final,
				Confidence: result.Confidence,
			})
		}

		s.mu.Lock()
		state := s.sessions[sessionID]
		var pendingFinal bool
		if state != nil {
			state.Inflight = false
			pendingFinal = state.PendingFinal
			if !final {
				state.LastPartial = time.Now()
			}
			if final {
				delete(s.sessions, sessionID)
			}
		}
		s.mu.Unlock()

		if pendingFinal && !final {
			s.scheduleTranscription(sessionID, true)
		}
	}()
}

func (s *Service) publishTranscript(msg protocol.Transcript) {
	subject := protocol.SubjectTranscriptPartial
	if !msg.Partial {
		subject = protocol.SubjectTranscriptFinal
	}
	msg.Timestamp = time.Now().UTC()
	if err := s.bus.PublishJSON(subject, msg); err != nil {
		s.log.Warn("failed to publish transcript", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
