package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusRecognizer forwards captured audio to a remote Service and relays the
// transcripts it publishes for the request's session id.
type BusRecognizer struct {
	bus *bus.Client
	log *slog.Logger
}

func NewBusRecognizer(busClient *bus.Client, log *slog.Logger) (*BusRecognizer, error) {
	if busClient == nil {
		return nil, errors.New("bus recognizer requires a bus connection")
	}
	return &BusRecognizer{bus: busClient, log: log}, nil
}

func (r *BusRecognizer) Recognize(ctx context.Context, req *Request, fn ResultFunc) (Task, error) {
	if req == nil {
		return nil, ErrNoActiveRequest
	}
	if req.ID() == "" {
		return nil, errors.New("bus recognition requires a request id")
	}

	finished := make(chan struct{})
	emit := guard(fn)
	sub, err := r.bus.Conn().Subscribe(protocol.SubjectTranscriptPrefix+".>", func(msg *nats.Msg) {
		var t protocol.Transcript
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			r.log.Warn("failed to decode transcript", slog.String("error", err.Error()))
			return
		}
		if t.SessionID != req.ID() {
			return
		}
		if t.Error != "" {
			emit(nil, &RecognizerError{Err: errors.New(t.Error)})
			closeOnce(finished)
			return
		}
		emit(&Result{Text: t.Text, Final: !t.Partial, Confidence: t.Confidence}, nil)
		if !t.Partial {
			closeOnce(finished)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe transcripts: %w", err)
	}

	return runTask(ctx, req, emit, func(ctx context.Context) error {
		defer sub.Unsubscribe()
		return r.forward(ctx, req, finished)
	}), nil
}

func (r *BusRecognizer) forward(ctx context.Context, req *Request, finished <-chan struct{}) error {
	format := req.Format()
	subject := protocol.AudioFrameSubject(req.ID())
	seq := 0
	for {
		buf, err := req.Next(ctx)
		final := errors.Is(err, io.EOF)
		if err != nil && !final {
			r.publishCancel(subject, req.ID(), seq)
			return err
		}
		frame := protocol.AudioFrame{
			SessionID:  req.ID(),
			Sequence:   seq,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Final:      final,
		}
		if !final {
			frame.PCM = buf.Bytes()
		}
		if err := r.bus.PublishJSON(subject, frame); err != nil {
			return err
		}
		seq++
		if final {
			break
		}
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publishCancel tells the Service to drop the audio it holds for sessionID.
func (r *BusRecognizer) publishCancel(subject, sessionID string, seq int) {
	frame := protocol.AudioFrame{SessionID: sessionID, Sequence: seq, Cancel: true}
	if err := r.bus.PublishJSON(subject, frame); err != nil {
		r.log.Warn("failed to publish cancel frame", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
