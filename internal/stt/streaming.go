package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TranscriberRecognizer adapts a batch Transcriber to the streaming contract:
// audio accumulates as it arrives, a partial pass runs at most once per
// interval, and the final pass runs over the whole utterance after EndAudio.
type TranscriberRecognizer struct {
	transcriber  Transcriber
	partialEvery time.Duration
	timeout      time.Duration
	log          *slog.Logger
	now          func() time.Time
}

func NewTranscriberRecognizer(t Transcriber, partialEvery, timeout time.Duration, log *slog.Logger) *TranscriberRecognizer {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &TranscriberRecognizer{
		transcriber:  t,
		partialEvery: partialEvery,
		timeout:      timeout,
		log:          log,
		now:          time.Now,
	}
}

func (r *TranscriberRecognizer) Recognize(ctx context.Context, req *Request, fn ResultFunc) (Task, error) {
	if req == nil {
		return nil, ErrNoActiveRequest
	}
	emit := guard(fn)
	return runTask(ctx, req, emit, func(ctx context.Context) error {
		return r.stream(ctx, req, emit)
	}), nil
}

func (r *TranscriberRecognizer) stream(ctx context.Context, req *Request, emit ResultFunc) error {
	var (
		pcm         []byte
		lastPartial time.Time
		inflight    sync.WaitGroup
		busy        atomic.Bool
	)
	defer inflight.Wait()

	for {
		buf, err := req.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		pcm = append(pcm, buf.Bytes()...)

		if !req.Options().PartialResults || r.partialEvery <= 0 {
			continue
		}
		if busy.Load() || r.now().Sub(lastPartial) < r.partialEvery {
			continue
		}
		lastPartial = r.now()
		busy.Store(true)
		snapshot := append([]byte(nil), pcm...)
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer busy.Store(false)
			res, err := r.transcribe(ctx, snapshot, req, false)
			if err != nil {
				if ctx.Err() == nil {
					r.log.Warn("partial transcription failed", slog.String("error", err.Error()))
				}
				return
			}
			if res.Text == "" {
				return
			}
			emit(&Result{Text: res.Text, Confidence: res.Confidence}, nil)
		}()
	}

	// partials must not arrive after the final
	inflight.Wait()
	res, err := r.transcribe(ctx, pcm, req, true)
	if err != nil {
		return err
	}
	emit(&Result{Text: res.Text, Final: true, Confidence: res.Confidence}, nil)
	return nil
}

func (r *TranscriberRecognizer) transcribe(ctx context.Context, pcm []byte, req *Request, final bool) (TranscriptResult, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	format := req.Format()
	return r.transcriber.Transcribe(tctx, pcm, format.SampleRate, format.Channels, final)
}
