package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// MockRecognizer emits a partial every N buffers and a final once audio ends.
type MockRecognizer struct {
	partialEvery int
}

func NewMockRecognizer(partialEvery int) *MockRecognizer {
	return &MockRecognizer{partialEvery: partialEvery}
}

func (m *MockRecognizer) Recognize(ctx context.Context, req *Request, fn ResultFunc) (Task, error) {
	if req == nil {
		return nil, ErrNoActiveRequest
	}
	emit := guard(fn)
	return runTask(ctx, req, emit, func(ctx context.Context) error {
		var buffers, frames int
		for {
			buf, err := req.Next(ctx)
			if errors.Is(err, io.EOF) {
				emit(&Result{
					Text:       fmt.Sprintf("[final transcript buffers=%d frames=%d]", buffers, frames),
					Final:      true,
					Confidence: 1,
				}, nil)
				return nil
			}
			if err != nil {
				return err
			}
			buffers++
			frames += buf.Frames()
			if req.Options().PartialResults && m.partialEvery > 0 && buffers%m.partialEvery == 0 {
				emit(&Result{Text: fmt.Sprintf("[partial transcript buffers=%d]", buffers)}, nil)
			}
		}
	}), nil
}

type mockTranscriber struct{}

func NewMockTranscriber() Transcriber {
	return &mockTranscriber{}
}

func (m *mockTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	status := "partial"
	if final {
		status = "final"
	}
	return TranscriptResult{
		Text:       fmt.Sprintf("[%s transcript length=%d]", status, len(pcm)),
		Confidence: 0.5,
	}, nil
}
