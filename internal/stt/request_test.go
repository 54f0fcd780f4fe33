package stt

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/loqalabs/loqa-listen/internal/audio"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

func newTestRequest(t *testing.T, opts RequestOptions) *Request {
	t.Helper()
	req, err := NewRequest(mono16k, opts)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func buffer(samples ...int16) audio.Buffer {
	return audio.Buffer{Format: mono16k, Samples: samples}
}

func TestRequestDeliversInOrderThenEOF(t *testing.T) {
	req := newTestRequest(t, RequestOptions{})
	for i := int16(1); i <= 3; i++ {
		if err := req.Append(buffer(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	req.EndAudio()

	ctx := context.Background()
	for want := int16(1); want <= 3; want++ {
		buf, err := req.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if buf.Samples[0] != want {
			t.Fatalf("expected sample %d, got %d", want, buf.Samples[0])
		}
	}
	if _, err := req.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after drain, got %v", err)
	}
}

func TestRequestCopiesAppendedSamples(t *testing.T) {
	req := newTestRequest(t, RequestOptions{})
	samples := []int16{7, 7}
	if err := req.Append(audio.Buffer{Format: mono16k, Samples: samples}); err != nil {
		t.Fatal(err)
	}
	samples[0] = 0
	buf, err := req.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if buf.Samples[0] != 7 {
		t.Fatalf("request must not alias caller buffers")
	}
}

func TestRequestRejectsAppendAfterEnd(t *testing.T) {
	req := newTestRequest(t, RequestOptions{})
	req.EndAudio()
	req.EndAudio()
	if err := req.Append(buffer(1)); !errors.Is(err, ErrRequestEnded) {
		t.Fatalf("expected ErrRequestEnded, got %v", err)
	}
	req.Cancel()
	if err := req.Append(buffer(1)); !errors.Is(err, ErrRequestCancelled) {
		t.Fatalf("expected ErrRequestCancelled, got %v", err)
	}
}

func TestRequestDropsWhenQueueFull(t *testing.T) {
	req := newTestRequest(t, RequestOptions{QueueDepth: 2})
	_ = req.Append(buffer(1))
	_ = req.Append(buffer(2))
	if err := req.Append(buffer(3)); !errors.Is(err, ErrBufferDropped) {
		t.Fatalf("expected drop, got %v", err)
	}
	if req.Appended() != 2 || req.Dropped() != 1 {
		t.Fatalf("unexpected counters appended=%d dropped=%d", req.Appended(), req.Dropped())
	}
}

func TestRequestCancelWakesConsumer(t *testing.T) {
	req := newTestRequest(t, RequestOptions{})
	errCh := make(chan error, 1)
	go func() {
		_, err := req.Next(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	req.Cancel()
	req.Cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrRequestCancelled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer not woken by cancel")
	}
}

func TestRequestNextHonoursContext(t *testing.T) {
	req := newTestRequest(t, RequestOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := req.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestNewRequestValidatesFormat(t *testing.T) {
	if _, err := NewRequest(audio.Format{}, RequestOptions{}); err == nil {
		t.Fatal("expected invalid format error")
	}
}
