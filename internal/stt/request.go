package stt

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-listen/internal/audio"
)

const defaultQueueDepth = 256

type RequestOptions struct {
	ID             string
	PartialResults bool
	Language       string
	QueueDepth     int
}

// Request is an append-only sink of PCM buffers consumed by a Recognizer.
// Append never blocks: it is called from the capture thread.
type Request struct {
	opts   RequestOptions
	format audio.Format

	mu        sync.Mutex
	queue     []audio.Buffer
	ended     bool
	cancelled bool
	ready     chan struct{}
	done      chan struct{}

	appended atomic.Int64
	dropped  atomic.Int64
}

func NewRequest(format audio.Format, opts RequestOptions) (*Request, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	return &Request{
		opts:   opts,
		format: format,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

func (r *Request) ID() string { return r.opts.ID }
func (r *Request) Format() audio.Format { return r.format }
func (r *Request) Options() RequestOptions { return r.opts }
func (r *Request) Done() <-chan struct{} { return r.done }
func (r *Request) Appended() int64 { return r.appended.Load() }
func (r *Request) Dropped() int64 { return r.dropped.Load() }

// Append copies buf into the queue.
func (r *Request) Append(buf audio.Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.cancelled:
		return ErrRequestCancelled
	case r.ended:
		return ErrRequestEnded
	}
	if len(r.queue) >= r.opts.QueueDepth {
		r.dropped.Add(1)
		return ErrBufferDropped
	}
	r.queue = append(r.queue, buf.Clone())
	r.appended.Add(1)
	r.signal()
	return nil
}

// EndAudio marks the end of input; queued buffers are still delivered.
func (r *Request) EndAudio() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.ended = true
	r.signal()
}

func (r *Request) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// Cancel discards queued audio and wakes any consumer. Safe to call repeatedly.
func (r *Request) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return
	}
	r.cancelled = true
	r.queue = nil
	close(r.done)
}

func (r *Request) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Next returns the oldest queued buffer, io.EOF once EndAudio was called and
// the queue is drained, or ErrRequestCancelled.
func (r *Request) Next(ctx context.Context) (audio.Buffer, error) {
	for {
		r.mu.Lock()
		if r.cancelled {
			r.mu.Unlock()
			return audio.Buffer{}, ErrRequestCancelled
		}
		if len(r.queue) > 0 {
			buf := r.queue[0]
			r.queue[0] = audio.Buffer{}
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return buf, nil
		}
		if r.ended {
			r.mu.Unlock()
			return audio.Buffer{}, io.EOF
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return audio.Buffer{}, ctx.Err()
		case <-r.done:
		case <-r.ready:
		}
	}
}

func (r *Request) signal() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}
