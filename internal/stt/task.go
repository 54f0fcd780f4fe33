package stt

import (
	"context"
	"errors"
	"sync"
)

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) Cancel() { t.cancel() }
func (t *task) Done() <-chan struct{} { return t.done }

// guard serializes calls to fn and drops everything after the first
// terminal update.
func guard(fn ResultFunc) ResultFunc {
	var (
		mu       sync.Mutex
		finished bool
	)
	return func(res *Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		if err != nil || (res != nil && res.Final) {
			finished = true
		}
		fn(res, err)
	}
}

// runTask drives run on its own goroutine. A run error is reported through
// emit unless the task or the request was cancelled first.
func runTask(parent context.Context, req *Request, emit ResultFunc, run func(ctx context.Context) error) Task {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}

	go func() {
		select {
		case <-req.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer close(t.done)
		defer cancel()
		err := run(ctx)
		if err == nil || ctx.Err() != nil || errors.Is(err, ErrRequestCancelled) {
			return
		}
		var recErr *RecognizerError
		if !errors.As(err, &recErr) {
			err = &RecognizerError{Err: err}
		}
		emit(nil, err)
	}()
	return t
}
