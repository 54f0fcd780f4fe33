package stt

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoActiveRequest  = errors.New("no active recognition request")
	ErrRequestEnded     = errors.New("recognition request no longer accepts audio")
	ErrRequestCancelled = errors.New("recognition request cancelled")
	ErrBufferDropped    = errors.New("recognition request queue full, buffer dropped")
)

// Result is one transcription update for an utterance.
type Result struct {
	Text       string
	Final      bool
	Confidence float64
}

// ResultFunc receives zero or more updates, terminating with either an error
// or a Result whose Final flag is set.
type ResultFunc func(res *Result, err error)

// Task is an in-flight recognition bound to one Request.
type Task interface {
	// Cancel is asynchronous and best-effort; callbacks may still arrive.
	Cancel()
	Done() <-chan struct{}
}

// Recognizer consumes a streaming request incrementally.
type Recognizer interface {
	Recognize(ctx context.Context, req *Request, fn ResultFunc) (Task, error)
}

// TranscriptResult captures batch transcriber output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Transcriber abstracts batch STT backends that work on a complete PCM blob.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (TranscriptResult, error)
}

// RecognizerError is a backend failure reported during an active recognition.
type RecognizerError struct {
	Err error
}

func (e *RecognizerError) Error() string {
	return fmt.Sprintf("recognizer: %v", e.Err)
}

func (e *RecognizerError) Unwrap() error { return e.Err }
