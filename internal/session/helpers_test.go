package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-listen/internal/audio"
	"github.com/loqalabs/loqa-listen/internal/eventstore"
	"github.com/loqalabs/loqa-listen/internal/stt"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

type fakeDevice struct {
	mu       sync.Mutex
	deliver  audio.TapFunc
	startErr error
	starts   int
	stops    int
}

func (d *fakeDevice) InputFormat() (audio.Format, error) { return mono16k, nil }

func (d *fakeDevice) Prepare(format audio.Format, frames int, deliver audio.TapFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliver = deliver
	return nil
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.starts++
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *fakeDevice) push(frames int) {
	d.mu.Lock()
	deliver := d.deliver
	d.mu.Unlock()
	if deliver != nil {
		deliver(audio.Buffer{Format: mono16k, Samples: make([]int16, frames)})
	}
}

type scriptedTask struct {
	req       *stt.Request
	fn        stt.ResultFunc
	cancelled atomic.Bool
	done      chan struct{}
}

func (c *scriptedTask) Cancel() {
	if c.cancelled.CompareAndSwap(false, true) {
		close(c.done)
	}
}

func (c *scriptedTask) Done() <-chan struct{} { return c.done }

func (c *scriptedTask) partial(text string) { c.fn(&stt.Result{Text: text}, nil) }
func (c *scriptedTask) final(text string) { c.fn(&stt.Result{Text: text, Final: true}, nil) }
func (c *scriptedTask) fail(err error) { c.fn(nil, &stt.RecognizerError{Err: err}) }

// scriptedRecognizer hands each task to the test, which then plays the
// recognizer thread by invoking the callback directly.
type scriptedRecognizer struct {
	mu    sync.Mutex
	tasks []*scriptedTask
	err   error
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, req *stt.Request, fn stt.ResultFunc) (stt.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	t := &scriptedTask{req: req, fn: fn, done: make(chan struct{})}
	r.tasks = append(r.tasks, t)
	return t, nil
}

func (r *scriptedRecognizer) task(t *testing.T, i int) *scriptedTask {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.tasks) {
		t.Fatalf("expected at least %d recognition tasks, got %d", i+1, len(r.tasks))
	}
	return r.tasks[i]
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) SetButtonStatus(enabled bool) {
	o.add(fmt.Sprintf("button:%t", enabled))
}

func (o *recordingObserver) SetGuideMessage(text string) { o.add("guide:" + text) }
func (o *recordingObserver) SetResult(text string) { o.add("result:" + text) }

func (o *recordingObserver) add(call string) {
	o.mu.Lock()
	o.calls = append(o.calls, call)
	o.mu.Unlock()
}

// take returns and clears the recorded calls.
func (o *recordingObserver) take() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.calls
	o.calls = nil
	return out
}

type failingConfigurator struct{}

func (failingConfigurator) Configure(audio.SessionOptions) error {
	return &audio.SessionConfigurationError{Setting: "category", Err: errors.New("busy")}
}

func (failingConfigurator) Deactivate() error { return nil }

type fakeTimeline struct {
	mu       sync.Mutex
	sessions []string
	events   []eventstore.Event
}

func (f *fakeTimeline) AppendSession(ctx context.Context, sessionID, actorID, privacy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	return nil
}

func (f *fakeTimeline) AppendEvent(ctx context.Context, evt eventstore.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeTimeline) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	dev      *fakeDevice
	engine   *audio.Engine
	rec      *scriptedRecognizer
	obs      *recordingObserver
	timeline *fakeTimeline
	session  *Session
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		dev:      &fakeDevice{},
		rec:      &scriptedRecognizer{},
		obs:      &recordingObserver{},
		timeline: &fakeTimeline{},
	}
	engine, err := audio.NewEngine(f.dev, newLogger())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	f.engine = engine
	opts := Options{
		Engine:     engine,
		Recognizer: f.rec,
		Observer:   f.obs,
		Timeline:   f.timeline,
		Logger:     newLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	f.session = s
	t.Cleanup(s.Close)
	return f
}

// flush waits until every closure posted so far has run on the loop.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	if err := f.session.Post(func() { close(done) }); err != nil {
		t.Fatalf("post: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not drain")
	}
}

func expectCalls(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected observer calls %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected observer calls %q, got %q", want, got)
		}
	}
}
