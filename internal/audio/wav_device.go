package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDevice replays a WAV file as if it were a live microphone, pacing
// buffers at the file's sample rate.
type WAVDevice struct {
	path   string
	loop   bool
	format Format
	depth  int

	mu      sync.Mutex
	frames  int
	deliver TapFunc
	stop    chan struct{}
	done    chan struct{}
}

func NewWAVDevice(path string, loop bool) (*WAVDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &EngineError{Op: "open wav", Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, &EngineError{Op: "open wav", Err: fmt.Errorf("%s is not a valid wav file", path)}
	}
	format := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	if err := format.Validate(); err != nil {
		return nil, &EngineError{Op: "open wav", Err: err}
	}
	return &WAVDevice{path: path, loop: loop, format: format, depth: int(dec.BitDepth)}, nil
}

func (d *WAVDevice) InputFormat() (Format, error) {
	return d.format, nil
}

func (d *WAVDevice) Prepare(format Format, bufferFrames int, deliver TapFunc) error {
	if format != d.format {
		return fmt.Errorf("wav device format is %s, requested %s", d.format, format)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = bufferFrames
	d.deliver = deliver
	return nil
}

func (d *WAVDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deliver == nil {
		return errors.New("wav device not prepared")
	}
	if d.stop != nil {
		return ErrAlreadyRunning
	}
	f, err := os.Open(d.path)
	if err != nil {
		return err
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(f, d.stop, d.done)
	return nil
}

func (d *WAVDevice) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (d *WAVDevice) run(f *os.File, stop, done chan struct{}) {
	defer close(done)
	defer func() { f.Close() }()

	dec := wav.NewDecoder(f)
	pcm := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: d.format.Channels, SampleRate: d.format.SampleRate},
		Data:   make([]int, d.frames*d.format.Channels),
	}
	ticker := time.NewTicker(d.format.BufferDuration(d.frames))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		n, err := dec.PCMBuffer(pcm)
		if n == 0 || errors.Is(err, io.EOF) {
			if !d.loop {
				return
			}
			f.Close()
			if f, err = os.Open(d.path); err != nil {
				return
			}
			dec = wav.NewDecoder(f)
			continue
		}
		if err != nil {
			return
		}
		samples := make([]int16, n)
		for i := 0; i < n; i++ {
			samples[i] = scaleToInt16(pcm.Data[i], d.depth)
		}
		d.deliver(Buffer{Format: d.format, Samples: samples, Captured: time.Now()})
	}
}
