package audio

import (
	"errors"
	"math"
	"sync"
	"time"
)

// SyntheticDevice generates silence or a sine tone in real time.
type SyntheticDevice struct {
	format Format
	toneHz float64
	now    func() time.Time

	mu      sync.Mutex
	frames  int
	deliver TapFunc
	phase   float64
	stop    chan struct{}
	done    chan struct{}
}

func NewSyntheticDevice(format Format, toneHz float64) (*SyntheticDevice, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &SyntheticDevice{format: format, toneHz: toneHz, now: time.Now}, nil
}

func (d *SyntheticDevice) InputFormat() (Format, error) {
	return d.format, nil
}

func (d *SyntheticDevice) Prepare(format Format, bufferFrames int, deliver TapFunc) error {
	if format != d.format {
		return errors.New("synthetic device cannot convert formats")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = bufferFrames
	d.deliver = deliver
	return nil
}

func (d *SyntheticDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deliver == nil {
		return errors.New("synthetic device not prepared")
	}
	if d.stop != nil {
		return ErrAlreadyRunning
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done, d.format.BufferDuration(d.frames))
	return nil
}

func (d *SyntheticDevice) Stop() error {
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

func (d *SyntheticDevice) run(stop, done chan struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.deliver(d.next())
		}
	}
}

// next renders one buffer. Only called from the run goroutine.
func (d *SyntheticDevice) next() Buffer {
	samples := make([]int16, d.frames*d.format.Channels)
	if d.toneHz > 0 {
		step := 2 * math.Pi * d.toneHz / float64(d.format.SampleRate)
		for i := 0; i < d.frames; i++ {
			v := int16(0.25 * 32767 * math.Sin(d.phase))
			for c := 0; c < d.format.Channels; c++ {
				samples[i*d.format.Channels+c] = v
			}
			d.phase = math.Mod(d.phase+step, 2*math.Pi)
		}
	}
	return Buffer{Format: d.format, Samples: samples, Captured: d.now()}
}
