//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice captures from a host microphone through PortAudio.
type PortAudioDevice struct {
	name string

	mu     sync.Mutex
	format Format
	stream *portaudio.Stream
}

func NewPortAudioDevice(name string) (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &EngineError{Op: "initialize portaudio", Err: err}
	}
	return &PortAudioDevice{name: name}, nil
}

func (d *PortAudioDevice) inputDevice() (*portaudio.DeviceInfo, error) {
	if d.name == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, info := range devices {
		if info.Name == d.name && info.MaxInputChannels > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", d.name)
}

func (d *PortAudioDevice) InputFormat() (Format, error) {
	info, err := d.inputDevice()
	if err != nil {
		return Format{}, err
	}
	channels := info.MaxInputChannels
	if channels > 1 {
		channels = 1
	}
	return Format{SampleRate: int(info.DefaultSampleRate), Channels: channels}, nil
}

func (d *PortAudioDevice) Prepare(format Format, bufferFrames int, deliver TapFunc) error {
	info, err := d.inputDevice()
	if err != nil {
		return err
	}
	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = bufferFrames

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		deliver(Buffer{Format: format, Samples: append([]int16(nil), in...), Captured: time.Now()})
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		d.stream.Close()
	}
	d.stream = stream
	d.format = format
	return nil
}

func (d *PortAudioDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return errors.New("portaudio stream not prepared")
	}
	return d.stream.Start()
}

func (d *PortAudioDevice) Stop() error {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()
	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

// PortAudioConfigurator checks that the host API exposes an input device
// before a recording session is activated.
type PortAudioConfigurator struct {
	HostConfigurator
}

func NewPortAudioConfigurator() (SessionConfigurator, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &SessionConfigurationError{Setting: "host api", Err: err}
	}
	return &PortAudioConfigurator{}, nil
}

func (c *PortAudioConfigurator) Configure(opts SessionOptions) error {
	api, err := portaudio.DefaultHostApi()
	if err != nil {
		return &SessionConfigurationError{Setting: "host api", Err: err}
	}
	if api.DefaultInputDevice == nil {
		return &SessionConfigurationError{Setting: "host api", Err: ErrNoInputDevice}
	}
	return c.HostConfigurator.Configure(opts)
}
