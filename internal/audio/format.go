package audio

import (
	"fmt"
	"time"
)

// DefaultBufferFrames is the tap size used by the recognition session.
const DefaultBufferFrames = 1024

// Format describes interleaved signed 16-bit PCM as delivered by an input device.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", ErrInvalidFormat, f.Channels)
	}
	return nil
}

// BufferDuration is the wall-clock span covered by frames at this format.
func (f Format) BufferDuration(frames int) time.Duration {
	if f.SampleRate <= 0 || frames <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}
