package audio

import "time"

// Buffer is one batch of interleaved PCM frames handed to a tap.
// Taps must not retain Samples past the callback; use Clone.
type Buffer struct {
	Format   Format
	Samples  []int16
	Captured time.Time
}

// Frames reports the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

func (b Buffer) Duration() time.Duration {
	return b.Format.BufferDuration(b.Frames())
}

func (b Buffer) Clone() Buffer {
	out := b
	out.Samples = append([]int16(nil), b.Samples...)
	return out
}

// Bytes encodes the samples as little-endian 16-bit PCM.
func (b Buffer) Bytes() []byte {
	return Int16ToPCMBytes(b.Samples)
}
