package audio

// TapFunc receives buffers on the device goroutine. It must return quickly
// and never block.
type TapFunc func(Buffer)

// Device is the low-level input driver behind an Engine.
type Device interface {
	// InputFormat reports the device's current output format.
	InputFormat() (Format, error)
	// Prepare allocates resources for streaming buffers of the given size to deliver.
	Prepare(format Format, bufferFrames int, deliver TapFunc) error
	Start() error
	Stop() error
}
