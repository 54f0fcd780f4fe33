package audio

import (
	"fmt"
	"sync"
)

type Category string

type Mode string

const (
	CategoryRecord        Category = "record"
	CategoryPlayAndRecord Category = "play_and_record"

	ModeDefault     Mode = "default"
	ModeMeasurement Mode = "measurement"
)

// SessionOptions are the capture-session parameters applied before each recording.
type SessionOptions struct {
	Category                   Category
	Mode                       Mode
	NotifyOthersOnDeactivation bool
}

// RecordOptions is the configuration used for speech capture.
func RecordOptions() SessionOptions {
	return SessionOptions{
		Category:                   CategoryRecord,
		Mode:                       ModeMeasurement,
		NotifyOthersOnDeactivation: true,
	}
}

// SessionConfigurator applies capture-session parameters on the host.
type SessionConfigurator interface {
	Configure(opts SessionOptions) error
	Deactivate() error
}

// HostConfigurator validates the requested options and tracks activation
// for hosts without a shared audio-session service.
type HostConfigurator struct {
	mu     sync.Mutex
	active bool
	opts   SessionOptions
}

func NewHostConfigurator() *HostConfigurator {
	return &HostConfigurator{}
}

func (c *HostConfigurator) Configure(opts SessionOptions) error {
	if err := validateOptions(opts); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
	c.active = true
	return nil
}

func (c *HostConfigurator) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	return nil
}

// Active reports whether a session is configured and not yet deactivated.
func (c *HostConfigurator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func validateOptions(opts SessionOptions) error {
	switch opts.Category {
	case CategoryRecord, CategoryPlayAndRecord:
	default:
		return &SessionConfigurationError{Setting: "category", Err: fmt.Errorf("unsupported category %q", opts.Category)}
	}
	switch opts.Mode {
	case ModeDefault, ModeMeasurement:
	default:
		return &SessionConfigurationError{Setting: "mode", Err: fmt.Errorf("unsupported mode %q", opts.Mode)}
	}
	return nil
}

// OptionsFromStrings builds SessionOptions from configuration values.
func OptionsFromStrings(category, mode string) (SessionOptions, error) {
	opts := RecordOptions()
	if category != "" {
		opts.Category = Category(category)
	}
	if mode != "" {
		opts.Mode = Mode(mode)
	}
	if err := validateOptions(opts); err != nil {
		return SessionOptions{}, err
	}
	return opts, nil
}
