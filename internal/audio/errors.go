package audio

import (
	"errors"
	"fmt"
)

var (
	ErrNoInputDevice      = errors.New("audio engine has no input device")
	ErrAlreadyRunning     = errors.New("audio engine already running")
	ErrInvalidFormat      = errors.New("invalid audio format")
	ErrBackendUnavailable = errors.New("capture backend not available in this build")
)

// EngineError reports a failure of the capture graph: device unavailable,
// format negotiation or start failure.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("audio engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// SessionConfigurationError reports a capture-session setup failure.
type SessionConfigurationError struct {
	Setting string
	Err     error
}

func (e *SessionConfigurationError) Error() string {
	return fmt.Sprintf("capture session %s: %v", e.Setting, e.Err)
}

func (e *SessionConfigurationError) Unwrap() error { return e.Err }
