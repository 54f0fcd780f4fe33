package permission

import (
	"fmt"
	"strings"
)

// Status is the platform's answer to a speech recognition access request.
type Status int

const (
	NotDetermined Status = iota
	Authorized
	Denied
	Restricted
)

const (
	GuideDenied        = "speech recognition access is denied"
	GuideRestricted    = "speech recognition is unavailable on this device"
	GuideNotDetermined = "speech recognition has not yet been permitted"
)

func (s Status) String() string {
	switch s {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	default:
		return "not_determined"
	}
}

// GuideMessage is the text shown when the button is disabled for s.
// Authorized has none.
func (s Status) GuideMessage() string {
	switch s {
	case Authorized:
		return ""
	case Denied:
		return GuideDenied
	case Restricted:
		return GuideRestricted
	default:
		return GuideNotDetermined
	}
}

// Err returns nil for Authorized and an *AuthorizationError otherwise.
func (s Status) Err() error {
	if s == Authorized {
		return nil
	}
	return &AuthorizationError{Status: s}
}

func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "authorized", "granted":
		return Authorized, nil
	case "denied":
		return Denied, nil
	case "restricted":
		return Restricted, nil
	case "not_determined", "notdetermined", "not-determined", "":
		return NotDetermined, nil
	default:
		return NotDetermined, fmt.Errorf("unknown authorization status %q", v)
	}
}

// AuthorizationError reports that recognition may not run.
type AuthorizationError struct {
	Status Status
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech recognition not authorized (%s): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("speech recognition not authorized: %s", e.Status)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }
