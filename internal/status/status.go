package status

import "errors"

var (
	ErrEventNotFound    = errors.New("event: event not found")
	ErrInvalidStatus    = errors.New("event: invalid status")
	ErrInvalidPin       = errors.New("event: invalid pin")
	ErrRequestsClosed   = errors.New("request: requests page is not open")
	ErrInvalidRequest   = errors.New("request: track and requester name are required")
	ErrRequestNotFound  = errors.New("request: request not found")
	ErrRequestLimit     = errors.New("request: request limit reached")
	ErrRequestNotActive = errors.New("request: request status can no longer change")
	ErrNoCandidates     = errors.New("request: no tracks to pick from")
	ErrNotConnected     = errors.New("spotify: tenant is not connected")
	ErrInvalidCommand   = errors.New("spotify: invalid player command")
	ErrInvalidInterval  = errors.New("watcher: interval must be positive")
)

// TransitionError is returned when the event state machine rejects a write.
// Reason is meant to be shown to the host as is.
type TransitionError struct {
	Reason string
}

func (e *TransitionError) Error() string {
	return "event: " + e.Reason
}
