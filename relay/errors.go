package relay

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized   = errors.New("relay: the library has not yet been initialized")
	ErrUnknownFunc      = errors.New("relay: unknown message function")
	ErrAlreadyNotified  = errors.New("relay: the event may only notify success or failure once")
	ErrRequestTimeout   = errors.New("relay: request timed out")
	ErrCanceled         = errors.New("relay: request canceled")
	ErrUninitialized    = errors.New("relay: relay was uninitialized")
	ErrNoAuthParameters = errors.New("relay: no authentication parameters registered")
)

// ContextError is returned when an API is called from a frame context that
// does not allow it.
type ContextError struct {
	Context FrameContext
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("relay: this call is not allowed in the '%s' context", e.Context)
}

// HostRejection reports that the host refused an operation.
type HostRejection struct {
	Func   Func
	Reason string
}

func (e *HostRejection) Error() string {
	return e.Reason
}
