package transport

import (
	"errors"
	"fmt"
)

// LinkState represents the specific kind of link state failure
type LinkState string

const (
	NotConnected     LinkState = "not_connected"
	AlreadyConnected LinkState = "already_connected"
	NotInitialized   LinkState = "not_initialized"
)

// LinkError represents any link-related problem
type LinkError struct {
	State LinkState
	Msg   string
}

// Error implements the error interface
func (e *LinkError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare LinkError values by State
func (e *LinkError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*LinkError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for link states
var (
	ErrNotConnected     = &LinkError{State: NotConnected}
	ErrAlreadyConnected = &LinkError{State: AlreadyConnected}
	ErrNotInitialized   = &LinkError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// NotFoundError reports a missing GATT resource.
type NotFoundError struct {
	Resource string // "service" or "characteristic"
	UUID     string
}

func (e *NotFoundError) Error() string {
	if e.UUID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.UUID)
}
