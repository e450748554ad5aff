package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRole  = errors.New("unknown role")
	ErrNotConnected = errors.New("identity not connected")
)

// AuthenticationError means the identity is missing, bad or expired. Registry state is never touched.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ProtocolError is answered in-band; the connection stays open.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DeliveryFailure ends the life of one connection and is never reported to the broadcaster.
type DeliveryFailure struct {
	ConnectionID string
	Err          error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.ConnectionID, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

type AuthorizationError struct {
	Role      Role
	Operation string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Operation)
}

// Require returns an AuthorizationError unless role is one of allowed.
func Require(role Role, operation string, allowed ...Role) error {
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return &AuthorizationError{Role: role, Operation: operation}
}
