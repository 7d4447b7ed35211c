package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Reason classifies a failed send.
type Reason string

const (
	ReasonRateLimited         Reason = "rate_limited"
	ReasonInvalidRecipient    Reason = "invalid_recipient"
	ReasonRejected            Reason = "rejected"
	ReasonProviderUnavailable Reason = "provider_unavailable"
	ReasonTransport           Reason = "transport"
	ReasonTimeout             Reason = "timeout"
	ReasonUnreachable         Reason = "unreachable"
)

// GatewayError is the structured failure returned by Send.
type GatewayError struct {
	Reason     Reason
	StatusCode int
	Message    string
	Cause      error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, string(e.Reason))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ReasonOf returns the classified reason, or ReasonTransport for unclassified errors.
func ReasonOf(err error) Reason {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonTransport
}

// IsSystemic reports whether the failure says something about the provider as
// a whole rather than about one recipient.
func IsSystemic(err error) bool {
	if err == nil {
		return false
	}
	switch ReasonOf(err) {
	case ReasonProviderUnavailable, ReasonTransport, ReasonTimeout, ReasonUnreachable:
		return true
	}
	return false
}

// IsUnreachable reports whether the send was refused without contacting the provider.
func IsUnreachable(err error) bool {
	return err != nil && ReasonOf(err) == ReasonUnreachable
}
