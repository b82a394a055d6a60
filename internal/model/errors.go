package model

import (
	"fmt"
	"strings"
)

// InvalidRequestError means a request URL could not be built from the inputs.
// It points at a programming defect rather than an upstream problem.
type InvalidRequestError struct {
	Target string
	Err    error
}

func (e *InvalidRequestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid request for %q", e.Target)
	}
	return fmt.Sprintf("invalid request for %q: %v", e.Target, e.Err)
}

func (e *InvalidRequestError) Unwrap() error { return e.Err }

// TransportError covers network failures and non-2xx upstream responses
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s returned status code %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the upstream body did not have the expected JSON shape
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MalformedPointError names a raw series entry that is not a [timestamp, value] pair
type MalformedPointError struct {
	Raw    RawPoint
	Reason string
}

func (e *MalformedPointError) Error() string {
	values := make([]string, len(e.Raw))
	for i, v := range e.Raw {
		values[i] = v.String()
	}
	return fmt.Sprintf("malformed point [%s]: %s", strings.Join(values, ","), e.Reason)
}

// InvalidTimestampError means an epoch millisecond value is not a usable instant
type InvalidTimestampError struct {
	Value string
	Err   error
}

func (e *InvalidTimestampError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid timestamp %q", e.Value)
	}
	return fmt.Sprintf("invalid timestamp %q: %v", e.Value, e.Err)
}

func (e *InvalidTimestampError) Unwrap() error { return e.Err }
