package automation

import (
	"fmt"
	"time"
)

// UnreachableError means no response arrived: connection failure, DNS, or timeout.
type UnreachableError struct {
	URL     string
	Timeout bool
	After   time.Duration
	Err     error
}

func (e *UnreachableError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("automation endpoint timed out after %s", e.After)
	}
	return fmt.Sprintf("automation endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// EndpointError means the endpoint answered but reported failure, either with a non-2xx
// status or with success=false in the body.
type EndpointError struct {
	URL     string
	Status  int
	Message string
}

func (e *EndpointError) Error() string {
	if e.Status >= 200 && e.Status < 300 {
		if e.Message == "" {
			return "automation endpoint reported failure"
		}
		return "automation endpoint reported failure: " + e.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("automation endpoint returned status %d", e.Status)
	}
	return fmt.Sprintf("automation endpoint returned status %d: %s", e.Status, e.Message)
}

// DecodeError means a 2xx response whose body is not the expected JSON document.
type DecodeError struct {
	URL  string
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unparseable automation response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
