// Package apierr maps upstream failures onto a small, stable taxonomy the
// UI layer can act on.
package apierr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is an error category
type Type string

const (
	TypeNetwork    Type = "network"
	TypeRateLimit  Type = "rate_limit"
	TypeAuth       Type = "auth"
	TypeValidation Type = "validation"
	TypeAPI        Type = "api"
	TypeOther      Type = "other"
)

// Retryable reports whether the UI should offer a manual retry for t
func (t Type) Retryable() bool {
	switch t {
	case TypeNetwork, TypeRateLimit:
		return true
	default:
		return false
	}
}

// CodeNetwork marks errors raised by the transport layer
const CodeNetwork = "NETWORK_ERROR"

// User-facing messages
const (
	MsgUnexpected     = "An unexpected error occurred"
	MsgRateLimit      = "Rate limit exceeded. Please wait a moment before trying again."
	MsgAuth           = "Authentication failed. Please check your API key."
	MsgValidation     = "Invalid request. Please check your parameters."
	MsgServer         = "Server error. Please try again later."
	MsgNetwork        = "Network error. Please check your connection and try again."
	MsgNotFound       = "The requested resource was not found."
	MsgAlreadyExists  = "The resource already exists."
	MsgMissingField   = "Required information is missing."
	MsgInvalidFormat  = "Invalid data format provided."
	MsgInvalidRequest = "Invalid request. Please check your parameters and try again."
)

// Info is the classified form of a failure
type Info struct {
	Message   string `json:"message"`
	Retryable bool   `json:"isRetryable"`
	Type      Type   `json:"errorType"`

	// Cause is kept for diagnostic logging only
	Cause error `json:"-"`
}

// ResponseError is a non-2xx upstream response
type ResponseError struct {
	Status int
	Body   []byte

	// Message is the "error" field of a JSON body, if any
	Message string
}

// NewResponseError builds a ResponseError, extracting the upstream error text
func NewResponseError(status int, body []byte) *ResponseError {
	re := &ResponseError{Status: status, Body: body}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		re.Message = payload.Error
	}
	return re
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.Status)
}

// NetworkError is a failure below HTTP: DNS, connect, reset, timeout
type NetworkError struct {
	Code string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return "Network Error"
	}
	return "Network Error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
