package meta

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is a request the provider received and rejected. The message
// comes from the Graph API error envelope and is meant to be shown to
// the user verbatim.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meta api error (%d): %s", e.StatusCode, e.Message)
}

// TransportError is a request that never produced a response. The UI
// renders these as "offline" rather than "rejected".
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("meta transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a network-level failure as opposed
// to a provider rejection.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// parseAPIError turns a non-success response body into an APIError,
// falling back to a generic message when the envelope is absent.
func parseAPIError(statusCode int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return &APIError{StatusCode: statusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Message: fmt.Sprintf("request failed with status %d", statusCode)}
}
