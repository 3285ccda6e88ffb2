package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRequestBlocked is returned when the ESI error limit is too low to risk another request.
var ErrRequestBlocked = errors.New("request blocked: ESI error limit critical")

// ErrorClass represents a classification of ESI request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 420/429/520 error-limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// ESIError is returned for every failed ESI request: transport failures
// and responses outside the 2xx range.
type ESIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ESIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ESI %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("ESI %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ESIError) Unwrap() error {
	return e.Err
}

// Short returns a compact diagnostic suitable for display, e.g. "HTTP 503".
func (e *ESIError) Short() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// ClassifyStatus maps an HTTP status code to an ErrorClass.
// Returns an empty class for non-error statuses.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == 420 || status == http.StatusTooManyRequests || status == 520:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// IsNotFound reports whether err is an ESI 404 response.
func IsNotFound(err error) bool {
	var esiErr *ESIError
	return errors.As(err, &esiErr) && esiErr.StatusCode == http.StatusNotFound
}
