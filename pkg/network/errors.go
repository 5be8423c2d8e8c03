package network

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request.
type Kind int

const (
	KindGeneric       Kind = iota // Any other transport failure
	KindURLGeneration             // Endpoint could not produce a request
	KindHTTP                      // Transport failed and an HTTP status was available
	KindNotConnected              // No network connectivity
	KindCancelled                 // Request was cancelled
)

func (k Kind) String() string {
	switch k {
	case KindURLGeneration:
		return "url-generation"
	case KindHTTP:
		return "http-error"
	case KindNotConnected:
		return "not-connected"
	case KindCancelled:
		return "cancelled"
	default:
		return "generic"
	}
}

// Sentinel errors matched by errors.Is against an *Error of the same kind.
var (
	ErrURLGeneration = errors.New("url generation failed")
	ErrNotConnected  = errors.New("not connected to network")
	ErrCancelled     = errors.New("request cancelled")
)

// Error is the classified failure of a Service request.
type Error struct {
	Kind Kind

	// StatusCode and Data are set for KindHTTP. Data may be nil.
	StatusCode int
	Data       []byte

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("http error: status %d", e.StatusCode)
	case KindURLGeneration:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", ErrURLGeneration, e.Err)
		}
		return ErrURLGeneration.Error()
	case KindNotConnected:
		return ErrNotConnected.Error()
	case KindCancelled:
		return ErrCancelled.Error()
	default:
		if e.Err != nil {
			return fmt.Sprintf("request failed: %v", e.Err)
		}
		return "request failed"
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrURLGeneration:
		return e.Kind == KindURLGeneration
	case ErrNotConnected:
		return e.Kind == KindNotConnected
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

// KindOf returns the kind of err, or KindGeneric when err is not an *Error.
func KindOf(err error) Kind {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Kind
	}
	return KindGeneric
}

// StatusError is returned by HTTP sessions for responses with a status of
// 400 or above.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
