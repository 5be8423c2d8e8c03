package network

import (
	"context"
	"net/http"
	"time"
)

// Request is a fully built request ready to be handed to a Session.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response carries the metadata a Session observed for a request.
// StatusCode is zero when the transport produced no HTTP status.
type Response struct {
	StatusCode int
	Header     http.Header
	Duration   time.Duration
	BytesRead  int64
}

// Session performs exactly one network call for a request.
//
// Do returns the raw body, the response metadata (nil when nothing was
// received) and a transport error. Implementations must not retry.
type Session interface {
	Do(ctx context.Context, req *Request) ([]byte, *Response, error)

	// Close releases any resources held by the session.
	Close() error
}

// SessionConfig contains common configuration for all sessions.
type SessionConfig struct {
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	TLSInsecure     bool
}

// DefaultSessionConfig returns the settings used when no session is supplied.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}
