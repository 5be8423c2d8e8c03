package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the base settings applied to every endpoint built through a
// Service. It is read, never written, once the Service owns it.
type Config struct {
	BaseURL         string
	Headers         map[string]string
	QueryParameters map[string]string
}

// Requestable produces a concrete request for one API call.
type Requestable interface {
	Request(cfg *Config) (*Request, error)
}

// BodyEncoding selects how Endpoint.BodyParameters are serialised.
type BodyEncoding int

const (
	BodyEncodingJSON BodyEncoding = iota
	BodyEncodingForm
)

// Errors returned while building a request.
var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidMethod = errors.New("invalid method")
	ErrBodyEncoding  = errors.New("body encoding failed")
)

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Endpoint describes one API call relative to a Config.
type Endpoint struct {
	Path            string
	IsFullPath      bool
	Method          string
	Headers         map[string]string
	QueryParameters map[string]string
	BodyParameters  map[string]any
	BodyEncoding    BodyEncoding
	Timeout         time.Duration
}

// Request builds the concrete request. Endpoint values take precedence over
// the defaults carried by cfg.
func (e Endpoint) Request(cfg *Config) (*Request, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	method := strings.ToUpper(e.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !validMethods[method] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, e.Method)
	}

	u, err := e.url(cfg)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(cfg.Headers)+len(e.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	for k, v := range e.Headers {
		headers[k] = v
	}

	var body []byte
	if len(e.BodyParameters) > 0 {
		body, err = e.encodeBody()
		if err != nil {
			return nil, err
		}
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = e.contentType()
		}
	}

	return &Request{
		URL:     u,
		Method:  method,
		Headers: headers,
		Body:    body,
		Timeout: e.Timeout,
	}, nil
}

func (e Endpoint) url(cfg *Config) (string, error) {
	raw := e.Path
	if !e.IsFullPath {
		base := cfg.BaseURL
		if base == "" {
			return "", fmt.Errorf("%w: base url is empty", ErrInvalidURL)
		}
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		raw = base + strings.TrimPrefix(e.Path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", ErrInvalidURL, raw)
	}

	q := u.Query()
	for k, v := range cfg.QueryParameters {
		q.Set(k, v)
	}
	for k, v := range e.QueryParameters {
		q.Set(k, v)
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func (e Endpoint) encodeBody() ([]byte, error) {
	switch e.BodyEncoding {
	case BodyEncodingForm:
		form := url.Values{}
		for k, v := range e.BodyParameters {
			form.Set(k, fmt.Sprint(v))
		}
		return []byte(form.Encode()), nil
	default:
		data, err := json.Marshal(e.BodyParameters)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBodyEncoding, err)
		}
		return data, nil
	}
}

func (e Endpoint) contentType() string {
	if e.BodyEncoding == BodyEncodingForm {
		return "application/x-www-form-urlencoded"
	}
	return "application/json"
}
