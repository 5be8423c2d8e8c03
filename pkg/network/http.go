package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// HTTPSession implements Session for HTTP/1.1 and HTTP/2.
type HTTPSession struct {
	client  *http.Client
	bufPool sync.Pool
}

// NewHTTPSession creates a new HTTP/1.1 session.
func NewHTTPSession(cfg SessionConfig) *HTTPSession {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
	}

	return newHTTPSession(&http.Client{Transport: transport})
}

// NewHTTP2Session creates a session that always speaks HTTP/2: over TLS for
// https URLs and as h2c with prior knowledge for http URLs.
func NewHTTP2Session(cfg SessionConfig) *HTTPSession {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &h2Transport{
		tls: &http2.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSInsecure,
			},
			DialTLSContext: func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
				td := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
				return td.DialContext(ctx, network, addr)
			},
			IdleConnTimeout: cfg.IdleConnTimeout,
		},
		h2c: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			IdleConnTimeout: cfg.IdleConnTimeout,
		},
	}

	return newHTTPSession(&http.Client{Transport: transport})
}

// h2Transport picks the HTTP/2 transport by URL scheme.
type h2Transport struct {
	tls *http2.Transport
	h2c *http2.Transport
}

func (t *h2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "https" {
		return t.tls.RoundTrip(req)
	}
	return t.h2c.RoundTrip(req)
}

// CloseIdleConnections is called by http.Client.CloseIdleConnections.
func (t *h2Transport) CloseIdleConnections() {
	t.tls.CloseIdleConnections()
	t.h2c.CloseIdleConnections()
}

// NewHTTPSessionWithClient wraps an existing http.Client.
func NewHTTPSessionWithClient(client *http.Client) *HTTPSession {
	return newHTTPSession(client)
}

func newHTTPSession(client *http.Client) *HTTPSession {
	return &HTTPSession{
		client: client,
		bufPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 32*1024)
				return &buf
			},
		},
	}
}

// Do executes an HTTP request. A status of 400 or above is returned as a
// *StatusError alongside the response metadata and the body.
func (s *HTTPSession) Do(ctx context.Context, req *Request) ([]byte, *Response, error) {
	start := time.Now()

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, nil, err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer httpResp.Body.Close()

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
	}

	bufPtr := s.bufPool.Get().(*[]byte)
	defer s.bufPool.Put(bufPtr)

	// Hide ReadFrom so the pooled buffer is used.
	var body bytes.Buffer
	n, err := io.CopyBuffer(struct{ io.Writer }{&body}, httpResp.Body, *bufPtr)
	resp.BytesRead = n
	resp.Duration = time.Since(start)
	if err != nil {
		return body.Bytes(), resp, err
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		return body.Bytes(), resp, &StatusError{StatusCode: httpResp.StatusCode}
	}

	return body.Bytes(), resp, nil
}

// Close releases idle connections.
func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
