package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/proto"
)

// ErrNotServing is returned when a health check succeeds but the service
// does not report SERVING.
var ErrNotServing = errors.New("service not serving")

// GRPCSession implements Session with the standard gRPC health check.
//
// Request URLs take the form grpc://host:port/service (grpcs:// for TLS).
// The body is the protobuf encoding of the HealthCheckResponse. No HTTP
// status is reported, so failures are classified by their error alone.
type GRPCSession struct {
	cfg      SessionConfig
	dialOpts []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCSession creates a new gRPC session. Extra dial options are applied
// after the defaults.
func NewGRPCSession(cfg SessionConfig, opts ...grpc.DialOption) *GRPCSession {
	return &GRPCSession{
		cfg:      cfg,
		dialOpts: opts,
		conns:    make(map[string]*grpc.ClientConn),
	}
}

// getConn returns a cached connection or creates a new one.
func (s *GRPCSession) getConn(host string, secure bool) (*grpc.ClientConn, error) {
	key := host
	if secure {
		key = "tls:" + host
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[key]; ok {
		return conn, nil
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if secure {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: s.cfg.TLSInsecure,
		})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, s.dialOpts...)

	conn, err := grpc.NewClient("passthrough:///"+host, opts...)
	if err != nil {
		return nil, err
	}

	s.conns[key] = conn
	return conn, nil
}

// Do executes a gRPC health check for the service named by the URL path.
func (s *GRPCSession) Do(ctx context.Context, req *Request) ([]byte, *Response, error) {
	start := time.Now()

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, nil, err
	}

	var secure bool
	switch u.Scheme {
	case "grpc":
	case "grpcs":
		secure = true
	default:
		return nil, nil, fmt.Errorf("unsupported scheme %q for grpc session", u.Scheme)
	}

	conn, err := s.getConn(u.Host, secure)
	if err != nil {
		return nil, nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	client := grpc_health_v1.NewHealthClient(conn)
	healthResp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{
		Service: strings.TrimPrefix(u.Path, "/"),
	})
	if err != nil {
		return nil, nil, err
	}

	data, err := proto.Marshal(healthResp)
	if err != nil {
		return nil, nil, err
	}

	resp := &Response{
		Duration:  time.Since(start),
		BytesRead: int64(len(data)),
	}

	if healthResp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return data, resp, fmt.Errorf("%w: %s", ErrNotServing, healthResp.GetStatus())
	}

	return data, resp, nil
}

// Close releases all connections.
func (s *GRPCSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for key, conn := range s.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.conns, key)
	}
	return firstErr
}
