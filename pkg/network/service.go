package network

import "context"

// Result is what a Service hands to a completion. Exactly one of Data and
// Err is meaningful: Err is nil on success and Data may then be empty.
type Result struct {
	Data []byte
	Err  *Error
}

// Completion receives the result of one Service.Request call.
type Completion func(Result)

// Service turns endpoints into requests, sends them through a Session and
// classifies the outcome. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	config  *Config
	session Session
}

// Option configures a Service.
type Option func(*Service)

// WithSession replaces the default HTTP session.
func WithSession(s Session) Option {
	return func(svc *Service) {
		svc.session = s
	}
}

// NewService creates a Service. Without WithSession it sends requests over
// an HTTP/1.1 session using DefaultSessionConfig.
func NewService(cfg *Config, opts ...Option) *Service {
	svc := &Service{config: cfg}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.session == nil {
		svc.session = NewHTTPSession(DefaultSessionConfig())
	}
	return svc
}

// Config returns the configuration the service builds requests with.
func (s *Service) Config() *Config {
	return s.config
}

// Request performs the call on a new goroutine and invokes completion
// exactly once from that goroutine. A nil completion discards the result.
func (s *Service) Request(ctx context.Context, endpoint Requestable, completion Completion) {
	if completion == nil {
		completion = func(Result) {}
	}
	go func() {
		completion(s.do(ctx, endpoint))
	}()
}

// Do performs the call and blocks until it resolves. The returned error,
// when non-nil, is always an *Error; the body of an HTTP failure is in its
// Data field.
func (s *Service) Do(ctx context.Context, endpoint Requestable) ([]byte, error) {
	res := s.do(ctx, endpoint)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Data, nil
}

func (s *Service) do(ctx context.Context, endpoint Requestable) Result {
	req, err := endpoint.Request(s.config)
	if err != nil {
		return Result{Err: &Error{Kind: KindURLGeneration, Err: err}}
	}

	data, resp, err := s.session.Do(ctx, req)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return Result{Err: &Error{
				Kind:       KindHTTP,
				StatusCode: resp.StatusCode,
				Data:       data,
				Err:        err,
			}}
		}
		return Result{Err: resolve(err)}
	}

	return Result{Data: data}
}

// Close releases the session.
func (s *Service) Close() error {
	return s.session.Close()
}
