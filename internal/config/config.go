package config

import (
	"time"

	"github.com/searcher/pkg/network"
)

// Config is the root configuration structure.
type Config struct {
	Network   Network    `yaml:"network"`
	Endpoints []Endpoint `yaml:"endpoints"`
	Batch     Batch      `yaml:"batch"`
	Metrics   Metrics    `yaml:"metrics"`
	Log       Log        `yaml:"log"`
}

// Network holds the settings shared by every request.
type Network struct {
	BaseURL         string            `yaml:"base_url"`
	Protocol        Protocol          `yaml:"protocol"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Query           map[string]string `yaml:"query,omitempty"`
	MaxIdleConns    int               `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration     `yaml:"idle_conn_timeout"`
	TLSInsecure     bool              `yaml:"tls_insecure"`
}

// Protocol represents the supported transports.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTP2 Protocol = "http2"
	ProtocolGRPC  Protocol = "grpc"
)

// Valid reports whether p names a supported transport.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTP2, ProtocolGRPC:
		return true
	}
	return false
}

// Endpoint defines a single named API call.
type Endpoint struct {
	Name     string            `yaml:"name"`
	Path     string            `yaml:"path"`
	FullPath bool              `yaml:"full_path,omitempty"`
	Method   string            `yaml:"method"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Query    map[string]string `yaml:"query,omitempty"`
	Body     map[string]any    `yaml:"body,omitempty"`
	Form     bool              `yaml:"form,omitempty"` // encode body as form values instead of JSON
	Timeout  time.Duration     `yaml:"timeout"`
}

// Batch configures the worker pool used by the batch command.
type Batch struct {
	Concurrency int     `yaml:"concurrency"`
	QueueSize   int     `yaml:"queue_size"`
	Rate        float64 `yaml:"rate"` // requests per second, 0 = unlimited
	Repeat      int     `yaml:"repeat"`
	Shape       Shape   `yaml:"shape"`
}

// Shape varies the batch rate over time. It only applies when Rate is set.
type Shape struct {
	Spikes  Spikes        `yaml:"spikes"`
	Noise   Noise         `yaml:"noise"`
	MaxRate float64       `yaml:"max_rate"` // 0 = Rate * Spikes.Factor
	Tick    time.Duration `yaml:"tick"`
}

// Enabled reports whether any shaping is configured.
func (s Shape) Enabled() bool {
	return s.Spikes.Enabled || s.Noise.Enabled
}

// Spikes configures Poisson-distributed rate spikes.
type Spikes struct {
	Enabled     bool          `yaml:"enabled"`
	Lambda      float64       `yaml:"lambda"` // spikes per second
	Factor      float64       `yaml:"factor"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	RampUp      time.Duration `yaml:"ramp_up"`
	RampDown    time.Duration `yaml:"ramp_down"`
}

// Noise configures small random fluctuations of the rate.
type Noise struct {
	Enabled   bool    `yaml:"enabled"`
	Amplitude float64 `yaml:"amplitude"` // fraction of the rate, e.g. 0.1
}

// Metrics configures Prometheus metrics.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Log configures logging.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: Network{
			Protocol:        ProtocolHTTP,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		},
		Batch: Batch{
			Concurrency: 8,
			QueueSize:   256,
			Repeat:      1,
			Shape: Shape{
				Spikes: Spikes{
					Lambda:      0.05,
					Factor:      2.0,
					MinInterval: 5 * time.Second,
					MaxInterval: time.Minute,
					RampUp:      2 * time.Second,
					RampDown:    5 * time.Second,
				},
				Noise: Noise{Amplitude: 0.1},
				Tick:  100 * time.Millisecond,
			},
		},
		Metrics: Metrics{
			Address: ":9090",
			Path:    "/metrics",
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ServiceConfig returns the request defaults for a network.Service.
func (n Network) ServiceConfig() *network.Config {
	return &network.Config{
		BaseURL:         n.BaseURL,
		Headers:         n.Headers,
		QueryParameters: n.Query,
	}
}

// SessionConfig returns the transport settings for a network.Session.
func (n Network) SessionConfig() network.SessionConfig {
	return network.SessionConfig{
		MaxIdleConns:    n.MaxIdleConns,
		IdleConnTimeout: n.IdleConnTimeout,
		TLSInsecure:     n.TLSInsecure,
	}
}

// NewSession creates the session matching the configured protocol.
func (n Network) NewSession() network.Session {
	cfg := n.SessionConfig()
	switch n.Protocol {
	case ProtocolHTTP2:
		return network.NewHTTP2Session(cfg)
	case ProtocolGRPC:
		return network.NewGRPCSession(cfg)
	default:
		return network.NewHTTPSession(cfg)
	}
}

// Descriptor converts the endpoint into a request descriptor.
func (e Endpoint) Descriptor() network.Endpoint {
	encoding := network.BodyEncodingJSON
	if e.Form {
		encoding = network.BodyEncodingForm
	}

	return network.Endpoint{
		Path:            e.Path,
		IsFullPath:      e.FullPath,
		Method:          e.Method,
		Headers:         e.Headers,
		QueryParameters: e.Query,
		BodyParameters:  e.Body,
		BodyEncoding:    encoding,
		Timeout:         e.Timeout,
	}
}

// FindEndpoint returns the endpoint with the given name.
func (c *Config) FindEndpoint(name string) (Endpoint, bool) {
	for _, e := range c.Endpoints {
		if e.Name == name {
			return e, true
		}
	}
	return Endpoint{}, false
}
