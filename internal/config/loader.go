package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration bytes on top of DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors and fills in defaults. It is
// safe to call again after overriding fields.
func Validate(cfg *Config) error {
	if cfg.Network.BaseURL != "" {
		u, err := url.Parse(cfg.Network.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("network.base_url %q must be an absolute url", cfg.Network.BaseURL)
		}
	}

	if cfg.Network.Protocol == "" {
		cfg.Network.Protocol = ProtocolHTTP
	}
	if !cfg.Network.Protocol.Valid() {
		return fmt.Errorf("network.protocol %q is not one of http, http2, grpc", cfg.Network.Protocol)
	}

	seen := make(map[string]bool, len(cfg.Endpoints))
	for i, e := range cfg.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("endpoints[%d]: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("endpoints[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true

		if e.Path == "" {
			return fmt.Errorf("endpoints[%d]: path is required", i)
		}
		if !e.FullPath && cfg.Network.BaseURL == "" {
			return fmt.Errorf("endpoints[%d]: relative path requires network.base_url", i)
		}
		if e.Method == "" {
			cfg.Endpoints[i].Method = "GET"
		} else {
			cfg.Endpoints[i].Method = strings.ToUpper(e.Method)
		}
	}

	if cfg.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be positive")
	}
	if cfg.Batch.QueueSize <= 0 {
		cfg.Batch.QueueSize = cfg.Batch.Concurrency
	}
	if cfg.Batch.Rate < 0 {
		return fmt.Errorf("batch.rate must not be negative")
	}
	if cfg.Batch.Repeat <= 0 {
		cfg.Batch.Repeat = 1
	}
	if err := validateShape(&cfg.Batch.Shape); err != nil {
		return err
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}

	return nil
}

func validateShape(s *Shape) error {
	if s.Spikes.Enabled {
		if s.Spikes.Lambda <= 0 {
			return fmt.Errorf("batch.shape.spikes.lambda must be positive")
		}
		if s.Spikes.Factor < 1 {
			return fmt.Errorf("batch.shape.spikes.factor must be at least 1")
		}
		if s.Spikes.MaxInterval < s.Spikes.MinInterval {
			return fmt.Errorf("batch.shape.spikes.max_interval must not be below min_interval")
		}
		if s.Spikes.RampUp <= 0 || s.Spikes.RampDown <= 0 {
			return fmt.Errorf("batch.shape.spikes ramp durations must be positive")
		}
	}
	if s.Noise.Enabled && (s.Noise.Amplitude <= 0 || s.Noise.Amplitude >= 1) {
		return fmt.Errorf("batch.shape.noise.amplitude must be between 0 and 1")
	}
	if s.MaxRate < 0 {
		return fmt.Errorf("batch.shape.max_rate must not be negative")
	}
	if s.Tick <= 0 {
		s.Tick = 100 * time.Millisecond
	}
	return nil
}
