package network

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointJoinsBaseURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"https://api.example.com", "/search", "https://api.example.com/search"},
		{"https://api.example.com/", "search", "https://api.example.com/search"},
		{"https://api.example.com/v1", "/images/42", "https://api.example.com/v1/images/42"},
		{"https://api.example.com/v1/", "/images/42", "https://api.example.com/v1/images/42"},
	}

	for _, tt := range tests {
		req, err := Endpoint{Path: tt.path}.Request(&Config{BaseURL: tt.base})
		require.NoError(t, err)
		assert.Equal(t, tt.want, req.URL)
		assert.Equal(t, "GET", req.Method)
	}
}

func TestEndpointFullPathIgnoresBaseURL(t *testing.T) {
	req, err := Endpoint{
		Path:       "https://cdn.example.com/thumb.png?size=small",
		IsFullPath: true,
	}.Request(&Config{BaseURL: "https://api.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/thumb.png?size=small", req.URL)
}

func TestEndpointMergesQueryParameters(t *testing.T) {
	cfg := &Config{
		BaseURL:         "https://api.example.com",
		QueryParameters: map[string]string{"api_key": "k", "per_page": "10"},
	}

	req, err := Endpoint{
		Path:            "/search?sort=new",
		QueryParameters: map[string]string{"q": "cat food", "per_page": "50"},
	}.Request(cfg)
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "k", q.Get("api_key"))
	assert.Equal(t, "50", q.Get("per_page"))
	assert.Equal(t, "cat food", q.Get("q"))
	assert.Equal(t, "new", q.Get("sort"))
}

func TestEndpointMergesHeaders(t *testing.T) {
	cfg := &Config{
		BaseURL: "https://api.example.com",
		Headers: map[string]string{"Accept": "application/json", "Authorization": "Client-ID abc"},
	}

	req, err := Endpoint{
		Path:    "/search",
		Method:  "post",
		Headers: map[string]string{"Accept": "text/plain"},
		Timeout: 3 * time.Second,
	}.Request(cfg)
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "text/plain", req.Headers["Accept"])
	assert.Equal(t, "Client-ID abc", req.Headers["Authorization"])
	assert.Equal(t, 3*time.Second, req.Timeout)
	assert.Nil(t, req.Body)

	// defaults stay untouched
	assert.Equal(t, "application/json", cfg.Headers["Accept"])
}

func TestEndpointJSONBody(t *testing.T) {
	req, err := Endpoint{
		Path:           "/favorites",
		Method:         "POST",
		BodyParameters: map[string]any{"id": 42, "tags": []string{"cat"}},
	}.Request(&Config{BaseURL: "https://api.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "application/json", req.Headers["Content-Type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &decoded))
	assert.Equal(t, float64(42), decoded["id"])
}

func TestEndpointFormBody(t *testing.T) {
	req, err := Endpoint{
		Path:           "/login",
		Method:         "POST",
		BodyParameters: map[string]any{"user": "doyoung", "remember": true},
		BodyEncoding:   BodyEncodingForm,
	}.Request(&Config{BaseURL: "https://api.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "application/x-www-form-urlencoded", req.Headers["Content-Type"])
	form, err := url.ParseQuery(string(req.Body))
	require.NoError(t, err)
	assert.Equal(t, "doyoung", form.Get("user"))
	assert.Equal(t, "true", form.Get("remember"))
}

func TestEndpointBuildFailures(t *testing.T) {
	base := &Config{BaseURL: "https://api.example.com"}

	tests := []struct {
		name     string
		cfg      *Config
		endpoint Endpoint
		want     error
	}{
		{"nil config", nil, Endpoint{Path: "/search"}, ErrInvalidURL},
		{"relative base", &Config{BaseURL: "api.example.com"}, Endpoint{Path: "/search"}, ErrInvalidURL},
		{"unparsable", base, Endpoint{Path: "http://[::1", IsFullPath: true}, ErrInvalidURL},
		{"unknown method", base, Endpoint{Path: "/search", Method: "SEARCH"}, ErrInvalidMethod},
		{
			"unencodable body",
			base,
			Endpoint{Path: "/upload", Method: "POST", BodyParameters: map[string]any{"ch": make(chan int)}},
			ErrBodyEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.endpoint.Request(tt.cfg)
			assert.Nil(t, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
