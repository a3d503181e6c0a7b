package teslemetry

import (
	"github.com/levenlabs/go-lflag"
)

// Factory builds per-token clients against the configured base URL.
type Factory struct {
	baseURL string
}

// Configured sets up a Factory based on flags.
func Configured() *Factory {
	baseURL := lflag.String("teslemetry-base-url", DefaultBaseURL, "Base URL for the Teslemetry API")

	f := &Factory{}
	lflag.Do(func() {
		f.baseURL = *baseURL
	})
	return f
}

// NewFactory returns a Factory for the given base URL, mainly for tests and
// the one-shot CLI. An empty baseURL selects the public endpoint.
func NewFactory(baseURL string) *Factory {
	return &Factory{baseURL: baseURL}
}

// ClientFor returns a client authenticated with the given bearer token.
func (f *Factory) ClientFor(token string) *Client {
	return New(f.baseURL, token)
}
