package gemini

import (
	"net/http"
	"strings"
)

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL sets the base URL for API requests.
// Default: https://generativelanguage.googleapis.com/v1beta
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url = strings.TrimRight(strings.TrimSpace(url), "/"); url != "" {
			p.baseURL = url
		}
	}
}

// WithModel sets the default model for requests that do not name one.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model = stripProviderPrefix(model); model != "" {
			p.model = model
		}
	}
}

// WithMaxOutputTokens caps the length of generated replies. Zero leaves the API default.
func WithMaxOutputTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxOutputTokens = n
		}
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}
