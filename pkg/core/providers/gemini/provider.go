// Package gemini implements the Google Gemini generateContent REST API as a core.Generator.
package gemini

import (
	"context"
	"strings"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/core/types"
)

const (
	// DefaultBaseURL is the default Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when neither the provider nor the request names one.
	DefaultModel = "gemini-2.0-flash"
)

var _ core.Generator = (*Provider)(nil)

// Provider calls Gemini over plain HTTP.
type Provider struct {
	apiKey          string
	model           string
	baseURL         string
	maxOutputTokens int
	httpClient      httpDoer
}

// New creates a new Gemini provider. An empty apiKey is accepted; every call
// then fails with an authentication error without touching the network.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     strings.TrimSpace(apiKey),
		model:      DefaultModel,
		baseURL:    DefaultBaseURL,
		httpClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// HasCredentials reports whether an API key is configured.
func (p *Provider) HasCredentials() bool {
	return p.apiKey != ""
}

// Generate sends a non-streaming generateContent request.
func (p *Provider) Generate(ctx context.Context, req *types.GenerateRequest) (*types.GenerateResponse, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("request is required")
	}
	if !p.HasCredentials() {
		return nil, core.NewAuthenticationError("gemini API key is not configured")
	}

	model := p.model
	if m := stripProviderPrefix(req.Model); m != "" {
		model = m
	}

	geminiReq, err := buildRequest(req, p.maxOutputTokens)
	if err != nil {
		return nil, err
	}

	respBody, err := p.doRequest(ctx, model, geminiReq)
	if err != nil {
		return nil, err
	}
	return parseResponse(respBody, model)
}

func stripProviderPrefix(model string) string {
	model = strings.TrimSpace(model)
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
