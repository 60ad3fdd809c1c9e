// Package gemini_sdk implements core.Generator on top of the official Google Gen AI SDK.
package gemini_sdk

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/core/types"
)

const DefaultModel = "gemini-2.0-flash"

var _ core.Generator = (*Provider)(nil)

// Provider lazily builds a genai client on first use.
type Provider struct {
	apiKey          string
	model           string
	baseURL         string
	maxOutputTokens int32
	httpClient      *http.Client

	clientOnce func() (*genai.Client, error)
}

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimSpace(url) }
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model = strings.TrimSpace(model); model != "" {
			p.model = model
		}
	}
}

// WithMaxOutputTokens caps reply length.
func WithMaxOutputTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxOutputTokens = int32(n)
		}
	}
}

// WithHTTPClient sets the HTTP client the SDK uses.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// New creates a provider. The SDK client is not constructed until the first call.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey: strings.TrimSpace(apiKey),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.clientOnce = sync.OnceValues(func() (*genai.Client, error) {
		cfg := &genai.ClientConfig{
			APIKey:     p.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.httpClient,
		}
		if p.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
		}
		return genai.NewClient(context.Background(), cfg)
	})
	return p
}

func (p *Provider) Name() string { return "gemini_sdk" }

func (p *Provider) Model() string { return p.model }

func (p *Provider) HasCredentials() bool { return p.apiKey != "" }

// Generate sends one GenerateContent call through the SDK.
func (p *Provider) Generate(ctx context.Context, req *types.GenerateRequest) (*types.GenerateResponse, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("request is required")
	}
	if !p.HasCredentials() {
		return nil, core.NewAuthenticationError("gemini API key is not configured")
	}

	contents, err := buildContents(req)
	if err != nil {
		return nil, err
	}

	client, err := p.clientOnce()
	if err != nil {
		return nil, core.NewProviderError(p.Name(), err)
	}

	model := p.model
	if m := strings.TrimSpace(req.Model); m != "" {
		model = m
	}

	cfg := &genai.GenerateContentConfig{}
	if sys := strings.TrimSpace(req.System); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if p.maxOutputTokens > 0 {
		cfg.MaxOutputTokens = p.maxOutputTokens
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, mapError(p.Name(), err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &core.Error{Type: core.ErrProvider, Message: "no candidates in response"}
	}

	cand := resp.Candidates[0]
	out := &types.GenerateResponse{
		Text:         cand.Content.Parts[0].Text,
		Model:        model,
		FinishReason: string(cand.FinishReason),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	return out, nil
}

func buildContents(req *types.GenerateRequest) ([]*genai.Content, error) {
	var contents []*genai.Content
	for _, turn := range req.History {
		if turn.IsBlank() {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if turn.Role == types.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	var parts []*genai.Part
	if strings.TrimSpace(req.Text) != "" {
		parts = append(parts, genai.NewPartFromText(req.Text))
	}
	if req.Audio != nil && len(req.Audio.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Audio.Data, req.Audio.MIMEType))
	}
	if len(parts) == 0 {
		return nil, core.NewInvalidRequestError("request has no text or audio input")
	}
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser)), nil
}

func mapError(provider string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &core.Error{
			Type:          core.TypeForStatus(apiErr.Code),
			Message:       apiErr.Message,
			Code:          apiErr.Status,
			StatusCode:    apiErr.Code,
			ProviderError: err,
		}
	}
	return core.NewProviderError(provider, err)
}
