package core

import (
	"context"

	"github.com/vango-go/voice-relay/pkg/core/types"
)

// Generator is the interface every language-model backend implements.
type Generator interface {
	// Name returns the backend identifier (e.g., "gemini", "gemini_sdk").
	Name() string

	// Model returns the model the backend sends requests to.
	Model() string

	// HasCredentials reports whether an API credential is configured.
	HasCredentials() bool

	// Generate performs one non-streaming call. Cancelling ctx abandons the call.
	Generate(ctx context.Context, req *types.GenerateRequest) (*types.GenerateResponse, error)
}
