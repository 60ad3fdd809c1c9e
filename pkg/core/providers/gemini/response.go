package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/core/types"
)

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// parseResponse extracts candidates[0].content.parts[0].text. Anything else is an error.
func parseResponse(body []byte, model string) (*types.GenerateResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &core.Error{Type: core.ErrProvider, Message: fmt.Sprintf("decode response: %v", err), ProviderError: err}
	}

	if len(resp.Candidates) == 0 {
		msg := "no candidates in response"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, &core.Error{Type: core.ErrProvider, Message: msg}
	}

	cand := resp.Candidates[0]
	if len(cand.Content.Parts) == 0 {
		return nil, &core.Error{
			Type:    core.ErrProvider,
			Message: "candidate has no content parts",
			Code:    cand.FinishReason,
		}
	}

	out := &types.GenerateResponse{
		Text:         cand.Content.Parts[0].Text,
		Model:        model,
		FinishReason: cand.FinishReason,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	return out, nil
}
