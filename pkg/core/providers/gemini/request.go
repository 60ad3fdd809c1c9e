package gemini

import (
	"encoding/base64"
	"strings"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/core/types"
)

// geminiRequest is the generateContent request body.
// The REST API accepts snake_case field names as well as camelCase.
type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generation_config,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user", "model"
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64 encoded
}

type geminiGenConfig struct {
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

func buildRequest(req *types.GenerateRequest, maxOutputTokens int) (*geminiRequest, error) {
	out := &geminiRequest{}

	if sys := strings.TrimSpace(req.System); sys != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}

	for _, turn := range req.History {
		if turn.IsBlank() {
			continue
		}
		out.Contents = append(out.Contents, geminiContent{
			Role:  roleFor(turn.Role),
			Parts: []geminiPart{{Text: turn.Text}},
		})
	}

	var parts []geminiPart
	if strings.TrimSpace(req.Text) != "" {
		parts = append(parts, geminiPart{Text: req.Text})
	}
	if req.Audio != nil && len(req.Audio.Data) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiBlob{
			MIMEType: req.Audio.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Audio.Data),
		}})
	}
	if len(parts) == 0 {
		return nil, core.NewInvalidRequestError("request has no text or audio input")
	}
	out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: parts})

	if maxOutputTokens > 0 {
		out.GenerationConfig = &geminiGenConfig{MaxOutputTokens: maxOutputTokens}
	}
	return out, nil
}

func roleFor(role types.Role) string {
	if role == types.RoleModel {
		return "model"
	}
	return "user"
}
