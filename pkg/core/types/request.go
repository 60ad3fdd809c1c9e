package types

// InlineData is binary content sent inline with a request, such as a recorded clip.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// GenerateRequest is a single-shot generation call: prior history plus one new user input.
// Exactly one of Text or Audio is expected to be set; when both are present the text
// is sent alongside the audio as an instruction.
type GenerateRequest struct {
	Model   string      `json:"model,omitempty"`
	System  string      `json:"system,omitempty"`
	History []Turn      `json:"history,omitempty"`
	Text    string      `json:"text,omitempty"`
	Audio   *InlineData `json:"audio,omitempty"`
}

// GenerateResponse holds the first text candidate of a generation call.
type GenerateResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}
