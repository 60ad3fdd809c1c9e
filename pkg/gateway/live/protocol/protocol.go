package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event types.
const (
	TypeStartMic    = "start_mic"
	TypeAudioData   = "audio_data"
	TypeStopMic     = "stop_mic"
	TypeInterrupt   = "interrupt"
	TypeTextMessage = "text_message"
)

// Outbound event types.
const (
	TypeConnectionStatus = "connection_status"
	TypeGeminiStatus     = "gemini_status"
	TypeMicStatus        = "mic_status"
	TypeInterruptAck     = "interrupt_ack"
	TypeUserMessage      = "user_message"
	TypeAIResponse       = "ai_response"
	TypeError            = "error"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type ClientStartMic struct {
	Type         string `json:"type"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type ClientAudioData struct {
	Type      string  `json:"type"`
	Audio     []int16 `json:"audio"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

type ClientStopMic struct {
	Type string `json:"type"`
}

type ClientInterrupt struct {
	Type string `json:"type"`
}

type ClientTextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerConnectionStatus struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	HasAPIKey bool   `json:"hasApiKey"`
}

type ServerGeminiStatus struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Model     string `json:"model"`
}

type ServerMicStatus struct {
	Type    string `json:"type"`
	Started bool   `json:"started"`
}

type ServerInterruptAck struct {
	Type        string `json:"type"`
	Interrupted bool   `json:"interrupted"`
}

type ServerUserMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerAIResponse struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func ConnectionStatus(hasAPIKey bool) ServerConnectionStatus {
	return ServerConnectionStatus{Type: TypeConnectionStatus, Connected: true, HasAPIKey: hasAPIKey}
}

func GeminiStatus(connected bool, model string) ServerGeminiStatus {
	return ServerGeminiStatus{Type: TypeGeminiStatus, Connected: connected, Model: model}
}

func MicStatus(started bool) ServerMicStatus {
	return ServerMicStatus{Type: TypeMicStatus, Started: started}
}

func InterruptAck() ServerInterruptAck {
	return ServerInterruptAck{Type: TypeInterruptAck, Interrupted: true}
}

func UserMessage(text string) ServerUserMessage {
	return ServerUserMessage{Type: TypeUserMessage, Text: text}
}

func AIResponse(text string) ServerAIResponse {
	return ServerAIResponse{Type: TypeAIResponse, Text: text}
}

func Error(message string) ServerError {
	return ServerError{Type: TypeError, Message: message}
}

// DecodeClientMessage parses one text frame into a Client* value.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeStartMic:
		var msg ClientStartMic
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start_mic", "")
		}
		msg.LanguageCode = strings.TrimSpace(msg.LanguageCode)
		return msg, nil
	case TypeAudioData:
		var msg ClientAudioData
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_data", "audio")
		}
		return msg, nil
	case TypeStopMic:
		return ClientStopMic{Type: typ}, nil
	case TypeInterrupt:
		return ClientInterrupt{Type: typ}, nil
	case TypeTextMessage:
		var msg ClientTextMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text_message", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("text_message.text is required", "text")
		}
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}
