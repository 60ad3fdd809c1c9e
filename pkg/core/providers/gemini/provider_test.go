package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/core/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", WithBaseURL(srv.URL), WithModel("gemini-test"), WithHTTPClient(srv.Client()))
}

func TestGenerate_PostsContentsAndParsesText(t *testing.T) {
	var captured map[string]any
	var path, apiKey string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello there"}]},"finishReason":"STOP"}]}`))
	})

	resp, err := p.Generate(context.Background(), &types.GenerateRequest{
		System:  "be brief",
		History: []types.Turn{types.UserTurn("hi"), types.ModelTurn("hey")},
		Text:    "how are you",
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("text=%q", resp.Text)
	}
	if resp.FinishReason != "STOP" {
		t.Fatalf("finish=%q", resp.FinishReason)
	}
	if path != "/models/gemini-test:generateContent" {
		t.Fatalf("path=%q", path)
	}
	if apiKey != "test-key" {
		t.Fatalf("api key header=%q", apiKey)
	}

	sys := captured["system_instruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"]
	if sys != "be brief" {
		t.Fatalf("system_instruction=%v", sys)
	}
	contents := captured["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("contents len=%d, want 3", len(contents))
	}
	if role := contents[1].(map[string]any)["role"]; role != "model" {
		t.Fatalf("contents[1].role=%v", role)
	}
	last := contents[2].(map[string]any)
	if last["role"] != "user" {
		t.Fatalf("last role=%v", last["role"])
	}
}

func TestGenerate_InlinesAudioAsBase64(t *testing.T) {
	clip := []byte("RIFF....WAVEfmt ")
	var gotPart map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		contents := body["contents"].([]any)
		parts := contents[len(contents)-1].(map[string]any)["parts"].([]any)
		gotPart = parts[len(parts)-1].(map[string]any)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"transcript"}]}}]}`))
	})

	_, err := p.Generate(context.Background(), &types.GenerateRequest{
		Text:  "Transcribe this audio.",
		Audio: &types.InlineData{MIMEType: "audio/wav", Data: clip},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	inline, ok := gotPart["inline_data"].(map[string]any)
	if !ok {
		t.Fatalf("missing inline_data part: %v", gotPart)
	}
	if inline["mime_type"] != "audio/wav" {
		t.Fatalf("mime_type=%v", inline["mime_type"])
	}
	if inline["data"] != base64.StdEncoding.EncodeToString(clip) {
		t.Fatalf("data=%v", inline["data"])
	}
}

func TestGenerate_NonSuccessStatusIsError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := p.Generate(context.Background(), &types.GenerateRequest{Text: "hi"})
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		t.Fatalf("err=%T %v, want *core.Error", err, err)
	}
	if coreErr.Type != core.ErrRateLimit || coreErr.StatusCode != 429 {
		t.Fatalf("err=%+v", coreErr)
	}
}

func TestGenerate_UnparseableErrorBodyUsesStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := p.Generate(context.Background(), &types.GenerateRequest{Text: "hi"})
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		t.Fatalf("err=%v", err)
	}
	if coreErr.Type != core.ErrAPI || coreErr.Message != "upstream down" {
		t.Fatalf("err=%+v", coreErr)
	}
}

func TestGenerate_UnexpectedShapeIsError(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"candidates":[]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`,
		"not json":      `<html>`,
		"blocked":       `{"promptFeedback":{"blockReason":"SAFETY"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			if _, err := p.Generate(context.Background(), &types.GenerateRequest{Text: "hi"}); err == nil {
				t.Fatalf("expected error for body %s", body)
			}
		})
	}
}

func TestGenerate_MissingKeyFailsWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	p := New("  ", WithBaseURL(srv.URL))
	if p.HasCredentials() {
		t.Fatalf("blank key should not count as credentials")
	}
	_, err := p.Generate(context.Background(), &types.GenerateRequest{Text: "hi"})
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrAuthentication {
		t.Fatalf("err=%v, want authentication error", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("server was called %d times", calls.Load())
	}
}

func TestGenerate_CancelReturnsContextError(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := p.Generate(ctx, &types.GenerateRequest{Text: "hi"})
	if !core.IsCanceled(err) {
		t.Fatalf("err=%v, want context cancellation", err)
	}
}

func TestBuildRequest_RejectsEmptyInputAndSkipsBlankHistory(t *testing.T) {
	if _, err := buildRequest(&types.GenerateRequest{}, 0); err == nil {
		t.Fatalf("expected error for empty input")
	}

	req, err := buildRequest(&types.GenerateRequest{
		History: []types.Turn{types.UserTurn("  "), types.ModelTurn("ok")},
		Text:    "next",
	}, 256)
	if err != nil {
		t.Fatalf("buildRequest() error: %v", err)
	}
	if len(req.Contents) != 2 {
		t.Fatalf("contents=%d, want 2", len(req.Contents))
	}
	if req.SystemInstruction != nil {
		t.Fatalf("blank system should be omitted")
	}
	if req.GenerationConfig == nil || req.GenerationConfig.MaxOutputTokens != 256 {
		t.Fatalf("generation config=%+v", req.GenerationConfig)
	}
	raw, _ := json.Marshal(req)
	if strings.Contains(string(raw), "inline_data") {
		t.Fatalf("text-only request should not carry inline_data: %s", raw)
	}
}

func TestStripProviderPrefix(t *testing.T) {
	if got := stripProviderPrefix("gemini/gemini-2.0-flash"); got != "gemini-2.0-flash" {
		t.Fatalf("got %q", got)
	}
	if got := stripProviderPrefix(" gemini-pro "); got != "gemini-pro" {
		t.Fatalf("got %q", got)
	}
}
