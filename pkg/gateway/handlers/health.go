package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/voice-relay/pkg/gateway/config"
	"github.com/vango-go/voice-relay/pkg/gateway/lifecycle"
	"github.com/vango-go/voice-relay/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether new voice sessions should be routed here. A missing
// API key is reported but does not fail readiness: sessions still connect and
// degrade to apology replies.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool     `json:"ok"`
		Draining    bool     `json:"draining"`
		HasAPIKey   bool     `json:"has_api_key"`
		Backend     string   `json:"backend"`
		Model       string   `json:"model"`
		Sessions    int      `json:"sessions"`
		MaxSessions int      `json:"max_sessions"`
		Issues      []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)
	if err := h.Config.Validate(); err != nil {
		issues = append(issues, err.Error())
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	switch {
	case draining:
		status = http.StatusServiceUnavailable
	case !ok:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:          ok,
		Draining:    draining,
		HasAPIKey:   h.Config.HasAPIKey(),
		Backend:     string(h.Config.GeminiBackend),
		Model:       h.Config.GeminiModel,
		Sessions:    h.Sessions.Count(),
		MaxSessions: h.Sessions.Limit(),
		Issues:      issues,
	})
}
