package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/gateway/apierror"
	"github.com/vango-go/voice-relay/pkg/gateway/config"
	"github.com/vango-go/voice-relay/pkg/gateway/lifecycle"
	"github.com/vango-go/voice-relay/pkg/gateway/live/protocol"
	"github.com/vango-go/voice-relay/pkg/gateway/live/session"
	"github.com/vango-go/voice-relay/pkg/gateway/live/sessions"
	"github.com/vango-go/voice-relay/pkg/gateway/metrics"
	"github.com/vango-go/voice-relay/pkg/gateway/mw"
)

// VoiceHandler handles /ws voice sessions.
type VoiceHandler struct {
	Config    config.Config
	Generator core.Generator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		apierror.Write(w, http.StatusMethodNotAllowed, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed", RequestID: reqID})
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		h.Metrics.RecordSessionRejected("draining")
		apierror.WriteError(w, &core.Error{Type: core.ErrOverloaded, Message: "server is draining", Code: "draining"}, reqID)
		return
	}
	if !h.originAllowed(r) {
		h.Metrics.RecordSessionRejected("origin")
		apierror.WriteError(w, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, reqID)
		return
	}
	if limit := h.Sessions.Limit(); limit > 0 && h.Sessions.Count() >= limit {
		h.Metrics.RecordSessionRejected("capacity")
		apierror.WriteError(w, &core.Error{Type: core.ErrOverloaded, Message: "too many voice sessions", Code: "at_capacity"}, reqID)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := "s_" + uuid.NewString()
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Generator: h.Generator,
		Metrics:   h.Metrics,
		SessionID: sessionID,
		RequestID: reqID,
		Config: session.Config{
			MaxMessageBytes:      h.Config.MaxMessageBytes,
			MaxInboundSampleRate: h.Config.MaxInboundSampleRate,
			InboundBurstSeconds:  h.Config.InboundBurstSeconds,
			PingInterval:         h.Config.WSPingInterval,
			WriteTimeout:         h.Config.WSWriteTimeout,
			ReadTimeout:          h.Config.WSReadTimeout,
			GenerationTimeout:    h.Config.GenerationTimeout,
			OutboundQueueSize:    h.Config.OutboundQueueSize,
			HistoryTurns:         h.Config.HistoryTurns,
			DefaultLanguage:      h.Config.DefaultLanguage,
			SampleRate:           h.Config.SampleRate,
			MaxBufferedSamples:   h.Config.MaxBufferedSamples,
			SystemInstruction:    h.Config.SystemInstruction,
		},
	})
	if err != nil {
		h.closeWithError(conn, websocket.CloseInternalServerErr, "failed to initialize voice session")
		return
	}

	unregister, err := h.Sessions.TryRegister(sessionID, sessions.Handle{
		Cancel: s.Cancel,
		Notify: s.Notify,
	})
	if err != nil {
		// Lost the race for the last slot between the capacity check and the upgrade.
		h.Metrics.RecordSessionRejected("capacity")
		h.closeWithError(conn, websocket.CloseTryAgainLater, "too many voice sessions")
		return
	}
	defer unregister()

	start := time.Now()
	h.Metrics.RecordSessionStart()
	logger.Info("voice session started", "session_id", sessionID, "request_id", reqID, "remote_addr", r.RemoteAddr)

	status := "ok"
	if err := s.Run(); err != nil {
		status = "error"
		logger.Warn("voice session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
	}
	h.Metrics.RecordSessionEnd(status, time.Since(start))
	logger.Info("voice session closed", "session_id", sessionID, "duration_ms", time.Since(start).Milliseconds())
}

// originAllowed admits requests without an Origin header, same-origin pages, and
// anything on the configured allow-list.
func (h VoiceHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if _, ok := h.Config.CORSAllowedOrigins[origin]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (h VoiceHandler) closeWithError(conn *websocket.Conn, code int, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(protocol.Error(message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, message), time.Now().Add(time.Second))
}
