package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/core/providers/gemini"
	"github.com/vango-go/voice-relay/pkg/core/providers/gemini_sdk"
	"github.com/vango-go/voice-relay/pkg/gateway/config"
	"github.com/vango-go/voice-relay/pkg/gateway/handlers"
	"github.com/vango-go/voice-relay/pkg/gateway/lifecycle"
	"github.com/vango-go/voice-relay/pkg/gateway/live/sessions"
	"github.com/vango-go/voice-relay/pkg/gateway/metrics"
	"github.com/vango-go/voice-relay/pkg/gateway/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	generator  core.Generator
	metrics    *metrics.Metrics
	sessions   *sessions.Tracker
	lifecycle  *lifecycle.Lifecycle
}

// Option overrides a collaborator New would otherwise build from cfg.
type Option func(*Server)

// WithGenerator replaces the Gemini backend.
func WithGenerator(g core.Generator) Option {
	return func(s *Server) { s.generator = g }
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		httpClient: httpClient,
		sessions:   sessions.NewTracker(cfg.MaxSessions),
		lifecycle:  &lifecycle.Lifecycle{},
	}
	if cfg.MetricsEnabled {
		s.metrics = metrics.New(cfg.MetricsNamespace)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.generator == nil {
		s.generator = newGenerator(cfg, httpClient)
	}

	s.routes()
	return s
}

// newGenerator picks the Gemini backend. Both speak the same generateContent API; the
// SDK expects its base URL without the version segment.
func newGenerator(cfg config.Config, httpClient *http.Client) core.Generator {
	switch cfg.GeminiBackend {
	case config.GeminiBackendSDK:
		opts := []gemini_sdk.Option{
			gemini_sdk.WithModel(cfg.GeminiModel),
			gemini_sdk.WithMaxOutputTokens(cfg.GeminiMaxOutputTokens),
			gemini_sdk.WithHTTPClient(httpClient),
		}
		if base := strings.TrimRight(cfg.GeminiBaseURL, "/"); base != "" && base != gemini.DefaultBaseURL {
			opts = append(opts, gemini_sdk.WithBaseURL(strings.TrimSuffix(base, "/v1beta")+"/"))
		}
		return gemini_sdk.New(cfg.GeminiAPIKey, opts...)
	default:
		return gemini.New(cfg.GeminiAPIKey,
			gemini.WithBaseURL(cfg.GeminiBaseURL),
			gemini.WithModel(cfg.GeminiModel),
			gemini.WithMaxOutputTokens(cfg.GeminiMaxOutputTokens),
			gemini.WithHTTPClient(httpClient),
		)
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	s.mux.Handle("/ws", handlers.VoiceHandler{
		Config:    s.cfg,
		Generator: s.generator,
		Logger:    s.logger,
		Metrics:   s.metrics,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})

	s.mux.Handle("/", handlers.StaticHandler{Dir: s.cfg.StaticDir})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) Generator() core.Generator { return s.generator }

func (s *Server) Sessions() *sessions.Tracker { return s.sessions }

func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.lifecycle }

// SetDraining stops admitting new voice sessions and flips /readyz to 503.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// NotifySessions tells every connected browser the server is going away.
func (s *Server) NotifySessions(message string) int {
	return s.sessions.NotifyAll(message)
}

// WaitSessions blocks until every voice session has closed or ctx ends.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// CancelSessions force-closes the remaining voice sessions.
func (s *Server) CancelSessions() int {
	return s.sessions.CancelAll()
}
