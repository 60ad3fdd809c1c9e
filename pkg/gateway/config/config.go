package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "VOICE_RELAY_"

type GeminiBackend string

const (
	GeminiBackendREST GeminiBackend = "rest"
	GeminiBackendSDK  GeminiBackend = "sdk"
)

const defaultSystemInstruction = "You are a friendly voice assistant. Answer conversationally in short plain sentences that read well aloud. Do not use markdown, lists, or emoji."

type Config struct {
	Addr string

	// Generation backend.
	GeminiAPIKey          string
	GeminiModel           string
	GeminiBaseURL         string
	GeminiBackend         GeminiBackend
	GeminiMaxOutputTokens int
	SystemInstruction     string

	// Session behavior.
	DefaultLanguage    string
	HistoryTurns       int
	SampleRate         int
	MaxBufferedSamples int
	GenerationTimeout  time.Duration // 0 => rely on the upstream call
	OutboundQueueSize  int

	// Browser UI
	StaticDir          string
	CORSAllowedOrigins map[string]struct{} // empty => same-origin only

	// WebSocket transport (/ws).
	MaxSessions          int // 0 => unlimited
	MaxMessageBytes      int64
	MaxInboundSampleRate int // samples/s per session; 0 => unlimited
	InboundBurstSeconds  int
	WSPingInterval       time.Duration
	WSWriteTimeout       time.Duration
	WSReadTimeout        time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration

	MetricsEnabled   bool
	MetricsNamespace string
	LogFormat        string
	LogLevel         string
}

// Defaults returns the built-in configuration before any file or env overrides.
func Defaults() Config {
	return Config{
		Addr:                          ":8080",
		GeminiModel:                   "gemini-2.0-flash",
		GeminiBaseURL:                 "https://generativelanguage.googleapis.com/v1beta",
		GeminiBackend:                 GeminiBackendREST,
		SystemInstruction:             defaultSystemInstruction,
		DefaultLanguage:               "en-US",
		HistoryTurns:                  10,
		SampleRate:                    16000,
		MaxBufferedSamples:            16000 * 120,
		OutboundQueueSize:             128,
		CORSAllowedOrigins:            make(map[string]struct{}),
		MaxSessions:                   256,
		MaxMessageBytes:               1 << 20,
		MaxInboundSampleRate:          16000 * 4,
		InboundBurstSeconds:           2,
		WSPingInterval:                20 * time.Second,
		WSWriteTimeout:                5 * time.Second,
		ReadHeaderTimeout:             10 * time.Second,
		ShutdownGracePeriod:           30 * time.Second,
		UpstreamConnectTimeout:        5 * time.Second,
		UpstreamResponseHeaderTimeout: 60 * time.Second,
		MetricsEnabled:                true,
		MetricsNamespace:              "voice_relay",
		LogFormat:                     "text",
		LogLevel:                      "info",
	}
}

// LoadFromEnv builds the configuration from defaults, then the optional file named by
// VOICE_RELAY_CONFIG_FILE, then VOICE_RELAY_* environment variables.
func LoadFromEnv() (Config, error) {
	base := Defaults()
	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG_FILE")); path != "" {
		if err := applyFile(&base, path); err != nil {
			return Config{}, err
		}
	}

	apiKey := envOr(envPrefix+"GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = envOr("GEMINI_API_KEY", base.GeminiAPIKey)
	}

	cfg := Config{
		Addr:                          envOr(envPrefix+"ADDR", base.Addr),
		GeminiAPIKey:                  apiKey,
		GeminiModel:                   envOr(envPrefix+"GEMINI_MODEL", base.GeminiModel),
		GeminiBaseURL:                 envOr(envPrefix+"GEMINI_BASE_URL", base.GeminiBaseURL),
		GeminiBackend:                 GeminiBackend(strings.ToLower(envOr(envPrefix+"GEMINI_BACKEND", string(base.GeminiBackend)))),
		GeminiMaxOutputTokens:         envIntOr(envPrefix+"GEMINI_MAX_OUTPUT_TOKENS", base.GeminiMaxOutputTokens),
		SystemInstruction:             envOr(envPrefix+"SYSTEM_INSTRUCTION", base.SystemInstruction),
		DefaultLanguage:               envOr(envPrefix+"DEFAULT_LANGUAGE", base.DefaultLanguage),
		HistoryTurns:                  envIntOr(envPrefix+"HISTORY_TURNS", base.HistoryTurns),
		SampleRate:                    envIntOr(envPrefix+"SAMPLE_RATE", base.SampleRate),
		MaxBufferedSamples:            envIntOr(envPrefix+"MAX_BUFFERED_SAMPLES", base.MaxBufferedSamples),
		GenerationTimeout:             envDurationOr(envPrefix+"GENERATION_TIMEOUT", base.GenerationTimeout),
		OutboundQueueSize:             envIntOr(envPrefix+"OUTBOUND_QUEUE_SIZE", base.OutboundQueueSize),
		StaticDir:                     envOr(envPrefix+"STATIC_DIR", base.StaticDir),
		CORSAllowedOrigins:            make(map[string]struct{}),
		MaxSessions:                   envIntOr(envPrefix+"MAX_SESSIONS", base.MaxSessions),
		MaxMessageBytes:               envInt64Or(envPrefix+"MAX_MESSAGE_BYTES", base.MaxMessageBytes),
		MaxInboundSampleRate:          envIntOr(envPrefix+"MAX_INBOUND_SAMPLE_RATE", base.MaxInboundSampleRate),
		InboundBurstSeconds:           envIntOr(envPrefix+"INBOUND_BURST_SECONDS", base.InboundBurstSeconds),
		WSPingInterval:                envDurationOr(envPrefix+"WS_PING_INTERVAL", base.WSPingInterval),
		WSWriteTimeout:                envDurationOr(envPrefix+"WS_WRITE_TIMEOUT", base.WSWriteTimeout),
		WSReadTimeout:                 envDurationOr(envPrefix+"WS_READ_TIMEOUT", base.WSReadTimeout),
		ReadHeaderTimeout:             envDurationOr(envPrefix+"READ_HEADER_TIMEOUT", base.ReadHeaderTimeout),
		ShutdownGracePeriod:           envDurationOr(envPrefix+"SHUTDOWN_GRACE_PERIOD", base.ShutdownGracePeriod),
		UpstreamConnectTimeout:        envDurationOr(envPrefix+"CONNECT_TIMEOUT", base.UpstreamConnectTimeout),
		UpstreamResponseHeaderTimeout: envDurationOr(envPrefix+"RESPONSE_HEADER_TIMEOUT", base.UpstreamResponseHeaderTimeout),
		MetricsEnabled:                envBoolOr(envPrefix+"METRICS_ENABLED", base.MetricsEnabled),
		MetricsNamespace:              envOr(envPrefix+"METRICS_NAMESPACE", base.MetricsNamespace),
		LogFormat:                     strings.ToLower(envOr(envPrefix+"LOG_FORMAT", base.LogFormat)),
		LogLevel:                      strings.ToLower(envOr(envPrefix+"LOG_LEVEL", base.LogLevel)),
	}

	origins := splitCSV(os.Getenv(envPrefix + "CORS_ORIGINS"))
	if origins == nil {
		for origin := range base.CORSAllowedOrigins {
			origins = append(origins, origin)
		}
	}
	for _, origin := range origins {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Errors name the env var that controls the field.
func (cfg Config) Validate() error {
	switch cfg.GeminiBackend {
	case GeminiBackendREST, GeminiBackendSDK:
	default:
		return fmt.Errorf("VOICE_RELAY_GEMINI_BACKEND must be one of rest|sdk")
	}
	if strings.TrimSpace(cfg.GeminiModel) == "" {
		return fmt.Errorf("VOICE_RELAY_GEMINI_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.GeminiBaseURL) == "" {
		return fmt.Errorf("VOICE_RELAY_GEMINI_BASE_URL must not be empty")
	}
	if cfg.GeminiMaxOutputTokens < 0 {
		return fmt.Errorf("VOICE_RELAY_GEMINI_MAX_OUTPUT_TOKENS must be >= 0")
	}
	if strings.TrimSpace(cfg.DefaultLanguage) == "" {
		return fmt.Errorf("VOICE_RELAY_DEFAULT_LANGUAGE must not be empty")
	}
	if cfg.HistoryTurns <= 0 {
		return fmt.Errorf("VOICE_RELAY_HISTORY_TURNS must be > 0")
	}
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("VOICE_RELAY_SAMPLE_RATE must be > 0")
	}
	if cfg.MaxBufferedSamples <= 0 {
		return fmt.Errorf("VOICE_RELAY_MAX_BUFFERED_SAMPLES must be > 0")
	}
	if cfg.GenerationTimeout < 0 {
		return fmt.Errorf("VOICE_RELAY_GENERATION_TIMEOUT must be >= 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return fmt.Errorf("VOICE_RELAY_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.StaticDir != "" {
		info, err := os.Stat(cfg.StaticDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("VOICE_RELAY_STATIC_DIR must be an existing directory")
		}
	}
	if cfg.MaxSessions < 0 {
		return fmt.Errorf("VOICE_RELAY_MAX_SESSIONS must be >= 0")
	}
	if cfg.MaxMessageBytes <= 0 {
		return fmt.Errorf("VOICE_RELAY_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.MaxInboundSampleRate < 0 {
		return fmt.Errorf("VOICE_RELAY_MAX_INBOUND_SAMPLE_RATE must be >= 0")
	}
	if cfg.MaxInboundSampleRate > 0 && cfg.MaxInboundSampleRate < cfg.SampleRate {
		return fmt.Errorf("VOICE_RELAY_MAX_INBOUND_SAMPLE_RATE must be 0 or at least VOICE_RELAY_SAMPLE_RATE")
	}
	if cfg.MaxInboundSampleRate > 0 && cfg.InboundBurstSeconds < 1 {
		return fmt.Errorf("VOICE_RELAY_INBOUND_BURST_SECONDS must be >= 1 when the inbound limit is enabled")
	}
	if cfg.WSPingInterval <= 0 {
		return fmt.Errorf("VOICE_RELAY_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return fmt.Errorf("VOICE_RELAY_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return fmt.Errorf("VOICE_RELAY_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("VOICE_RELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("VOICE_RELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return fmt.Errorf("VOICE_RELAY_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return fmt.Errorf("VOICE_RELAY_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	if cfg.MetricsEnabled && strings.TrimSpace(cfg.MetricsNamespace) == "" {
		return fmt.Errorf("VOICE_RELAY_METRICS_NAMESPACE must not be empty when metrics are enabled")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("VOICE_RELAY_LOG_FORMAT must be one of text|json")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("VOICE_RELAY_LOG_LEVEL must be one of debug|info|warn|error")
	}
	return nil
}

// HasAPIKey reports whether a Gemini credential is configured.
func (cfg Config) HasAPIKey() bool {
	return strings.TrimSpace(cfg.GeminiAPIKey) != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
