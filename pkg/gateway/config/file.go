package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// fileConfig is the on-disk shape of VOICE_RELAY_CONFIG_FILE. Unset fields keep defaults.
type fileConfig struct {
	Addr   string `json:"addr" yaml:"addr"`
	Gemini struct {
		APIKey          string `json:"api_key" yaml:"api_key"`
		Model           string `json:"model" yaml:"model"`
		BaseURL         string `json:"base_url" yaml:"base_url"`
		Backend         string `json:"backend" yaml:"backend"`
		MaxOutputTokens int    `json:"max_output_tokens" yaml:"max_output_tokens"`
	} `json:"gemini" yaml:"gemini"`
	SystemInstruction string `json:"system_instruction" yaml:"system_instruction"`
	Session           struct {
		DefaultLanguage    string `json:"default_language" yaml:"default_language"`
		HistoryTurns       int    `json:"history_turns" yaml:"history_turns"`
		SampleRate         int    `json:"sample_rate" yaml:"sample_rate"`
		MaxBufferedSamples int    `json:"max_buffered_samples" yaml:"max_buffered_samples"`
		GenerationTimeout  string `json:"generation_timeout" yaml:"generation_timeout"`
	} `json:"session" yaml:"session"`
	StaticDir   string   `json:"static_dir" yaml:"static_dir"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
	MaxSessions *int     `json:"max_sessions" yaml:"max_sessions"`
	Metrics     struct {
		Enabled   *bool  `json:"enabled" yaml:"enabled"`
		Namespace string `json:"namespace" yaml:"namespace"`
	} `json:"metrics" yaml:"metrics"`
	Log struct {
		Format string `json:"format" yaml:"format"`
		Level  string `json:"level" yaml:"level"`
	} `json:"log" yaml:"log"`
}

// applyFile overlays a YAML or JSON file onto cfg.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse json config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	}

	setString(&cfg.Addr, fc.Addr)
	setString(&cfg.GeminiAPIKey, fc.Gemini.APIKey)
	setString(&cfg.GeminiModel, fc.Gemini.Model)
	setString(&cfg.GeminiBaseURL, fc.Gemini.BaseURL)
	if b := strings.TrimSpace(fc.Gemini.Backend); b != "" {
		cfg.GeminiBackend = GeminiBackend(strings.ToLower(b))
	}
	setInt(&cfg.GeminiMaxOutputTokens, fc.Gemini.MaxOutputTokens)
	setString(&cfg.SystemInstruction, fc.SystemInstruction)
	setString(&cfg.DefaultLanguage, fc.Session.DefaultLanguage)
	setInt(&cfg.HistoryTurns, fc.Session.HistoryTurns)
	setInt(&cfg.SampleRate, fc.Session.SampleRate)
	setInt(&cfg.MaxBufferedSamples, fc.Session.MaxBufferedSamples)
	if raw := strings.TrimSpace(fc.Session.GenerationTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("session.generation_timeout: %w", err)
		}
		cfg.GenerationTimeout = d
	}
	setString(&cfg.StaticDir, fc.StaticDir)
	if len(fc.CORSOrigins) > 0 {
		cfg.CORSAllowedOrigins = make(map[string]struct{}, len(fc.CORSOrigins))
		for _, origin := range fc.CORSOrigins {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSAllowedOrigins[origin] = struct{}{}
			}
		}
	}
	if fc.MaxSessions != nil {
		cfg.MaxSessions = *fc.MaxSessions
	}
	if fc.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *fc.Metrics.Enabled
	}
	setString(&cfg.MetricsNamespace, fc.Metrics.Namespace)
	setString(&cfg.LogFormat, strings.ToLower(fc.Log.Format))
	setString(&cfg.LogLevel, strings.ToLower(fc.Log.Level))
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
