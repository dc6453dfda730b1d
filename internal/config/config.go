package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration for voxbrief.
type Config struct {
	Channels      ChannelsConfig      `json:"channels"`
	Providers     ProvidersConfig     `json:"providers"`
	Transcription TranscriptionConfig `json:"transcription"`
	Processing    ProcessingConfig    `json:"processing"`
	Audio         AudioConfig         `json:"audio"`
	Session       SessionConfig       `json:"session"`
	Reply         ReplyConfig         `json:"reply"`
	Events        EventsConfig        `json:"events"`
	Observability ObservabilityConfig `json:"observability"`
	Log           LogConfig           `json:"log"`
}

// ChannelsConfig holds all channel configurations.
type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

// DiscordConfig holds Discord channel settings.
type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Intents   int      `json:"intents"`
}

// ProvidersConfig holds completion provider credentials.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Anthropic  ProviderConfig `json:"anthropic"`
}

// ProviderConfig holds a single provider's credentials.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
}

// TranscriptionConfig selects and tunes the speech-to-text backend.
type TranscriptionConfig struct {
	Backend          string          `json:"backend"` // openai | google
	Model            string          `json:"model"`
	Language         string          `json:"language"` // "" = auto-detect
	Prompt           string          `json:"prompt"`
	TimeoutSeconds   int             `json:"timeoutSeconds"`
	MaxAttempts      int             `json:"maxAttempts"`
	BackoffMs        int             `json:"backoffMs"`
	PauseThresholdMs int             `json:"pauseThresholdMs"`
	Google           GoogleSTTConfig `json:"google"`
}

// GoogleSTTConfig holds Google Cloud Speech-to-Text settings. Credentials
// come from Application Default Credentials.
type GoogleSTTConfig struct {
	LanguageCode string `json:"languageCode"`
	MaxSpeakers  int    `json:"maxSpeakers"`
}

// ProcessingConfig tunes the summary and tasks completions.
type ProcessingConfig struct {
	Provider         string  `json:"provider"` // openrouter | openai | anthropic
	Model            string  `json:"model"`
	FallbackProvider string  `json:"fallbackProvider"`
	FallbackModel    string  `json:"fallbackModel"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"maxTokens"`
	MaxTextLength    int     `json:"maxTextLength"`
	TimeoutSeconds   int     `json:"timeoutSeconds"`
	MaxAttempts      int     `json:"maxAttempts"`
	BackoffMs        int     `json:"backoffMs"`
	Referer          string  `json:"referer,omitempty"`
	Title            string  `json:"title,omitempty"`
}

// AudioConfig limits accepted audio.
type AudioConfig struct {
	MaxSizeMB      int      `json:"maxSizeMb"`
	AllowedFormats []string `json:"allowedFormats"`
}

// SessionConfig controls transcript retention.
type SessionConfig struct {
	TTLMinutes   int `json:"ttlMinutes"`
	SweepSeconds int `json:"sweepSeconds"`
}

// ReplyConfig controls outgoing messages.
type ReplyConfig struct {
	ChunkLimit int `json:"chunkLimit"`
}

// EventsConfig holds the domain event sinks. Both disabled means log only.
type EventsConfig struct {
	Kafka KafkaConfig `json:"kafka"`
	Redis RedisConfig `json:"redis"`
}

// KafkaConfig holds Kafka sink settings.
type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// RedisConfig holds Redis pub/sub sink settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// ObservabilityConfig holds the health and metrics HTTP server settings.
type ObservabilityConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Intents: 37377,
			},
		},
		Transcription: TranscriptionConfig{
			Backend:          "openai",
			Model:            "whisper-1",
			TimeoutSeconds:   60,
			MaxAttempts:      2,
			BackoffMs:        1000,
			PauseThresholdMs: 2000,
			Google: GoogleSTTConfig{
				LanguageCode: "en-US",
				MaxSpeakers:  6,
			},
		},
		Processing: ProcessingConfig{
			Provider:         "openrouter",
			Model:            "openai/gpt-4o-mini",
			FallbackProvider: "openai",
			FallbackModel:    "gpt-4o-mini",
			Temperature:      0.3,
			MaxTokens:        2000,
			MaxTextLength:    4000,
			TimeoutSeconds:   60,
			MaxAttempts:      2,
			BackoffMs:        1000,
			Title:            "voxbrief",
		},
		Audio: AudioConfig{
			MaxSizeMB:      20,
			AllowedFormats: []string{"ogg", "mp3", "wav"},
		},
		Session: SessionConfig{
			TTLMinutes:   60,
			SweepSeconds: 60,
		},
		Reply: ReplyConfig{
			ChunkLimit: 2000,
		},
		Events: EventsConfig{
			Kafka: KafkaConfig{Topic: "voxbrief.events"},
			Redis: RedisConfig{Addr: "localhost:6379", Channel: "voxbrief:events"},
		},
		Observability: ObservabilityConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ProviderMatch holds a matched provider config and its name.
type ProviderMatch struct {
	Name   string
	Config *ProviderConfig
}

// GetProvider returns the provider named name when it has an API key. An
// empty name matches by model keyword, then falls back to the first
// provider with a key.
func (c *Config) GetProvider(name, model string) *ProviderMatch {
	providers := []struct {
		name     string
		keywords []string
		config   *ProviderConfig
	}{
		{"openrouter", []string{"/"}, &c.Providers.OpenRouter},
		{"anthropic", []string{"claude"}, &c.Providers.Anthropic},
		{"openai", []string{"gpt", "o1", "o3"}, &c.Providers.OpenAI},
	}

	if name != "" {
		for _, p := range providers {
			if p.name == name && p.config.APIKey != "" {
				return &ProviderMatch{Name: p.name, Config: p.config}
			}
		}
		return nil
	}

	for _, p := range providers {
		for _, kw := range p.keywords {
			if containsIgnoreCase(model, kw) && p.config.APIKey != "" {
				return &ProviderMatch{Name: p.name, Config: p.config}
			}
		}
	}

	for _, p := range providers {
		if p.config.APIKey != "" {
			return &ProviderMatch{Name: p.name, Config: p.config}
		}
	}
	return nil
}

// Duration helpers.

func (t TranscriptionConfig) Timeout() time.Duration { return seconds(t.TimeoutSeconds) }
func (t TranscriptionConfig) Backoff() time.Duration { return millis(t.BackoffMs) }
func (t TranscriptionConfig) PauseThreshold() time.Duration {
	return millis(t.PauseThresholdMs)
}
func (p ProcessingConfig) Timeout() time.Duration { return seconds(p.TimeoutSeconds) }
func (p ProcessingConfig) Backoff() time.Duration { return millis(p.BackoffMs) }
func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLMinutes) * time.Minute }
func (s SessionConfig) Sweep() time.Duration { return seconds(s.SweepSeconds) }

// MaxBytes returns the audio size ceiling in bytes.
func (a AudioConfig) MaxBytes() int64 { return int64(a.MaxSizeMB) << 20 }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		home := homeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
