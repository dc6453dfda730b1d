package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(homeDir(), ".voxbrief", "config.json")
}

// DataDir returns the voxbrief data directory, creating it.
func DataDir() string {
	dir := expandHome("~/.voxbrief")
	os.MkdirAll(dir, 0o755)
	return dir
}

// LogPath returns the file the terminal UI writes logs to.
func LogPath() string {
	return filepath.Join(DataDir(), "voxbrief.log")
}

// Load reads .env, the default config file and the environment.
func Load() (*Config, error) {
	LoadDotEnv()
	return LoadFrom(ConfigPath())
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", filepath.Join(homeDir(), ".voxbrief", ".env")}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("loading env file", "path", p, "err", err)
		}
	}
}

// LoadFrom reads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides and validates.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		for _, f := range CheckUnknownFields(raw) {
			slog.Warn("unknown config field ignored", "field", f.String())
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("apply config: %w", err)
		}
	}

	applyDefaults(cfg)
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	d := DefaultConfig()
	if cfg.Channels.Discord.Intents == 0 {
		cfg.Channels.Discord.Intents = d.Channels.Discord.Intents
	}
	t := &cfg.Transcription
	if t.Backend == "" {
		t.Backend = d.Transcription.Backend
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = d.Transcription.TimeoutSeconds
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = d.Transcription.MaxAttempts
	}
	if t.PauseThresholdMs == 0 {
		t.PauseThresholdMs = d.Transcription.PauseThresholdMs
	}
	if t.Google.LanguageCode == "" {
		t.Google.LanguageCode = d.Transcription.Google.LanguageCode
	}
	if t.Google.MaxSpeakers == 0 {
		t.Google.MaxSpeakers = d.Transcription.Google.MaxSpeakers
	}
	p := &cfg.Processing
	if p.MaxTokens == 0 {
		p.MaxTokens = d.Processing.MaxTokens
	}
	if p.MaxTextLength == 0 {
		p.MaxTextLength = d.Processing.MaxTextLength
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = d.Processing.TimeoutSeconds
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.Processing.MaxAttempts
	}
	if cfg.Audio.MaxSizeMB == 0 {
		cfg.Audio.MaxSizeMB = d.Audio.MaxSizeMB
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = d.Session.TTLMinutes
	}
	if cfg.Session.SweepSeconds == 0 {
		cfg.Session.SweepSeconds = d.Session.SweepSeconds
	}
	if cfg.Reply.ChunkLimit == 0 {
		cfg.Reply.ChunkLimit = d.Reply.ChunkLimit
	}
	if cfg.Events.Kafka.Topic == "" {
		cfg.Events.Kafka.Topic = d.Events.Kafka.Topic
	}
	if cfg.Events.Redis.Channel == "" {
		cfg.Events.Redis.Channel = d.Events.Redis.Channel
	}
	if cfg.Observability.Addr == "" {
		cfg.Observability.Addr = d.Observability.Addr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
}

// ApplyEnv overrides secrets and a few switches from the environment.
func ApplyEnv(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	token := ""
	setString(&token, "DISCORD_TOKEN", "BOT_TOKEN")
	if token != "" {
		cfg.Channels.Discord.Token = token
		cfg.Channels.Discord.Enabled = true
	}
	setString(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Transcription.Backend, "VOXBRIEF_STT_BACKEND")
	setString(&cfg.Transcription.Language, "VOXBRIEF_LANGUAGE")
	setString(&cfg.Processing.Model, "VOXBRIEF_MODEL")
	setString(&cfg.Log.Level, "VOXBRIEF_LOG_LEVEL")
	setString(&cfg.Observability.Addr, "VOXBRIEF_METRICS_ADDR")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.Kafka.Brokers = splitList(v)
		cfg.Events.Kafka.Enabled = true
	}
	setString(&cfg.Events.Kafka.Topic, "KAFKA_TOPIC")
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Events.Redis.Addr = v
		cfg.Events.Redis.Enabled = true
	}
	setString(&cfg.Events.Redis.Password, "REDIS_PASSWORD")
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Events.Redis.DB = v
	}
	if v, err := strconv.Atoi(os.Getenv("VOXBRIEF_MAX_AUDIO_MB")); err == nil && v > 0 {
		cfg.Audio.MaxSizeMB = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Save writes configuration to the default path.
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes configuration to a specific path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Upgrade reads the existing config file, deep-merges it on top of
// DefaultConfig (local values win), and saves the result.
// New fields from defaults are added; existing user values are preserved.
func Upgrade() (*Config, error) {
	return UpgradeAt(ConfigPath())
}

// UpgradeAt is Upgrade for a specific path.
func UpgradeAt(path string) (*Config, error) {
	defaultData, _ := json.Marshal(DefaultConfig())
	var defaultMap map[string]any
	json.Unmarshal(defaultData, &defaultMap)

	localData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var localMap map[string]any
	if err := json.Unmarshal(localData, &localMap); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	merged := deepMerge(defaultMap, localMap)

	cfg := DefaultConfig()
	reData, _ := json.Marshal(merged)
	if err := json.Unmarshal(reData, cfg); err != nil {
		return nil, fmt.Errorf("apply merged config: %w", err)
	}
	if err := SaveTo(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deepMerge recursively merges src into dst. Values from src take priority.
func deepMerge(dst, src map[string]any) map[string]any {
	result := make(map[string]any, len(dst))
	for k, v := range dst {
		result[k] = v
	}
	for k, srcVal := range src {
		dstVal, exists := result[k]
		if !exists {
			result[k] = srcVal
			continue
		}
		dstMap, dstOK := dstVal.(map[string]any)
		srcMap, srcOK := srcVal.(map[string]any)
		if dstOK && srcOK {
			result[k] = deepMerge(dstMap, srcMap)
		} else {
			result[k] = srcVal
		}
	}
	return result
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return home
}
