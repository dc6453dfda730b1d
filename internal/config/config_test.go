package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joebot/voxbrief/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DISCORD_TOKEN", "BOT_TOKEN", "OPENAI_API_KEY", "OPENROUTER_API_KEY", "ANTHROPIC_API_KEY",
		"VOXBRIEF_STT_BACKEND", "VOXBRIEF_LANGUAGE", "VOXBRIEF_MODEL", "VOXBRIEF_LOG_LEVEL",
		"VOXBRIEF_METRICS_ADDR", "KAFKA_BROKERS", "KAFKA_TOPIC", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "VOXBRIEF_MAX_AUDIO_MB",
	} {
		t.Setenv(k, "")
	}
}

func TestMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.MaxBytes() != 20<<20 {
		t.Errorf("max bytes = %d", cfg.Audio.MaxBytes())
	}
	if cfg.Session.TTL() != time.Hour {
		t.Errorf("ttl = %s", cfg.Session.TTL())
	}
	if cfg.Transcription.PauseThreshold() != 2*time.Second {
		t.Errorf("pause = %s", cfg.Transcription.PauseThreshold())
	}
	if cfg.Reply.ChunkLimit != 2000 || cfg.Processing.MaxTextLength != 4000 {
		t.Errorf("limits = %d/%d", cfg.Reply.ChunkLimit, cfg.Processing.MaxTextLength)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := config.DefaultConfig()
	cfg.Processing.Model = "anthropic/claude-3.5-haiku"
	cfg.Events.Kafka.Brokers = []string{"k1:9092"}

	tmp := filepath.Join(t.TempDir(), "config.json")
	if err := config.SaveTo(cfg, tmp); err != nil {
		t.Fatal(err)
	}
	saved, err := config.LoadFrom(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Processing.Model != cfg.Processing.Model || len(saved.Events.Kafka.Brokers) != 1 {
		t.Errorf("saved = %+v", saved.Processing)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	tmp := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(tmp, []byte(`{"reply":{"chunkLimit":4000},"session":{"ttlMinutes":5}}`), 0o644)
	cfg, err := config.LoadFrom(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Reply.ChunkLimit != 4000 || cfg.Session.TTL() != 5*time.Minute {
		t.Errorf("reply=%d ttl=%s", cfg.Reply.ChunkLimit, cfg.Session.TTL())
	}
	if cfg.Transcription.Backend != "openai" || cfg.Audio.MaxSizeMB != 20 {
		t.Errorf("defaults lost: %+v %+v", cfg.Transcription, cfg.Audio)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "discord-secret")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("VOXBRIEF_LOG_LEVEL", "debug")

	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Channels.Discord.Enabled || cfg.Channels.Discord.Token != "discord-secret" {
		t.Errorf("discord = %+v", cfg.Channels.Discord)
	}
	if got := cfg.Events.Kafka.Brokers; len(got) != 2 || got[1] != "b:9092" || !cfg.Events.Kafka.Enabled {
		t.Errorf("kafka = %+v", cfg.Events.Kafka)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
	if m := cfg.GetProvider("", cfg.Processing.Model); m == nil || m.Name != "openrouter" {
		t.Errorf("provider = %+v", m)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	os.WriteFile(env, []byte("OPENAI_API_KEY=from-file\nANTHROPIC_API_KEY=anthropic-file\n"), 0o644)
	t.Setenv("OPENAI_API_KEY", "from-env")
	os.Unsetenv("ANTHROPIC_API_KEY")

	config.LoadDotEnv(env, filepath.Join(dir, "missing.env"))
	if got := os.Getenv("OPENAI_API_KEY"); got != "from-env" {
		t.Errorf("OPENAI_API_KEY = %q", got)
	}
	if got := os.Getenv("ANTHROPIC_API_KEY"); got != "anthropic-file" {
		t.Errorf("ANTHROPIC_API_KEY = %q", got)
	}
}

func TestValidateRejectsInvalid(t *testing.T) {
	clearEnv(t)
	tmp := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(tmp, []byte(`{
		"transcription":{"backend":"carrier-pigeon"},
		"processing":{"temperature":3.5},
		"audio":{"allowedFormats":["flac"]},
		"channels":{"discord":{"enabled":true,"token":""}},
		"events":{"kafka":{"enabled":true}},
		"log":{"level":"loud"},
		"unknownField": true
	}`), 0o644)

	_, err := config.LoadFrom(tmp)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"transcription.backend", "temperature", "flac", "discord.token", "events.kafka", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error misses %q:\n%v", want, err)
		}
	}
}

func TestCheckUnknownFields(t *testing.T) {
	raw := map[string]any{
		"reply":   map[string]any{"chunkLimit": 1, "colour": "red", "chunklimit": 2},
		"agents":  map[string]any{},
		"session": map[string]any{"ttlMinutes": 1},
		"providers": map[string]any{
			"openai": map[string]any{"apiKey": "k", "extraHeaders": map[string]any{"X-A": "b"}},
		},
	}
	var got []string
	for _, f := range config.CheckUnknownFields(raw) {
		got = append(got, f.String())
	}
	want := "agents,reply.chunklimit (did you mean chunkLimit?),reply.colour"
	if strings.Join(got, ",") != want {
		t.Errorf("unknown = %v", got)
	}
}

func TestGetProviderByName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk"
	if m := cfg.GetProvider("openrouter", ""); m != nil {
		t.Errorf("openrouter without key matched: %+v", m)
	}
	if m := cfg.GetProvider("openai", ""); m == nil || m.Config.APIKey != "sk" {
		t.Errorf("openai = %+v", m)
	}
	if m := cfg.GetProvider("", "anything"); m == nil || m.Name != "openai" {
		t.Errorf("fallback = %+v", m)
	}
}

func TestUpgradeAddsNewFields(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(tmp, []byte(`{"reply":{"chunkLimit":3000}}`), 0o644)
	cfg, err := config.UpgradeAt(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Reply.ChunkLimit != 3000 || cfg.Session.TTLMinutes != 60 {
		t.Errorf("upgraded = %+v %+v", cfg.Reply, cfg.Session)
	}
	data, _ := os.ReadFile(tmp)
	if !strings.Contains(string(data), `"ttlMinutes": 60`) {
		t.Errorf("file not rewritten:\n%s", data)
	}
}
