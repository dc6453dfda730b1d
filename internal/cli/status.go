package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joebot/voxbrief/internal/config"
)

// RunStatus displays the current configuration status with styled output.
func RunStatus(cfg *config.Config) {
	cfgPath := config.ConfigPath()

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s voxbrief Status", Logo)))
	fmt.Println()

	fmt.Printf("  %-14s %s  %s\n", "Config", StatusBadge(fileExists(cfgPath)), DimStyle.Render(cfgPath))
	fmt.Printf("  %-14s %s\n", "Transcription", transcriptionLine(cfg))
	fmt.Printf("  %-14s %s\n", "Processing", processingLine(cfg))
	fmt.Printf("  %-14s %d MB · %s\n", "Audio", cfg.Audio.MaxSizeMB, strings.Join(cfg.Audio.AllowedFormats, ", "))
	fmt.Printf("  %-14s %s\n", "Session TTL", cfg.Session.TTL())
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Providers"))
	providers := []struct {
		name   string
		config config.ProviderConfig
	}{
		{"OpenRouter", cfg.Providers.OpenRouter},
		{"OpenAI", cfg.Providers.OpenAI},
		{"Anthropic", cfg.Providers.Anthropic},
	}
	for _, p := range providers {
		fmt.Printf("    %s  %s\n", StatusBadge(p.config.APIKey != ""), p.name)
	}
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Channels"))
	fmt.Printf("    %s  Discord\n", StatusBadge(cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != ""))
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Event sinks"))
	fmt.Printf("    %s  Kafka  %s\n", StatusBadge(cfg.Events.Kafka.Enabled),
		DimStyle.Render(strings.Join(cfg.Events.Kafka.Brokers, ",")+" "+cfg.Events.Kafka.Topic))
	fmt.Printf("    %s  Redis  %s\n", StatusBadge(cfg.Events.Redis.Enabled),
		DimStyle.Render(cfg.Events.Redis.Addr+" "+cfg.Events.Redis.Channel))
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Observability"))
	fmt.Printf("    %s  %s\n", StatusBadge(cfg.Observability.Enabled), DimStyle.Render(cfg.Observability.Addr))
	fmt.Println()
}

func transcriptionLine(cfg *config.Config) string {
	t := cfg.Transcription
	lang := t.Language
	if lang == "" {
		lang = "auto"
	}
	if t.Backend == "google" {
		return fmt.Sprintf("google · %s · up to %d speakers", t.Google.LanguageCode, t.Google.MaxSpeakers)
	}
	return fmt.Sprintf("%s · %s · language %s", t.Backend, t.Model, lang)
}

func processingLine(cfg *config.Config) string {
	p := cfg.Processing
	line := fmt.Sprintf("%s · %s", p.Provider, p.Model)
	if p.FallbackProvider != "" {
		line += DimStyle.Render(fmt.Sprintf("  (fallback %s · %s)", p.FallbackProvider, p.FallbackModel))
	}
	return line
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
