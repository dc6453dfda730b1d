package main

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joebot/voxbrief/internal/config"
	"github.com/joebot/voxbrief/internal/metrics"
)

func TestMakeProvider(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	tests := []struct {
		name      string
		keys      func(*config.Config)
		wantName  string
		wantModel string
	}{
		{"none", func(*config.Config) {}, "", ""},
		{"primary and fallback", func(c *config.Config) {
			c.Providers.OpenRouter.APIKey = "or-key"
			c.Providers.OpenAI.APIKey = "oa-key"
		}, "openrouter+openai", "openai/gpt-4o-mini"},
		{"fallback only", func(c *config.Config) {
			c.Providers.OpenAI.APIKey = "oa-key"
		}, "openai", "gpt-4o-mini"},
		{"primary only", func(c *config.Config) {
			c.Providers.OpenRouter.APIKey = "or-key"
		}, "openrouter", "openai/gpt-4o-mini"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.keys(cfg)
			p, model := makeProvider(cfg, m)
			if tt.wantName == "" {
				if p != nil {
					t.Fatalf("provider = %s", p.Name())
				}
				return
			}
			if p == nil || p.Name() != tt.wantName || model != tt.wantModel {
				t.Errorf("got %v %q", p, model)
			}
		})
	}
}

func TestBuildCoreNeedsTranscriptionKey(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := buildCore(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error without an OpenAI key")
	}

	cfg.Providers.OpenAI.APIKey = "oa-key"
	c, err := buildCore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.transcriber.Backend() != "openai" || c.provider == "" {
		t.Errorf("core = %+v", c)
	}
	if got := c.publisher.Sinks(); len(got) != 1 || got[0] != "log" {
		t.Errorf("sinks = %v", got)
	}
}
