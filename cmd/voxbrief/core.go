package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/bot"
	"github.com/joebot/voxbrief/internal/bus"
	"github.com/joebot/voxbrief/internal/config"
	"github.com/joebot/voxbrief/internal/events"
	"github.com/joebot/voxbrief/internal/llm"
	"github.com/joebot/voxbrief/internal/metrics"
	"github.com/joebot/voxbrief/internal/observability"
	"github.com/joebot/voxbrief/internal/retry"
	"github.com/joebot/voxbrief/internal/session"
	"github.com/joebot/voxbrief/internal/stt"
	"github.com/joebot/voxbrief/internal/summary"
	"github.com/joebot/voxbrief/internal/transcript"
)

// core is the channel-independent part of the bot.
type core struct {
	orchestrator *bot.Orchestrator
	transcriber  *stt.Client
	sessions     *session.Manager
	publisher    *events.Publisher
	provider     string
	checks       map[string]observability.Check
	closers      []func() error
}

// buildCore wires transcription, processing, sessions and event sinks into
// an orchestrator. notify receives interim replies and may be nil.
func buildCore(ctx context.Context, cfg *config.Config, notify func(*bus.Reply)) (*core, error) {
	m := metrics.DefaultMetrics
	c := &core{checks: make(map[string]observability.Check)}

	backend, err := makeBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}
	tc := cfg.Transcription
	c.transcriber = stt.NewClient(backend, stt.Options{
		Timeout:   tc.Timeout(),
		Policy:    retry.Policy{MaxAttempts: tc.MaxAttempts, Backoff: tc.Backoff()},
		Annotator: transcript.NewAnnotator(tc.PauseThreshold()),
		Language:  tc.Language,
		Prompt:    tc.Prompt,
		Metrics:   m,
	})

	provider, model := makeProvider(cfg, m)
	if provider != nil {
		c.provider = provider.Name() + " · " + model
	} else {
		slog.Warn("no completion provider configured, summary and tasks will fail")
	}
	pc := cfg.Processing
	engine := summary.NewEngine(provider, summary.Options{
		Model:         model,
		Temperature:   pc.Temperature,
		MaxTokens:     pc.MaxTokens,
		MaxTextLength: pc.MaxTextLength,
		Timeout:       pc.Timeout(),
		Policy:        retry.Policy{MaxAttempts: pc.MaxAttempts, Backoff: pc.Backoff()},
	})

	c.sessions = session.NewManager(cfg.Session.TTL(), cfg.Session.Sweep()).WithMetrics(m)
	c.publisher = c.makePublisher(ctx, cfg)
	c.closers = append(c.closers, c.publisher.Close)

	c.orchestrator = bot.New(bot.Config{
		Ingestor:      audio.NewIngestor(cfg.Audio.MaxBytes(), cfg.Audio.AllowedFormats),
		Transcriber:   c.transcriber,
		Engine:        engine,
		Sessions:      c.sessions,
		Events:        c.publisher,
		Metrics:       m,
		ChunkLimit:    cfg.Reply.ChunkLimit,
		Language:      tc.Language,
		MaxTextLength: pc.MaxTextLength,
		Notify:        notify,
	})
	return c, nil
}

// Close releases backend connections and event sinks.
func (c *core) Close() error {
	var errs []error
	for _, f := range c.closers {
		if err := f(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func makeBackend(ctx context.Context, cfg *config.Config) (stt.Backend, error) {
	tc := cfg.Transcription
	switch tc.Backend {
	case "google":
		return stt.NewGoogleBackend(ctx, tc.Google.LanguageCode, tc.Google.MaxSpeakers)
	default:
		p := cfg.Providers.OpenAI
		if p.APIKey == "" {
			return nil, fmt.Errorf("transcription backend %q needs providers.openai.apiKey (or OPENAI_API_KEY)", tc.Backend)
		}
		return stt.NewWhisperBackend(p.APIKey, p.APIBase, tc.Model), nil
	}
}

// makeProvider builds the primary provider with the fallback behind it. It
// returns the model the engine should request, which is the fallback model
// when only the fallback has a key.
func makeProvider(cfg *config.Config, m *metrics.Metrics) (llm.Provider, string) {
	pc := cfg.Processing
	primary := newProvider(cfg, pc.Provider, pc.Model)
	model := pc.Model
	var secondary llm.Provider
	if pc.FallbackProvider != "" && pc.FallbackProvider != pc.Provider {
		secondary = newProvider(cfg, pc.FallbackProvider, pc.FallbackModel)
	}
	switch {
	case primary == nil && secondary == nil:
		return nil, ""
	case primary == nil:
		return llm.Instrument(secondary, m), pc.FallbackModel
	case secondary == nil:
		return llm.Instrument(primary, m), model
	}
	return &llm.Fallback{
		Primary:   llm.Instrument(primary, m),
		Secondary: llm.Instrument(secondary, m),
	}, model
}

func newProvider(cfg *config.Config, name, model string) llm.Provider {
	match := cfg.GetProvider(name, model)
	if match == nil {
		return nil
	}
	p := match.Config
	switch match.Name {
	case "anthropic":
		return llm.NewAnthropicProvider(p.APIKey, p.APIBase, model)
	case "openrouter":
		return llm.NewOpenRouterProvider(p.APIKey, p.APIBase, model, cfg.Processing.Referer, cfg.Processing.Title)
	default:
		return llm.NewOpenAIProvider(match.Name, p.APIKey, p.APIBase, model, p.ExtraHeaders)
	}
}

// makePublisher connects the enabled event sinks. A sink that cannot connect
// is skipped so the bot still serves users.
func (c *core) makePublisher(ctx context.Context, cfg *config.Config) *events.Publisher {
	var sinks []events.Sink
	if k := cfg.Events.Kafka; k.Enabled {
		sink, err := events.NewKafkaSink(events.KafkaConfig{Brokers: k.Brokers, Topic: k.Topic})
		if err != nil {
			slog.Error("kafka event sink disabled", "err", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if r := cfg.Events.Redis; r.Enabled {
		sink, err := events.NewRedisSink(ctx, events.RedisConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Channel:  r.Channel,
		})
		if err != nil {
			slog.Error("redis event sink disabled", "addr", r.Addr, "err", err)
		} else {
			sinks = append(sinks, sink)
			c.checks["redis"] = sink.Ping
		}
	}
	return events.NewPublisher(sinks...)
}
