package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joebot/voxbrief/internal/bus"
	"github.com/joebot/voxbrief/internal/channel"
	"github.com/joebot/voxbrief/internal/cli"
	"github.com/joebot/voxbrief/internal/config"
	"github.com/joebot/voxbrief/internal/logging"
	"github.com/joebot/voxbrief/internal/observability"
	"github.com/joebot/voxbrief/internal/summary"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "gateway":
		cmdGateway()
	case "try":
		cmdTry(os.Args[2:])
	case "status":
		cmdStatus()
	case "onboard":
		if err := cli.RunOnboard(); err != nil {
			fmt.Println(cli.Fail(err))
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Println(cli.TitleStyle.Render(
			fmt.Sprintf("  %s voxbrief v%s", cli.Logo, cli.Version),
		))
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	dim := cli.DimStyle.Render
	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s voxbrief", cli.Logo)) + dim(": voice messages to summaries and tasks"))
	fmt.Println()
	fmt.Println("  " + cli.BoldStyle.Render("Usage"))
	fmt.Println()
	fmt.Printf("    voxbrief %-20s %s\n", "gateway", dim("Run the chat bot"))
	fmt.Printf("    voxbrief %-20s %s\n", "try", dim("Interactive local session"))
	fmt.Printf("    voxbrief %-20s %s\n", "try <file> [mode]", dim("Transcribe one file, optionally run a mode"))
	fmt.Printf("    voxbrief %-20s %s\n", "status", dim("Show configuration"))
	fmt.Printf("    voxbrief %-20s %s\n", "onboard", dim("Initialize setup"))
	fmt.Printf("    voxbrief %-20s %s\n", "version", dim("Show version"))
	fmt.Println()
	fmt.Println("  " + dim("Modes: summary, full_text, tasks, stats"))
	fmt.Println()
}

// --- gateway command ---

func cmdGateway() {
	cfg := mustLoadConfig()
	setupLogging(os.Stderr, cfg, isatty.IsTerminal(os.Stderr.Fd()))

	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s voxbrief Gateway", cli.Logo)))
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	msgBus := bus.NewMessageBus()
	app, err := buildCore(ctx, cfg, msgBus.PublishOutbound)
	if err != nil {
		fmt.Println(cli.Fail(err))
		fmt.Println()
		os.Exit(1)
	}
	defer app.Close()
	printCore(app)

	var channels []channel.Channel
	if cfg.Channels.Discord.Enabled {
		discord, err := channel.NewDiscord(cfg.Channels.Discord, msgBus)
		if err != nil {
			fmt.Println(cli.Fail(err))
			os.Exit(1)
		}
		channels = append(channels, discord)
		fmt.Println(cli.Item(true, "Discord", ""))
	} else {
		fmt.Println(cli.Item(false, "Discord", "(not enabled)"))
	}
	for _, ch := range channels {
		msgBus.Subscribe(ch.Name(), ch.Send)
	}

	var srv *observability.Server
	if cfg.Observability.Enabled {
		srv = observability.NewServer(cli.Version, prometheus.DefaultGatherer)
		srv.AddInfo("sessions", func() any { return app.sessions.Len() })
		srv.AddInfo("sinks", func() any { return app.publisher.Sinks() })
		srv.AddInfo("stt", func() any { return app.transcriber.Backend() })
		for name, check := range app.checks {
			srv.AddCheck(name, check)
		}
		for _, ch := range channels {
			srv.AddCheck(ch.Name(), ch.Check)
		}
		srv.Start(cfg.Observability.Addr)
		fmt.Println(cli.Item(true, "Observability", cfg.Observability.Addr))
	}
	fmt.Println()

	go app.sessions.Run(ctx)
	go msgBus.DispatchOutbound(ctx)
	go msgBus.ConsumeInbound(ctx, app.orchestrator.Handle)

	for _, ch := range channels {
		go func() {
			if err := ch.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel error", "channel", ch.Name(), "err", err)
				cancel()
			}
		}()
	}

	fmt.Println(cli.DimStyle.Render("  Press Ctrl+C to stop"))
	<-ctx.Done()
	fmt.Println("\n  Shutting down...")

	for _, ch := range channels {
		if err := ch.Stop(); err != nil {
			slog.Warn("channel close failed", "channel", ch.Name(), "err", err)
		}
	}
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown failed", "err", err)
		}
	}
}

func printCore(c *core) {
	fmt.Println(cli.Item(true, "Transcription", c.transcriber.Backend()))
	if c.provider != "" {
		fmt.Println(cli.Item(true, "Processing", c.provider))
	} else {
		fmt.Println(cli.Item(false, "Processing", "(no API key, summary and tasks disabled)"))
	}
	for _, s := range c.publisher.Sinks() {
		fmt.Println(cli.Item(true, "Events", s))
	}
}

// --- try command ---

func cmdTry(args []string) {
	cfg := mustLoadConfig()
	redirectLogs(cfg)

	var mode summary.Mode
	if len(args) > 1 {
		m, ok := summary.ParseMode(args[1])
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown mode: %s\n", args[1])
			os.Exit(1)
		}
		mode = m
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interim := make(chan *bus.Reply, 16)
	notify := func(r *bus.Reply) {
		select {
		case interim <- r:
		default:
		}
	}
	if len(args) > 0 {
		notify = nil
	}

	app, err := buildCore(ctx, cfg, notify)
	if err != nil {
		fmt.Println(cli.Fail(err))
		os.Exit(1)
	}
	defer app.Close()
	go app.sessions.Run(ctx)

	if len(args) > 0 {
		if err := cli.RunOnce(ctx, app.orchestrator, args[0], mode); err != nil {
			os.Exit(1)
		}
		return
	}
	err = cli.RunTry(ctx, app.orchestrator, cli.TryConfig{
		Backend: app.transcriber.Backend(),
		Model:   app.provider,
		Interim: interim,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// --- status command ---

func cmdStatus() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
	cli.RunStatus(cfg)
}

// --- helpers ---

func setupLogging(w io.Writer, cfg *config.Config, color bool) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
	logging.Setup(w, level, color)
}

// redirectLogs keeps the TUI clean by sending logs to the log file.
func redirectLogs(cfg *config.Config) {
	if err := os.MkdirAll(config.DataDir(), 0o755); err == nil {
		f, err := os.OpenFile(config.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			setupLogging(f, cfg, false)
			return
		}
	}
	setupLogging(io.Discard, cfg, false)
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Check %s or run: voxbrief onboard\n", config.ConfigPath())
		os.Exit(1)
	}
	return cfg
}
