// Command bench drives a single Plan against a Hyperliquid-shaped perp venue
// and records every action, ack, and observed confirmation to an artifact
// directory for later scoring.
//
// Architecture:
//
//	main.go                — entry point: loads config, wires transport →
//	                         correlator → executor, runs the plan, shuts down
//	internal/config        — run configuration (wallet, endpoints, timeouts)
//	internal/plan          — the action plan vocabulary and its loader
//	internal/transport     — venue-facing HTTP/WS client, or the in-process
//	                         demo fake when demo_mode is set
//	internal/correlate     — matches submitted actions against the venue's
//	                         asynchronous confirmation stream
//	internal/exec          — sequential plan driver
//	internal/artifact      — the four run-artifact files
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perpbench/internal/artifact"
	"perpbench/internal/config"
	"perpbench/internal/correlate"
	"perpbench/internal/exec"
	"perpbench/internal/plan"
	"perpbench/internal/transport"
)

func main() {
	cfgPath := "configs/bench.yaml"
	if p := os.Getenv("BENCH_CONFIG"); p != "" {
		cfgPath = p
	}

	planPath := flag.String("plan", "", "path to a plan file, optionally suffixed with :file:N")
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the run config YAML")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if *planPath == "" {
		slog.Error("missing required -plan flag")
		os.Exit(1)
	}

	logger := slog.New(newLogHandler(cfg.Logging.Level, cfg.Logging.Format))

	if err := run(*cfg, *planPath, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, planPath string, logger *slog.Logger) error {
	p, err := plan.Load(planPath)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	var tr transport.Transport
	if cfg.DemoMode {
		tr = transport.NewDemoTransport(0)
	} else {
		httpTr, err := transport.NewHTTPTransport(&cfg, logger)
		if err != nil {
			return fmt.Errorf("build transport: %w", err)
		}
		tr = httpTr
	}
	defer tr.Close()

	walletAddress := ""
	if cfg.Wallet.PrivateKey != "" {
		if signer, err := transport.NewSigner(cfg.Wallet); err == nil {
			walletAddress = signer.Address().Hex()
		}
	}

	writer, err := artifact.Open(cfg.Run.OutDir)
	if err != nil {
		return fmt.Errorf("open artifact writer: %w", err)
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := tr.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to venue events: %w", err)
	}

	if refresher, ok := tr.(transport.MidRefresher); ok {
		go runMidRefresh(ctx, refresher, cfg.Run.MidRefreshInterval, logger)
	}

	correlator := correlate.New(writer.WriteEvent)
	go correlator.Ingest(ctx, events)

	executor := exec.New(tr, correlator, writer, cfg.Run.WindowMs, cfg.Run.EffectTimeout, logger)

	if err := writer.WriteRunMeta(cfg.Run.OutDir, artifact.RunMeta{
		NetworkLabel:    cfg.API.NetworkLabel,
		EffectTimeoutMs: cfg.Run.EffectTimeout.Milliseconds(),
		WindowMs:        cfg.Run.WindowMs,
		WalletAddress:   walletAddress,
		BuilderCodeHint: cfg.API.BuilderCode,
		BenchVersion:    cfg.Run.BenchVersion,
		DemoMode:        cfg.DemoMode,
	}); err != nil {
		return fmt.Errorf("write run meta: %w", err)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- executor.Run(ctx, p)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-runDone:
		if err != nil {
			return fmt.Errorf("executor: %w", err)
		}
		logger.Info("run complete", "steps", len(p.Steps), "out_dir", cfg.Run.OutDir)
		return nil
	case sig := <-sigCh:
		logger.Info("received shutdown signal, aborting run", "signal", sig.String())
		cancel()
		<-runDone
		return nil
	}
}

// runMidRefresh drives refresher.PollMids on a ticker so symbolic prices
// ("mid ± X%") always resolve against a recently observed mid rather than
// whatever was cached at startup. Polls once immediately so the first
// order of the run isn't forced to wait out a full interval.
func runMidRefresh(ctx context.Context, refresher transport.MidRefresher, interval time.Duration, logger *slog.Logger) {
	if err := refresher.PollMids(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("initial mid poll failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresher.PollMids(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("mid poll failed", "error", err)
			}
		}
	}
}

func newLogHandler(level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if format == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
