// Command svpipe exercises the node-graph runtime end to end: it pulls
// one SRT stream, wires the declarative pipeline tail described by a
// YAML config onto it, and pumps frames until the stream ends or the
// process is signaled to stop. It defines no new protocol surface of
// its own; it is a manual-testing harness, not the CLI of §1.
// Grounded on zsiec-prism/cmd/prism/main.go's slog/signal/errgroup
// shape.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/svpipe/internal/config"
	"github.com/zsiec/svpipe/internal/runtime"
	"github.com/zsiec/svpipe/internal/srtsrc"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := loadConfig()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	streamKey := envOr("STREAM_KEY", "default")
	pullURL := envOr("SRT_PULL_URL", "")
	if pullURL == "" {
		log.Error("SRT_PULL_URL must be set")
		os.Exit(1)
	}

	log.Info("svpipe starting",
		"version", version,
		"stream", streamKey,
		"srt_pull_url", pullURL,
		"stages", len(cfg.Pipeline),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	src := srtsrc.New(streamKey+".srt", srtsrc.NewSRTGoDialer(), log)
	if err := src.SetParam("url", pullURL); err != nil {
		log.Error("failed to configure SRT source", "error", err)
		os.Exit(1)
	}

	root, err := config.BuildChain(src, cfg.Pipeline, log)
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runtime.Pump(ctx, root, log)
	})

	if err := g.Wait(); err != nil {
		log.Error("svpipe exited with error", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return config.Load(path)
	}
	cfg := &config.Config{}
	config.ApplyEnv(cfg)
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
