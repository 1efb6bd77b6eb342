package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/floegence/remedy-engine/internal/ai"
	"github.com/floegence/remedy-engine/internal/config"
	"github.com/floegence/remedy-engine/internal/dispatch"
	"github.com/floegence/remedy-engine/internal/engine"
	"github.com/floegence/remedy-engine/internal/httpapi"
	"github.com/floegence/remedy-engine/internal/imaging"
	"github.com/floegence/remedy-engine/internal/store"
	"github.com/floegence/remedy-engine/internal/tokens"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		initCmd(os.Args[2:])
	case "run":
		runCmd(os.Args[2:])
	case "version":
		fmt.Printf("remedy-engine %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `remedy-engine

Usage:
  remedy-engine init [flags]
  remedy-engine run [flags]
  remedy-engine version

Commands:
  init        Write a config file skeleton to fill in.
  run         Run the engine using the local config file.
  version     Print build information.

`)
}

func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args)

	if _, err := os.Stat(*cfgPath); err == nil {
		fmt.Fprintf(os.Stderr, "config already exists: %s\n", *cfgPath)
		os.Exit(1)
	}

	cfg := &config.Config{
		Model: config.ModelConfig{
			Type:                   "openai",
			APIKey:                 "sk-fill-me-in",
			ModelName:              "gpt-4o",
			MaxInputTokens:         128000,
			MaxOutputTokens:        16384,
			InvocationDelaySeconds: 10,
		},
		Imaging: config.ImagingConfig{
			BaseURL: "https://imaging.example.invalid/rest",
			APIKey:  "fill-me-in",
		},
		Port:       config.DefaultPort,
		MaxWorkers: config.DefaultMaxWorkers,
		LogFormat:  "json",
		LogLevel:   "info",
	}
	if err := config.Save(*cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", filepath.Clean(*cfgPath))
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.EffectiveStorePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if path := strings.TrimSpace(cfg.PromptLibraryPath); path != "" {
		n, err := st.SeedPrompts(ctx, path)
		if err != nil {
			return fmt.Errorf("seed prompt library: %w", err)
		}
		logger.Info("prompt library seeded", "path", path, "prompts", n)
	}

	img, err := imaging.NewClient(cfg.Imaging.BaseURL, cfg.Imaging.APIKey, nil)
	if err != nil {
		return fmt.Errorf("imaging client: %w", err)
	}

	provider, err := ai.NewProvider(cfg.Model)
	if err != nil {
		return fmt.Errorf("model provider: %w", err)
	}
	model, err := ai.New(ai.Options{
		Logger:          logger,
		Provider:        provider,
		ModelName:       cfg.Model.ModelName,
		InvocationDelay: cfg.Model.InvocationDelay(),
	})
	if err != nil {
		return fmt.Errorf("model client: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Logger:  logger,
		Imaging: img,
		Model:   model,
		Store:   st,
		Budget: tokens.Budget{
			MaxInputTokens:  cfg.Model.MaxInputTokens,
			MaxOutputTokens: cfg.Model.MaxOutputTokens,
		},
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	disp, err := dispatch.New(dispatch.Options{
		Logger:     logger,
		Processor:  eng,
		MaxWorkers: cfg.EffectiveMaxWorkers(),
	})
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	disp.Start(ctx)
	defer func() { _ = disp.Close() }()

	srv, err := httpapi.New(httpapi.Options{
		Logger:     logger,
		Dispatcher: disp,
		Addr:       fmt.Sprintf(":%d", cfg.EffectivePort()),
	})
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	logger.Info("remedy-engine running",
		"version", Version,
		"addr", srv.Addr(),
		"model", cfg.Model.ModelName,
		"workers", disp.WorkerCount(),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(strings.TrimSpace(format)) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
