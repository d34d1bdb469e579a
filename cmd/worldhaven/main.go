package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/worldhaven/server/internal/config"
	"github.com/worldhaven/server/internal/data"
	"github.com/worldhaven/server/internal/engine/fsengine"
	"github.com/worldhaven/server/internal/lifecycle"
	"github.com/worldhaven/server/internal/persist"
	"github.com/worldhaven/server/internal/sched"
	"github.com/worldhaven/server/internal/session"
	"github.com/worldhaven/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("WORLDHAVEN_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("worldhaven starting", zap.String("server", cfg.Server.Name))

	// 3. Connect to PostgreSQL and run migrations
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// 4. Registry over the durable store
	registry := world.NewRegistry(persist.NewStore(db), log)
	if err := registry.LoadAll(ctx); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	// 5. World presets
	presets, err := data.LoadPresetTable(cfg.Server.PresetsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("presets file unreadable, using built-ins", zap.Error(err))
		}
		presets = data.DefaultPresetTable()
	}
	log.Info("world presets loaded", zap.Int("kinds", presets.Count()))

	// 6. Scheduler and engine
	scheduler := sched.New(log)
	defer scheduler.Close()

	eng, err := fsengine.New(cfg.Server.DataDir, cfg.Worlds.AsyncWorkers, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	scheduler.EnsureRegion(cfg.Worlds.FallbackInstance)

	// 7. Session manager with the deployment's arrival policy
	policy, err := session.NewArrivalPolicy(cfg.Server.ScriptDir, log)
	if err != nil {
		return fmt.Errorf("arrival policy: %w", err)
	}
	defer policy.Close()

	sessions := session.NewManager(registry, eng, scheduler, policy, log)

	// 8. Lifecycle orchestrator
	manager := lifecycle.NewManager(
		cfg.Worlds, registry, eng, eng,
		lifecycle.RecordAccess{}, sessions, scheduler, presets, log,
	)

	log.Info("worldhaven ready",
		zap.Int("worlds", len(registry.AllWorlds())),
		zap.Duration("grace_period", cfg.Worlds.GracePeriod))

	// 9. Block until shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", zap.String("signal", s.String()))

	// Unload whatever is still resident so instance data hits disk.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	for _, w := range registry.AllWorlds() {
		if !manager.IsLoaded(w.ID) {
			continue
		}
		if _, err := manager.UnloadWorld(shutCtx, w.ID); err != nil {
			log.Warn("unload on shutdown", zap.Stringer("world", w.ID), zap.Error(err))
		}
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
