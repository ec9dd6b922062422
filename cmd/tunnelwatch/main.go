package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/tunnelwatch/internal/config"
	"github.com/HerbHall/tunnelwatch/internal/event"
	"github.com/HerbHall/tunnelwatch/internal/monitor"
	"github.com/HerbHall/tunnelwatch/internal/registry"
	"github.com/HerbHall/tunnelwatch/internal/server"
	"github.com/HerbHall/tunnelwatch/internal/store"
	"github.com/HerbHall/tunnelwatch/internal/tunnel"
	"github.com/HerbHall/tunnelwatch/internal/version"
	"github.com/HerbHall/tunnelwatch/internal/ws"
	"github.com/HerbHall/tunnelwatch/pkg/plugin"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("TunnelWatch starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	var srvCfg server.Config
	if err := cfg.Sub("server").Unmarshal(&srvCfg); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}
	if err := srvCfg.Validate(); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPath := viperCfg.GetString("database.path")
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	// Register all plugins (compile-time composition)
	monitorMod := monitor.New()
	modules := []plugin.Plugin{
		tunnel.New(),
		monitorMod,
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register plugin", zap.Error(err))
		}
	}

	if err := reg.Validate(); err != nil {
		logger.Fatal("plugin validation failed", zap.Error(err))
	}

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	// Live status stream. New clients get the dashboard view first.
	wsOpts := ws.Options{OriginPatterns: srvCfg.OriginPatterns}
	if !reg.IsDisabled(monitorMod.Info().Name) {
		wsOpts.Snapshot = func() any { return monitorMod.Snapshot() }
	}
	wsHandler := ws.NewHandler(bus, wsOpts, logger.Named("ws"))

	srv := server.New(srvCfg, reg, logger, db.Ping, wsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("TunnelWatch ready",
		zap.String("addr", srvCfg.Addr()),
		zap.Bool("read_only", srvCfg.ReadOnly),
	)
	fmt.Fprintf(os.Stderr, "\n  TunnelWatch %s is ready!\n  Status API at http://localhost:%d/api/v1/monitor/status\n\n", version.Short(), srvCfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wsHandler.Close()

	// Stopping the monitor disconnects an active tunnel.
	reg.StopAll(shutdownCtx)

	logger.Info("TunnelWatch stopped")
}
