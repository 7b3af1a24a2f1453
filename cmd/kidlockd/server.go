package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yanmasharski/kidlock-tv/internal/admin"
	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/codes"
	"github.com/yanmasharski/kidlock-tv/internal/config"
	"github.com/yanmasharski/kidlock-tv/internal/launcher"
	"github.com/yanmasharski/kidlock-tv/internal/ledger"
	"github.com/yanmasharski/kidlock-tv/internal/metrics"
	"github.com/yanmasharski/kidlock-tv/internal/monitor"
	"github.com/yanmasharski/kidlock-tv/internal/storage"
	"github.com/yanmasharski/kidlock-tv/internal/storage/bolt"
	"github.com/yanmasharski/kidlock-tv/internal/storage/redis"
	"github.com/yanmasharski/kidlock-tv/internal/systemd"
	"github.com/yanmasharski/kidlock-tv/internal/usagestats"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the kidlockd daemon",
	Long:  `Start the screen-time budget daemon with the enforcement monitor, admin API, and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting kidlockd")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	clk := clock.RealClock{}
	ctx := context.Background()

	// Initialize Budget Ledger
	budgetLedger := ledger.New(store, clk, cfg.Budget.DefaultDailyLimitMinutes, logger)
	if err := budgetLedger.InitializeIfNeeded(ctx); err != nil {
		return fmt.Errorf("failed to initialize budget state: %w", err)
	}
	if didReset, err := budgetLedger.EnsureDailyReset(ctx); err != nil {
		logger.Error().Err(err).Msg("Startup daily reset failed")
	} else if didReset {
		logger.Info().Msg("Stale budget reset at startup")
	}

	logger.Info().Msg("Budget Ledger initialized")

	// Initialize Code Manager
	codeManager := codes.NewManager(store, budgetLedger, clk, logger)
	if err := codeManager.MigrateLegacy(ctx); err != nil {
		logger.Error().Err(err).Msg("Legacy code migration failed")
	}

	// Initialize Usage Tracking
	recorder := usagestats.NewRecorder(
		store,
		clk,
		config.Duration(cfg.Usage.SampleTimeout, usagestats.DefaultSampleTimeout),
		logger,
	)
	denyList := usagestats.NewDenyList(
		cfg.Monitor.SelfPackage,
		cfg.Monitor.LauncherPackage,
		cfg.Monitor.IgnoredPackages,
	)
	accountant := usagestats.NewAccountant(recorder, denyList, clk, logger)

	logger.Info().Msg("Usage Tracking initialized")

	// Initialize Blocker
	blocker := launcher.New(launcher.Config{
		BringToFrontCommand: cfg.Blocker.BringToFrontCommand,
		TerminateCommand:    cfg.Blocker.TerminateCommand,
		NotifyCommand:       cfg.Blocker.NotifyCommand,
	}, logger)

	// Initialize Enforcement Monitor
	mon := monitor.New(
		monitor.Config{
			PollInterval:  config.Duration(cfg.Monitor.PollInterval, monitor.DefaultPollInterval),
			BlockCooldown: config.Duration(cfg.Monitor.BlockCooldown, monitor.DefaultBlockCooldown),
			SelfPackage:   cfg.Monitor.SelfPackage,
		},
		[]monitor.ForegroundSource{
			monitor.NewFuncSource("recorder", recorder.MostRecentPackage),
		},
		accountant,
		budgetLedger,
		blocker,
		clk,
		logger,
	)

	// Arm enforcement on boot when configured to do so.
	if autostart, err := budgetLedger.AutostartEnabled(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to read autostart flag")
	} else if autostart {
		if err := budgetLedger.SetBlockingEnabled(ctx, true, accountant.HasPermission()); err != nil {
			logger.Error().Err(err).Msg("Failed to arm blocking on boot")
		} else {
			logger.Info().Msg("Blocking armed on boot")
		}
	}

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	mon.Start(monitorCtx)

	logger.Info().Msg("Enforcement Monitor started")

	// Initialize Admin Server
	adminAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.AdminPort)
	adminServer := admin.NewServer(
		admin.Config{ListenAddr: adminAddr},
		budgetLedger,
		codeManager,
		accountant,
		recorder,
		mon,
		logger,
	)
	if sdListeners.Admin != nil {
		adminServer.SetListener(sdListeners.Admin)
	}
	if err := adminServer.Start(); err != nil {
		return fmt.Errorf("failed to start Admin Server: %w", err)
	}

	logger.Info().Str("addr", adminAddr).Msg("Admin Server started")

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().Str("addr", metricsAddr).Msg("Metrics Server started")

	// Log startup complete
	logger.Info().Msg("kidlockd startup complete")
	logger.Info().Msgf("Admin API: http://%s", adminAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, forcing settings flush...")
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := store.Commit(flushCtx); err != nil {
				logger.Error().Err(err).Msg("Failed to flush settings")
			} else {
				logger.Info().Msg("Settings flushed")
			}
			cancel()
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop servers
	mon.Stop()
	cancelMonitor()

	if err := adminServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Admin Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("kidlockd stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
