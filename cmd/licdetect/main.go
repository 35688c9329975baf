package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brunoruyu/lic-detect/internal/application"
	"github.com/brunoruyu/lic-detect/internal/config"
	"github.com/brunoruyu/lic-detect/internal/infrastructure/cache"
	"github.com/brunoruyu/lic-detect/internal/infrastructure/calendar"
	"github.com/brunoruyu/lic-detect/internal/infrastructure/market"
	"github.com/brunoruyu/lic-detect/internal/infrastructure/netx"
	"github.com/brunoruyu/lic-detect/internal/persistence"
	"github.com/brunoruyu/lic-detect/internal/persistence/postgres"
)

const (
	appName = "licdetect"
	version = "v1.2.0"
)

var flags struct {
	configPath  string
	mode        string
	once        bool
	interval    time.Duration
	metricsAddr string
	logLevel    string
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Pre-auction anomaly detector for sovereign short-term debt",
		Version: version,
		Long: `licdetect watches the Treasury auction calendar and the secondary market
for short-term peso instruments. In the days before an auction it looks for
volume contraction, spread widening and MEP nervousness, emits scored SHORT
signals, and tracks the resulting positions through target, stop or rollover.`,
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&flags.configPath, "config", "c", "config/licdetect.yaml", "path to YAML config")
	rootCmd.Flags().StringVar(&flags.mode, "mode", "paper", "execution mode: paper or live")
	rootCmd.Flags().BoolVar(&flags.once, "once", false, "run a single evaluation cycle and exit")
	rootCmd.Flags().DurationVar(&flags.interval, "interval", 0, "override cycle interval (e.g. 30m)")
	rootCmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "listen address for /health and /metrics (disabled when empty)")
	rootCmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	level, err := zerolog.ParseLevel(flags.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", flags.logLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	// Local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	mode := application.Mode(flags.mode)
	if mode != application.ModePaper && mode != application.ModeLive {
		return fmt.Errorf("invalid mode %q: expected paper or live", flags.mode)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if flags.interval > 0 {
		cfg.Schedule.Interval = config.Duration(flags.interval)
	}
	if mode == application.ModeLive && !cfg.Credentials.HasBroker() {
		return fmt.Errorf("live mode requires ROFEX_USER, ROFEX_PASSWORD and ROFEX_ACCOUNT")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is required (set LICDETECT_PG_DSN)")
	}
	store, err := postgres.Connect(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connect failed: %w", err)
	}
	defer store.Close()
	repos := store.Repository(cfg.Retry.RequestTimeout.Std())

	var snapCache *cache.SnapshotCache
	var windowCache application.WindowCache
	if cfg.Storage.RedisAddr != "" {
		snapCache = cache.NewSnapshotCache(cfg.Storage.RedisAddr, cfg.Storage.RedisTTL.Std(), log.Logger)
		defer snapCache.Close()
		windowCache = snapCache
	}

	guardCfg := netx.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseBackoff:    cfg.Retry.BaseBackoff.Std(),
		RequestTimeout: cfg.Retry.RequestTimeout.Std(),
		RatePerSecond:  cfg.Retry.RatePerSecond,
	}

	calendarProvider := calendar.NewProvider(
		cfg.Sources.CalendarURL,
		netx.NewGuard("calendar", guardCfg, log.Logger),
		cfg.Detection.InstrumentsLecap,
		log.Logger,
	)
	broker := market.NewBrokerClient(
		cfg.Sources.BrokerBaseURL,
		market.BrokerCredentials{
			User:     cfg.Credentials.BrokerUser,
			Password: cfg.Credentials.BrokerPassword,
			Account:  cfg.Credentials.BrokerAccount,
		},
		netx.NewGuard("broker", guardCfg, log.Logger),
		log.Logger,
	)
	dollarFeed := market.NewDollarFeed(
		cfg.Sources.DollarFeedURL,
		netx.NewGuard("dollar_feed", guardCfg, log.Logger),
		log.Logger,
	)

	if mode == application.ModeLive {
		if err := broker.Authenticate(ctx); err != nil {
			return fmt.Errorf("broker authentication failed: %w", err)
		}
	}

	providers := []application.AlertProvider{application.NewLogProvider(log.Logger)}
	if cfg.Notify.TelegramEnabled {
		tg := application.NewTelegramProvider(cfg.Credentials.TelegramToken, cfg.Credentials.TelegramChatID)
		if !tg.IsEnabled() {
			log.Warn().Msg("telegram enabled in config but TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID missing")
		}
		providers = append(providers, tg)
	}
	dispatcher := application.NewDispatcher(log.Logger, providers...)

	registry := prometheus.NewRegistry()
	metrics := application.NewMetrics(registry)

	if flags.metricsAddr != "" {
		var cachePinger persistence.Pinger
		if snapCache != nil {
			cachePinger = snapCache
		}
		monitor := application.NewMonitorServer(flags.metricsAddr, registry, store, cachePinger, log.Logger)
		monitor.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			monitor.Shutdown(shutdownCtx)
		}()
	}

	orch := application.NewOrchestrator(
		cfg, repos, calendarProvider, broker, dollarFeed, windowCache,
		dispatcher, metrics, mode, log.Logger,
	)

	log.Info().
		Str("version", version).
		Str("mode", string(mode)).
		Bool("once", flags.once).
		Msg("licdetect starting")

	if flags.once {
		return orch.RunCycle(ctx)
	}

	scheduler, err := application.NewScheduler(orch, cfg.Schedule, log.Logger)
	if err != nil {
		return err
	}
	if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
