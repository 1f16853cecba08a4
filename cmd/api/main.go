package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/config"
	"github.com/hamed0406/uptimecore/internal/confirm"
	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/events"
	"github.com/hamed0406/uptimecore/internal/httpapi"
	apimw "github.com/hamed0406/uptimecore/internal/httpapi/middleware"
	"github.com/hamed0406/uptimecore/internal/logging"
	"github.com/hamed0406/uptimecore/internal/metrics"
	"github.com/hamed0406/uptimecore/internal/notify"
	"github.com/hamed0406/uptimecore/internal/probe"
	"github.com/hamed0406/uptimecore/internal/repo"
	"github.com/hamed0406/uptimecore/internal/repo/postgres"
	"github.com/hamed0406/uptimecore/internal/repo/sqlite"
	"github.com/hamed0406/uptimecore/internal/scheduler"
	"github.com/hamed0406/uptimecore/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api_exit", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	var (
		backoff notify.Backoff
		claimer scheduler.Claimer
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		perr := rdb.Ping(pingCtx).Err()
		cancel()
		if perr != nil {
			_ = rdb.Close()
			return perr
		}
		defer func() { err = multierr.Append(err, rdb.Close()) }()
		backoff = notify.NewRedisBackoff(rdb)
		claimer = scheduler.NewRedisClaimer(rdb)
		logger.Info("redis_connected", zap.String("addr", cfg.Redis.Addr))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := events.NewHub(cfg.Events.HistorySize, logger)
	hub.OnDrop(m.SSEDropped.Inc)

	router := notify.NewRouter(store, backoff, notify.Options{
		QueueSize:       cfg.Notify.QueueSize,
		Workers:         cfg.Notify.Workers,
		SendTimeout:     cfg.Notify.SendTimeout,
		DefaultBackoff:  cfg.Notify.DefaultBackoff,
		PerTransportRPS: cfg.Notify.PerTransportRPS,
	}, logger)
	registerTransports(router, cfg.Notify, logger)
	router.OnResult(func(t domain.ChannelType, res notify.Result) {
		m.Notifications.WithLabelValues(string(t), string(res)).Inc()
	})
	// queued alerts still drain after a shutdown signal
	router.Start(context.WithoutCancel(ctx))

	aggr := stats.NewAggregator(store, stats.Options{
		ChunkSize:    cfg.Aggregation.ChunkSize,
		Retries:      cfg.Aggregation.Retries,
		RetryBackoff: cfg.Aggregation.RetryBackoff,
	}, logger)

	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		router.Stop()
		return err
	}

	alerter := scheduler.NewAlerter(store, aggr, router, hub, m, logger)
	checks := scheduler.NewCheckScheduler(scheduler.CheckConfig{
		Policy: confirm.Policy{
			Enabled:   cfg.Confirmation.Enabled,
			Delay:     cfg.Confirmation.Delay,
			Threshold: cfg.Confirmation.Threshold,
		},
		Timeout: cfg.Checks.ProbeTimeout,
		Floor:   cfg.MinCheckInterval(),
		Workers: cfg.Checks.Workers,
	}, store, probe.NewHTTPProber(cfg.Checks.UserAgent), scheduler.NewGocronDeferrer(cron, claimer, logger), alerter, m, logger)

	if err := seedMonitors(ctx, store, cfg, logger); err != nil {
		router.Stop()
		return err
	}

	if err := scheduler.RegisterJobs(ctx, cron, scheduler.Jobs{
		Tick:      cfg.Checks.Tick,
		Checks:    checks,
		DailyCron: cfg.Aggregation.DailyCron,
		Daily:     scheduler.NewDailyJob(aggr, m, logger),
		CertCron:  cfg.Aggregation.CertCron,
		Certs:     scheduler.NewCertJob(store, probe.NewCertChecker(), cfg.Checks.Workers, logger),
	}, logger); err != nil {
		router.Stop()
		return err
	}
	cron.Start()

	api := httpapi.NewServer(logger, store, hub, aggr, m, reg, httpapi.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		Keys:               apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
		PublicRPM:          cfg.PublicRPM,
		PublicBurst:        cfg.PublicBurst,
		AdminRPM:           cfg.AdminRPM,
		AdminBurst:         cfg.AdminBurst,
		MinIntervalMinutes: int(cfg.MinCheckInterval() / time.Minute),
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = multierr.Combine(err,
		srv.Shutdown(shutdownCtx),
		cron.Shutdown(),
	)
	router.Stop()
	logger.Info("shutdown_complete", zap.Error(err))
	return err
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	if cfg.DatabaseURL != "" {
		logger.Info("store_postgres")
		return postgres.New(ctx, cfg.DatabaseURL, logger)
	}
	logger.Info("store_sqlite", zap.String("path", cfg.SQLitePath))
	return sqlite.Open(ctx, cfg.SQLitePath, logger)
}

func registerTransports(r *notify.Router, cfg config.Notify, logger *zap.Logger) {
	r.Register(domain.ChannelSlack, notify.NewSlack())
	if cfg.SMTPHost != "" {
		r.Register(domain.ChannelEmail, notify.NewMail(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom))
	} else {
		logger.Warn("transport_disabled", zap.String("channel", string(domain.ChannelEmail)))
	}
	if cfg.TelegramToken != "" {
		r.Register(domain.ChannelTelegram, notify.NewTelegram(cfg.TelegramToken, cfg.TelegramAPIBase))
	} else {
		logger.Warn("transport_disabled", zap.String("channel", string(domain.ChannelTelegram)))
	}
	if cfg.SMSGatewayURL != "" {
		r.Register(domain.ChannelSMS, notify.NewSMS(cfg.SMSGatewayURL, cfg.SMSGatewayToken))
	} else {
		logger.Warn("transport_disabled", zap.String("channel", string(domain.ChannelSMS)))
	}
}

// seedMonitors upserts the monitors declared in config by URL.
func seedMonitors(ctx context.Context, store repo.MonitorStore, cfg config.Config, logger *zap.Logger) error {
	floor := int(cfg.MinCheckInterval() / time.Minute)
	now := time.Now().UTC()
	for _, s := range cfg.Monitors {
		m := s.Monitor(floor, now)
		if err := store.UpsertMonitor(ctx, &m); err != nil {
			return err
		}
		logger.Info("monitor_seeded", zap.Int64("monitor_id", int64(m.ID)), zap.String("url", m.URL))
	}
	return nil
}
