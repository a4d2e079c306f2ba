package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/homelabcmd/homelabcmd/pkg/config"
	"github.com/homelabcmd/homelabcmd/pkg/gateway"
	"github.com/homelabcmd/homelabcmd/pkg/gateway/middleware"
	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/infra/ratelimit"
	"github.com/homelabcmd/homelabcmd/pkg/infra/store"
	"github.com/homelabcmd/homelabcmd/pkg/notify"
	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/sweep"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

func NewServeCommand(root *RootCommand) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator",
		Long: `Start the coordinator: the HTTP API agents beat against, the alert
evaluator, the notification dispatcher, and the background sweeps.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.Config()
			if listenAddr != "" {
				cfg.API.ListenAddr = listenAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	log := logger.Default()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	alertStore := store.NewSQLiteAlertStore(db)
	actionStore := store.NewSQLiteActionStore(db)
	serverStore := store.NewSQLiteServerStore(db)

	bus := eventbus.New()
	defer bus.Close()

	evaluator := alerting.NewEvaluator(alertStore, thresholdsFromConfig(cfg))

	heartbeats := service.NewHeartbeatService(serverStore, actionStore, evaluator, bus)
	alerts := service.NewAlertService(alertStore, bus)
	actions := service.NewActionService(actionStore, serverStore, bus)
	servers := service.NewFleetService(serverStore, bus)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := gateway.NewMetrics(registry)
	if err := metrics.TrackOpenAlerts(ctx, bus, alertStore); err != nil {
		return fmt.Errorf("track open alerts: %w", err)
	}

	dc := dispatcherConfig(cfg)
	dc.Deliveries = metrics.NotificationsTotal
	dispatcher := notify.NewDispatcher(alertStore, serverStore, buildSinks(cfg), dc)
	if err := dispatcher.Subscribe(bus); err != nil {
		return fmt.Errorf("subscribe dispatcher: %w", err)
	}

	sweeper := sweep.NewRunner(sweep.Config{
		OfflineThreshold: cfg.Sweep.OfflineThresholdD,
		OfflineInterval:  cfg.Sweep.OfflineIntervalD,
		ExecutionTimeout: cfg.Sweep.ExecutionTimeoutD,
		ReminderInterval: cfg.Sweep.ReminderIntervalD,
	}, heartbeats, actions, dispatcher)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeps: %w", err)
	}
	defer sweeper.Stop()

	handlers := gateway.NewHandlers(heartbeats, alerts, actions, servers, metrics)

	serverCfg := gateway.DefaultServerConfig()
	serverCfg.Addr = cfg.API.ListenAddr
	serverCfg.EnableCORS = cfg.API.EnableCORS
	serverCfg.EnableAuth = cfg.Security.APIKey != ""
	serverCfg.AuthConfig = middleware.AuthConfig{APIKeys: []string{cfg.Security.APIKey}}
	serverCfg.Logger = log
	if cfg.Security.RateLimitPerMin > 0 {
		serverCfg.RateLimiter = ratelimit.New(
			float64(cfg.Security.RateLimitPerMin)/60.0,
			cfg.Security.RateLimitPerMin,
		)
	}

	srv := gateway.NewServer(handlers, registry, serverCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info("coordinator running",
		"listen_addr", cfg.API.ListenAddr,
		"database", cfg.Database.Path,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func thresholdsFromConfig(cfg *config.Config) map[alerting.MetricType]alerting.Threshold {
	toThreshold := func(t config.ThresholdConfig) alerting.Threshold {
		return alerting.Threshold{
			HighPercent:         t.HighPercent,
			CriticalPercent:     t.CriticalPercent,
			SustainedHeartbeats: t.SustainedHeartbeats,
		}
	}
	return map[alerting.MetricType]alerting.Threshold{
		alerting.MetricCPU:    toThreshold(cfg.Thresholds.CPU),
		alerting.MetricMemory: toThreshold(cfg.Thresholds.Memory),
		alerting.MetricDisk:   toThreshold(cfg.Thresholds.Disk),
	}
}

func buildSinks(cfg *config.Config) []notify.Sink {
	var sinks []notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, 10*time.Second))
	}
	if cfg.Notify.SlackWebhookURL != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.Notify.SlackWebhookURL))
	}
	if cfg.Notify.EmailHost != "" && len(cfg.Notify.EmailTo) > 0 {
		sinks = append(sinks, notify.NewEmailSink(notify.EmailConfig{
			Host:     cfg.Notify.EmailHost,
			Port:     cfg.Notify.EmailPort,
			Username: cfg.Notify.EmailUsername,
			Password: cfg.Notify.EmailPassword,
			From:     cfg.Notify.EmailFrom,
			To:       cfg.Notify.EmailTo,
		}))
	}
	return sinks
}

func dispatcherConfig(cfg *config.Config) notify.DispatcherConfig {
	dc := notify.DefaultDispatcherConfig()
	dc.MinSeverity = alerting.Severity(cfg.Notify.MinSeverity)
	if cfg.Notify.CriticalCooldownD > 0 {
		dc.Cooldowns[alerting.SeverityCritical] = cfg.Notify.CriticalCooldownD
	}
	if cfg.Notify.HighCooldownD > 0 {
		dc.Cooldowns[alerting.SeverityHigh] = cfg.Notify.HighCooldownD
	}
	return dc
}
