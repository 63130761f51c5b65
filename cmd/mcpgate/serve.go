package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/mcpgate/pkg/alerts"
	"github.com/kadirpekel/mcpgate/pkg/config"
	"github.com/kadirpekel/mcpgate/pkg/observability"
	"github.com/kadirpekel/mcpgate/pkg/quota"
	"github.com/kadirpekel/mcpgate/pkg/ratelimit"
	"github.com/kadirpekel/mcpgate/pkg/server"
)

// ServeCmd starts the gateway server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)." default:"0"`
	Watch bool `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	metrics, err := observability.InitMetrics(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		if err := metrics.Shutdown(context.Background()); err != nil {
			slog.Warn("Metrics shutdown failed", "error", err)
		}
	}()

	tracker, err := quota.NewTracker(&cfg.Quota)
	if err != nil {
		return fmt.Errorf("failed to create quota tracker: %w", err)
	}

	limiter, err := ratelimit.New(&cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	defer limiter.Close()

	manager := ratelimit.NewManager(limiter, tracker, "daily")

	alertManager, err := alerts.NewManager(&cfg.Alerts,
		alerts.WithEmitHook(func(severity alerts.Severity, reason alerts.DedupReason) {
			metrics.RecordAlert(context.Background(), string(severity), string(reason))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create alert manager: %w", err)
	}
	defer alertManager.Close()

	alertManager.Router().OnDeliveryFailure(func(channel string) {
		metrics.RecordDeliveryFailure(context.Background(), channel)
	})

	if c.Watch && cli.Config != "" {
		watcher, err := config.Watch(cli.Config, func(next *config.Config) {
			if err := limiter.ReplaceToolLimits(next.RateLimit.ToolLimits); err != nil {
				slog.Error("Failed to apply reloaded tool limits", "error", err)
				return
			}
			slog.Info("Applied reloaded tool limits", "rules", len(next.RateLimit.ToolLimits))
		})
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		defer func() { _ = watcher.Close() }()
	}

	srv := server.New(&cfg.Server, manager, alertManager, metrics)
	slog.Info("Starting server", "address", cfg.Server.Address())
	return srv.Start(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		slog.Info("No config file provided, using defaults")
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
