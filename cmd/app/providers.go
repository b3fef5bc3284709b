package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/flarecast/internal/domain/auth"
	"github.com/yanqian/flarecast/internal/domain/insight"
	"github.com/yanqian/flarecast/internal/infra/analysisapi"
	"github.com/yanqian/flarecast/internal/infra/config"
	"github.com/yanqian/flarecast/internal/infra/snapshotstore"
)

func provideInsightConfig(cfg *config.Config) insight.Config {
	return insight.Config{
		AnalyzePath:    cfg.Backend.AnalyzePath,
		BackendAddress: strings.TrimRight(cfg.Backend.BaseURL, "/"),
		HourlyWindow:   cfg.Insight.HourlyWindow,
		DailyWindow:    cfg.Insight.DailyWindow,
	}
}

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		Secret:             cfg.Auth.Secret,
		TokenTTL:           cfg.Auth.TokenTTL,
		RequireEntitlement: cfg.Auth.RequireEntitlement,
	}
}

func provideAnalysisClient(cfg *config.Config, logger *slog.Logger) *analysisapi.Client {
	return analysisapi.NewClient(analysisapi.OptionsFromConfig(cfg.Backend), logger)
}

func provideSnapshotStore(cfg *config.Config, logger *slog.Logger) insight.SnapshotStore {
	ttl := cfg.Session.SnapshotTTL
	if cfg.Session.Redis.Enabled {
		opt, err := buildValkeyOptions(cfg)
		if err != nil {
			logger.Error("invalid valkey configuration, falling back to memory store", "error", err)
			return snapshotstore.NewMemoryStore(ttl)
		}
		client, err := valkey.NewClient(opt)
		if err != nil {
			logger.Error("failed to create valkey client, falling back to memory store", "error", err)
			return snapshotstore.NewMemoryStore(ttl)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			logger.Error("valkey ping failed, falling back to memory store", "error", err)
			client.Close()
		} else {
			logger.Info("insight valkey snapshot store enabled", "addr", cfg.Session.Redis.Addr)
			return snapshotstore.NewValkeyStore(client, cfg.Session.Redis.Prefix, ttl)
		}
	}
	return snapshotstore.NewMemoryStore(ttl)
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	if strings.Contains(cfg.Session.Redis.Addr, "://") {
		return valkey.ParseURL(cfg.Session.Redis.Addr)
	}
	return valkey.ClientOption{InitAddress: []string{cfg.Session.Redis.Addr}}, nil
}
