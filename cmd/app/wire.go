//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/flarecast/internal/bootstrap"
	"github.com/yanqian/flarecast/internal/domain/auth"
	"github.com/yanqian/flarecast/internal/domain/insight"
	"github.com/yanqian/flarecast/internal/infra/analysisapi"
	"github.com/yanqian/flarecast/internal/infra/config"
	httpiface "github.com/yanqian/flarecast/internal/interface/http"
	"github.com/yanqian/flarecast/pkg/logger"
	"github.com/yanqian/flarecast/pkg/metrics"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideInsightConfig,
		provideAuthConfig,
		provideAnalysisClient,
		provideSnapshotStore,
		metrics.NewInsightCollector,
		insight.NewManager,
		auth.NewService,
		wire.Bind(new(insight.Transport), new(*analysisapi.Client)),
		wire.Bind(new(insight.Observer), new(*metrics.InsightCollector)),
		wire.Bind(new(insight.Service), new(*insight.Manager)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
