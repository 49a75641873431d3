// @title         Detention API
// @version       0.1.0
// @description   Batch control, approvals and order diagnostics for detention billing

package main

import (
	"context"
	"os/signal"
	"syscall"

	"detention/internal/bootstrap"
	"detention/internal/platform/config"
	"detention/internal/platform/logger"
	phttp "detention/internal/platform/net/http"

	"detention/internal/services/api"
)

func main() {
	// service-scoped config for HTTP etc (DETENTION_API_*)
	root := config.New()
	apiCfg := root.Prefix("DETENTION_API_")

	// bring up logging early
	l := logger.Get()
	if err := config.LoadFromEnv(); err != nil {
		l.Panic().Err(err).Msg("config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// backends are optional; the batch store falls back to memory
	st, err := bootstrap.OpenStore(ctx, root, "detention-api")
	if err != nil {
		l.Panic().Err(err).Msg("store open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	eng, err := bootstrap.Build(ctx, root, st, bootstrap.Options{})
	if err != nil {
		l.Panic().Err(err).Msg("bootstrap failed")
	}
	go eng.Session.RunRefresher(ctx)

	// http server (DETENTION_API_ADDR, DETENTION_API_SHUTDOWN_GRACE)
	srv := phttp.NewServer(apiCfg)

	api.Mount(
		srv.Router(),
		api.Options{
			Config:         apiCfg,
			Store:          st,
			Engine:         eng.API(),
			ServiceName:    "detention-api",
			StreamOrigins:  apiCfg.MayCSV("STREAM_ORIGINS", nil),
			Operators:      bootstrap.Operators(apiCfg),
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			DocsTitle:      apiCfg.MayString("DOCS_TITLE", ""),
			EnableProfiler: apiCfg.MayBool("PROFILER", false),
		},
	)

	// returns once a signal has drained in-flight requests
	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
