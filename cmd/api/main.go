package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"boothvideo/internal/bootstrap"
	"boothvideo/internal/http/handlers"
	httpapi "boothvideo/internal/http/httpapi"
	"boothvideo/internal/infra"
	"boothvideo/internal/intake"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	deps, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build dependencies")
	}
	defer deps.Close()

	app := &handlers.App{
		Logger:   &logger,
		Intake:   intake.NewService(deps.Ledger, cfg.DefaultModel, &logger),
		Ticker:   deps.Ticker,
		Provider: deps.Provider,
		Pinger:   deps.Provider,
		Info: handlers.DebugInfo{
			HasAPIKey:     deps.Provider.Configured() || cfg.ArkAPIKey != "",
			HasBaseURL:    cfg.ArkBaseURL != "",
			BaseURL:       cfg.ArkBaseURL,
			LedgerDriver:  cfg.LedgerDriver,
			HasLedger:     deps.LedgerConfigured(),
			ArchiveDriver: cfg.ArchiveDriver,
		},
		ProxyClient: handlers.NewProxyClient(cfg.ProviderTimeout),
	}

	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
