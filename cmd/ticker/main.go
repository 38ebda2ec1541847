// Command ticker drives the dispatcher on a cron schedule for deployments
// where no kiosk is polling the tick endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"boothvideo/internal/bootstrap"
	"boothvideo/internal/dispatcher"
	"boothvideo/internal/infra"
)

func main() {
	once := flag.Bool("once", false, "run a single tick and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "ticker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ticker: failed to build dependencies")
	}
	defer deps.Close()

	run := func() {
		report, err := deps.Ticker.Tick(ctx)
		switch {
		case errors.Is(err, dispatcher.ErrTickInProgress):
			logger.Debug().Msg("ticker: tick already running elsewhere")
		case err != nil:
			logger.Error().Err(err).Msg("ticker: tick failed")
		default:
			logger.Info().
				Int("processed", report.Processed).
				Int("started", report.Started).
				Int("archived", report.Archived).
				Int("errors", len(report.Errors)).
				Msg("ticker: tick finished")
		}
	}

	if *once {
		run()
		return
	}

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.TickSchedule, run); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.TickSchedule).Msg("ticker: invalid schedule")
	}
	c.Start()
	logger.Info().Str("schedule", cfg.TickSchedule).Msg("ticker: started")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("ticker: stopped")
}
