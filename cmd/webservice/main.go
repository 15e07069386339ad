package main

import (
	"context"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/app"
	"github.com/rs/zerolog/log"
)

func main() {
	config := config.CreateNewConfig()
	app.InitLogger(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Create(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize checkout service")
	}

	if err := a.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Checkout service stopped")
	}
}
