package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/credential-store/bootstrap"
	"github.com/ruteri/credential-store/cmd/flags"
	"github.com/ruteri/credential-store/config"
	"github.com/ruteri/credential-store/credentials"
	"github.com/ruteri/credential-store/httpserver"
	"github.com/ruteri/credential-store/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "credserver",
		Usage: "Serve the credential store API on top of a hierarchical key-value store",
		Flags: append(append(append([]cli.Flag{}, flags.StoreFlags...), flags.ServerFlags...), flags.LogFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			cfg, err := config.New(flags.StoreParams(cCtx))
			if err != nil {
				logger.Error("Invalid configuration", "err", err)
				return err
			}
			logger.Info("Starting credential store", "config", cfg.String())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			factory := storage.NewClientFactory(logger)
			client, err := factory.MirroredClientFor(ctx, cfg.StoreLocation(), cfg.MirrorLocations())
			if err != nil {
				logger.Error("Failed to create store client", "err", err, "store", cfg.StoreLocation().Redacted())
				return err
			}
			logger.Info("Using key-value store", "backend", client.Name(), "location", client.LocationURI())

			// The store applies its own per-call deadline; the client-level one
			// also bounds the bootstrap sequence.
			client = storage.WithTimeout(client, cfg.CallTimeout())
			store := credentials.NewStore(client, logger, credentials.WithCallTimeout(cfg.CallTimeout()))

			sequencer := bootstrap.NewSequencer(client, store, cfg, logger)
			if err := sequencer.Run(ctx); err != nil {
				logger.Error("Bootstrap failed", "err", err, "state", sequencer.State().String())
				return err
			}

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), httpserver.NewHandler(store, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
