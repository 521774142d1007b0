package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/auctionkiosk/internal/app"
	"github.com/alanyoungcy/auctionkiosk/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the kiosk API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("kiosk starting",
				slog.String("config", configPath),
				slog.Any("settings", config.RedactedConfig(cfg)),
			)

			application := app.New(cfg, logger)
			defer application.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			err := application.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kiosk exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("kiosk stopped")
			return nil
		},
	}
}
