// Package cli is the kioskd command line: the API daemon plus one-off
// operator commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/auctionkiosk/internal/config"
)

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kioskd",
		Short: "Auction kiosk bidder registration and bidding service",
		Long: `kioskd registers bidders for an auction and places their bids from an
in-venue kiosk. It serves the kiosk HTTP and WebSocket API and offers
operator commands for bidder support and run exports.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", configPath, err)
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded
			logger = newLogger(cfg.LogLevel)
			slog.SetDefault(logger)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML configuration file (env overrides: KIOSK_*)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSendDetailsCmd())
	rootCmd.AddCommand(newExportRunsCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
