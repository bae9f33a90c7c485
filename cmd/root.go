package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"Soundscape/config"
	"Soundscape/logger"
	"Soundscape/server"
)

var rootCmd = &cobra.Command{
	Use:   "soundscape",
	Short: "Soundscape mixes layered ambient sounds into one stereo output.",
	Long: `Soundscape is an ambient sound mixer. It keeps a set of tracks, each
with its own volume, pan, loop, fade, automation and spawn settings, and
plays them through one audio output. Without a subcommand it starts the
HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// setup loads configuration and starts the logger; every command calls it
// first.
func setup() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.DefaultConfig(cfg.LogLevel, cfg.LogFile))
	return cfg
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServer() error {
	cfg := setup()
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()
	logger.Info("Starting Soundscape server...")
	return server.Start(ctx, cfg)
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
