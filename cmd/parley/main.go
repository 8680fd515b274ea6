// Package main provides the CLI entry point for the Parley channel
// gateway.
//
// Parley bridges bots to external messaging platforms. It keeps one live
// connection per paired channel, relays pairing artifacts (QR codes) to
// whoever requests them, and moves chat traffic between the transports
// and the bot runtime over a durable topic bus.
//
// # Basic Usage
//
// Start the gateway:
//
//	parley serve --config parley.yaml
//
// Create and pair a WhatsApp channel:
//
//	parley channel create --name "Support" --type whatsapp --user u1 --bot b1
//	parley channel pair <channel-id>
//
// The pair and unpair commands talk to the serve process over the bus, so
// both processes must share an AMQP broker (bus.driver: amqp).
//
// # Environment Variables
//
// Any ${VAR} reference inside the configuration file is expanded from the
// environment before parsing.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Parley - messaging channel gateway",
		Long: `Parley connects bots to external messaging platforms.

Supported transports: WhatsApp
Traffic between components travels over a durable topic bus (RabbitMQ
or in-process for single-node runs).`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChannelCmd(),
		buildUserCmd(),
		buildBotCmd(),
	)

	return rootCmd
}
