// commands.go contains the cobra command definitions and their flag
// configurations. Each builder wires a command to its handler.
package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "parley.yaml"

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that runs the gateway.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Parley gateway",
		Long: `Start the gateway with all configured transports.

The gateway will:
1. Load configuration from the specified file (or parley.yaml)
2. Open the channel store and connect to the event bus
3. Reconnect every paired channel of each enabled transport
4. Serve pairing requests and bridge chat traffic until stopped

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  parley serve

  # Start with custom config
  parley serve --config /etc/parley/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Channel Commands
// =============================================================================

// buildChannelCmd creates the "channel" command group.
func buildChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage message channels",
	}
	cmd.AddCommand(
		buildChannelListCmd(),
		buildChannelCreateCmd(),
		buildChannelRemoveCmd(),
		buildChannelPairCmd(),
		buildChannelUnpairCmd(),
	)
	return cmd
}

func buildChannelListCmd() *cobra.Command {
	var (
		configPath  string
		channelType string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannelList(cmd.Context(), configPath, channelType)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&channelType, "type", "t", "", "Filter by channel type")
	return cmd
}

func buildChannelCreateCmd() *cobra.Command {
	var (
		configPath  string
		name        string
		contact     string
		channelType string
		userID      string
		botID       string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a channel",
		Example: `  parley channel create --name "Support" --type whatsapp \
    --user 4f7c... --bot 9a1e...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannelCreate(cmd.Context(), configPath, name, contact, channelType, userID, botID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Channel display name")
	cmd.Flags().StringVar(&contact, "contact", "", "Contact shown for the channel")
	cmd.Flags().StringVarP(&channelType, "type", "t", "", "Channel type, e.g. whatsapp")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owning user id")
	cmd.Flags().StringVarP(&botID, "bot", "b", "", "Bot id the channel delivers to")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("bot")
	return cmd
}

func buildChannelRemoveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "remove <channel-id>",
		Short: "Remove a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannelRemove(cmd.Context(), configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func buildChannelPairCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "pair <channel-id>",
		Short: "Request pairing for a channel and render the code",
		Long: `Request pairing over the bus and wait for the transport to answer
with a pairing artifact. Visual codes are rendered as a QR code in the
terminal; raw codes are printed verbatim.

A running "parley serve" instance must be reachable over the same bus to
serve the request.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannelPair(cmd.Context(), configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func buildChannelUnpairCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "unpair <channel-id>",
		Short: "Unpair a channel's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannelUnpair(cmd.Context(), configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// User / Bot Commands
// =============================================================================

func buildUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(buildUserCreateCmd())
	return cmd
}

func buildUserCreateCmd() *cobra.Command {
	var (
		configPath string
		name       string
		email      string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(cmd.Context(), configPath, name, email)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "User name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "User email")
	cmd.MarkFlagRequired("name")
	return cmd
}

func buildBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Manage bots",
	}
	cmd.AddCommand(buildBotCreateCmd())
	return cmd
}

func buildBotCreateCmd() *cobra.Command {
	var (
		configPath string
		name       string
		userID     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBotCreate(cmd.Context(), configPath, name, userID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Bot name")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owning user id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("user")
	return cmd
}
