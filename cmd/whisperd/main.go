// Command whisperd runs Whisper's SSH chat server (serve) or a
// standalone overlay node (bootstrap). Grounded on cmd/wt/main.go's
// cobra-root-plus-subcommand-function layout and cmd/wtd/main.go's
// signal.NotifyContext clean-shutdown shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dastanhayama/whisper/internal/config"
	"github.com/dastanhayama/whisper/internal/logger"
)

func main() {
	var configFlag string

	root := &cobra.Command{
		Use:   "whisperd",
		Short: "Whisper — anonymous, ephemeral peer-to-peer chat over SSH",
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "optional YAML config file")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, or error (overrides LOG_LEVEL / config)")
	root.PersistentFlags().String("log-file", "", "also append logs to this file (overrides LOG_FILE / config)")

	root.AddCommand(serveCmd(&configFlag), bootstrapCmd(&configFlag))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers flags over config.Load's defaults/YAML/env chain: a
// flag the user actually set (cmd.Flags().Changed) wins; an unset flag
// leaves the lower layer's value alone. It also initializes the package
// logger from the resolved LogLevel/LogFile, so every subcommand logs
// through the same configured handler before doing anything else.
func loadConfig(cmd *cobra.Command, configPath string) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("ssh-port") {
		cfg.SSHPort, _ = cmd.Flags().GetInt("ssh-port")
	}
	if cmd.Flags().Changed("p2p-port") {
		cfg.P2PPort, _ = cmd.Flags().GetInt("p2p-port")
	}
	if cmd.Flags().Changed("host-key") {
		cfg.SSHHostKeyPath, _ = cmd.Flags().GetString("host-key")
	}
	if cmd.Flags().Changed("room") {
		cfg.DefaultRoom, _ = cmd.Flags().GetString("room")
	}
	if cmd.Flags().Changed("bootstrap") {
		peers, _ := cmd.Flags().GetStringSlice("bootstrap")
		cfg.BootstrapNodes = peers
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile, _ = cmd.Flags().GetString("log-file")
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return config.Config{}, fmt.Errorf("init logger: %w", err)
	}

	return cfg, nil
}
