package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dastanhayama/whisper/internal/bootstrap"
)

func bootstrapCmd(configFlag *string) *cobra.Command {
	var maxConnFlag int

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Run Bootstrap Mode: overlay DHT server + relay, no chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFlag)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if err := bootstrap.Run(ctx, bootstrap.Options{
				ListenPort:     cfg.P2PPort,
				KeyPath:        cfg.SSHHostKeyPath,
				BootstrapPeers: cfg.BootstrapNodes,
				MaxConnections: maxConnFlag,
			}); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Int("ssh-port", 0, "unused in bootstrap mode, accepted for flag-set symmetry with serve")
	cmd.Flags().Int("p2p-port", 0, "overlay listen port (overrides P2P_PORT / config)")
	cmd.Flags().String("host-key", "", "path to this node's persistent identity key")
	cmd.Flags().String("room", "", "unused in bootstrap mode, accepted for flag-set symmetry with serve")
	cmd.Flags().StringSlice("bootstrap", nil, "bootstrap peer multiaddrs (overrides BOOTSTRAP_NODES / config)")
	cmd.Flags().IntVar(&maxConnFlag, "max-connections", 0, "connection cap in [10,1000]; any value outside that range, including 0, uses 1000")

	return cmd
}
