package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dastanhayama/whisper/internal/directory"
	"github.com/dastanhayama/whisper/internal/overlay"
	"github.com/dastanhayama/whisper/internal/room"
	"github.com/dastanhayama/whisper/internal/sshui"
)

func serveCmd(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SSH-facing chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFlag)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			ov, err := overlay.New(ctx, overlay.Config{
				ListenPort:     cfg.P2PPort,
				BootstrapPeers: cfg.BootstrapNodes,
			})
			if err != nil {
				return fmt.Errorf("start overlay: %w", err)
			}
			defer ov.Close()

			router := room.New(ov)
			dir := directory.New(cfg.MaxMessagesInMem)

			srv, err := sshui.NewServer(cfg, dir, router)
			if err != nil {
				return fmt.Errorf("build ssh server: %w", err)
			}

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().Int("ssh-port", 0, "SSH listen port (overrides SSH_PORT / config)")
	cmd.Flags().Int("p2p-port", 0, "overlay listen port (overrides P2P_PORT / config)")
	cmd.Flags().String("host-key", "", "path to the SSH host key (overrides SSH_HOST_KEY_PATH / config)")
	cmd.Flags().String("room", "", "default room new connections join (overrides DEFAULT_ROOM / config)")
	cmd.Flags().StringSlice("bootstrap", nil, "bootstrap peer multiaddrs (overrides BOOTSTRAP_NODES / config)")

	return cmd
}
