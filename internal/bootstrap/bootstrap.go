// Package bootstrap implements Bootstrap Mode (spec.md §4.9): a process
// that runs the overlay alone, with no Session/Directory/Router above
// it, so other nodes have a stable DHT server and circuit-relay to
// rendezvous through. Grounded on internal/auth/keypair.go's
// load-or-generate-and-persist key file idiom (adapted here from X25519
// to Ed25519, the overlay adapter's native key type) and cmd/wtd's
// signal.NotifyContext clean-shutdown daemon shape.
package bootstrap

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dastanhayama/whisper/internal/overlay"
	"golang.org/x/time/rate"
)

const heartbeatInterval = 60 * time.Second

// Options configures a Bootstrap Mode run.
type Options struct {
	ListenPort     int
	KeyPath        string
	BootstrapPeers []string
	MaxConnections int
}

const (
	minConnections     = 10
	maxConnectionsHard = 1000
)

// Run starts Bootstrap Mode and blocks until ctx is canceled, logging
// lifecycle lines (listening addresses, a 60-second connection-count
// heartbeat) along the way. Individual peer connect/disconnect events
// are not logged; only the heartbeat's peer count reflects them. It
// shuts down cleanly on return.
func Run(ctx context.Context, opts Options) error {
	priv, err := loadOrGenerateIdentity(opts.KeyPath)
	if err != nil {
		return fmt.Errorf("bootstrap: identity: %w", err)
	}

	limit := opts.MaxConnections
	if limit < minConnections || limit > maxConnectionsHard {
		limit = maxConnectionsHard
	}

	ov, err := overlay.New(ctx, overlay.Config{
		ListenPort:           opts.ListenPort,
		PrivateKey:           priv,
		BootstrapPeers:       opts.BootstrapPeers,
		DHTServerMode:        true,
		EnableRelayService:   true,
		MaxRelayReservations: 128,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: start overlay: %w", err)
	}
	defer ov.Close()

	for _, addr := range ov.Addrs() {
		slog.Info("bootstrap: listening", "addr", addr)
	}

	// The connection cap is enforced as a soft ceiling logged via the
	// heartbeat rather than refused dials — go-libp2p has no per-call
	// "reject this connection" hook at this layer; rate.NewLimiter
	// (golang.org/x/time/rate) throttles how often we log a warning
	// about being over it, so a flappy peer count doesn't spam the log.
	warnLimiter := rate.NewLimiter(rate.Every(heartbeatInterval), 1)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("bootstrap: shutting down")
			return nil
		case <-ticker.C:
			n := ov.ConnectedPeerCount()
			slog.Info("bootstrap: heartbeat", "connected_peers", n, "max_connections", limit)
			if n > limit && warnLimiter.Allow() {
				slog.Warn("bootstrap: connection count above configured cap", "connected_peers", n, "max_connections", limit)
			}
		}
	}
}

// loadOrGenerateIdentity loads an Ed25519 private key from path if it
// exists, or generates and persists a fresh one. An empty path always
// generates a fresh, unpersisted key.
func loadOrGenerateIdentity(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}

	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		raw, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode existing key: %w", err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("existing key at %s has wrong size", path)
		}
		return ed25519.PrivateKey(raw), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create key dir: %w", err)
		}
	}
	encoded := base64.StdEncoding.EncodeToString(priv)
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}

	return priv, nil
}
