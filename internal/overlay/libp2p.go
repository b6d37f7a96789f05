package overlay

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/relay"
	libp2pwebrtc "github.com/libp2p/go-libp2p/p2p/transport/webrtc"
	ma "github.com/multiformats/go-multiaddr"
)

// Config configures a LibP2P overlay adapter.
type Config struct {
	// ListenPort is the port number the WebSocket (TCP) and
	// WebRTC-direct (UDP) listeners bind on. 0 lets the OS choose.
	ListenPort int

	// PrivateKey is the ed25519 key driving this node's peer.ID. When
	// nil a fresh one is generated for this overlay instance, which one
	// process shares across all of its Sessions; Bootstrap Mode supplies
	// a persistent one (spec.md §4.9).
	PrivateKey ed25519.PrivateKey

	// BootstrapPeers are multiaddrs dialed at startup to join the mesh.
	BootstrapPeers []string

	// DHTServerMode runs the Kademlia DHT in server mode (Bootstrap
	// Mode) instead of client mode (ordinary chat-serving nodes).
	DHTServerMode bool

	// EnableRelayService runs a circuit-relay v2 *server*, reserving up
	// to MaxRelayReservations slots for other peers (Bootstrap Mode
	// only; chat-serving nodes only use relay as a client, which
	// go-libp2p enables automatically via AutoRelay/static addrs).
	EnableRelayService    bool
	MaxRelayReservations  int
}

const defaultMaxRelayReservations = 128

// LibP2P is the Overlay implementation backing real deployments: a
// go-libp2p host with Noise transport security, WebSocket and
// WebRTC-direct transports, go-libp2p-pubsub gossipsub, and an optional
// Kademlia DHT / circuit-relay v2 service.
type LibP2P struct {
	host host.Host
	ps   *pubsub.PubSub
	dht  *dht.IpfsDHT
	relay *relay.Relay

	mu     sync.Mutex
	topics map[string]*joinedTopic
	handler MessageHandler
	closed  bool
}

type joinedTopic struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	cancel context.CancelFunc
}

// New builds and starts a LibP2P overlay per cfg.
func New(ctx context.Context, cfg Config) (*LibP2P, error) {
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(
			fmt.Sprintf("/ip4/0.0.0.0/tcp/%d/ws", cfg.ListenPort),
			fmt.Sprintf("/ip4/0.0.0.0/udp/%d/webrtc-direct", cfg.ListenPort),
		),
		libp2p.Transport(libp2pwebrtc.New),
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
		libp2p.EnableRelay(),
		libp2p.EnableNATService(),
	}

	if cfg.PrivateKey != nil {
		priv, err := crypto.UnmarshalEd25519PrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("overlay: unmarshal identity key: %w", err)
		}
		opts = append(opts, libp2p.Identity(priv))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("overlay: start host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithFloodPublish(true),
		pubsub.WithDiscovery(nil),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("overlay: start gossipsub: %w", err)
	}

	mode := dht.ModeClient
	if cfg.DHTServerMode {
		mode = dht.ModeServer
	}
	kad, err := dht.New(ctx, h, dht.Mode(mode))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("overlay: start dht: %w", err)
	}

	l := &LibP2P{
		host:   h,
		ps:     ps,
		dht:    kad,
		topics: make(map[string]*joinedTopic),
	}

	if cfg.EnableRelayService {
		limit := cfg.MaxRelayReservations
		if limit <= 0 {
			limit = defaultMaxRelayReservations
		}
		r, err := relay.New(h, relay.WithResources(relay.Resources{
			MaxReservations: limit,
		}))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("overlay: start relay service: %w", err)
		}
		l.relay = r
	}

	for _, addrStr := range cfg.BootstrapPeers {
		l.dialBootstrap(ctx, addrStr)
	}

	for _, addr := range h.Addrs() {
		slog.Info("overlay: listening", "addr", fmt.Sprintf("%s/p2p/%s", addr, h.ID()))
	}

	return l, nil
}

func (l *LibP2P) dialBootstrap(ctx context.Context, addrStr string) {
	addr, err := ma.NewMultiaddr(addrStr)
	if err != nil {
		slog.Warn("overlay: bad bootstrap addr", "addr", addrStr, "err", err)
		return
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		slog.Warn("overlay: bad bootstrap addr", "addr", addrStr, "err", err)
		return
	}
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := l.host.Connect(dialCtx, *info); err != nil {
		slog.Warn("overlay: bootstrap dial failed", "peer", info.ID, "err", err)
		return
	}
	slog.Info("overlay: connected to bootstrap peer", "peer", info.ID)
}

// Subscribe joins topic's gossipsub mesh and spawns a goroutine that
// feeds every inbound message to the installed handler.
func (l *LibP2P) Subscribe(ctx context.Context, topicName string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if _, ok := l.topics[topicName]; ok {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	topic, err := l.ps.Join(topicName)
	if err != nil {
		return fmt.Errorf("overlay: join topic %q: %w", topicName, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return fmt.Errorf("overlay: subscribe topic %q: %w", topicName, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	jt := &joinedTopic{topic: topic, sub: sub, cancel: cancel}

	l.mu.Lock()
	l.topics[topicName] = jt
	l.mu.Unlock()

	go l.readLoop(subCtx, topicName, sub)
	return nil
}

func (l *LibP2P) readLoop(ctx context.Context, topicName string, sub *pubsub.Subscription) {
	selfID := l.host.ID()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return // context canceled on Unsubscribe/Close
		}
		if msg.ReceivedFrom == selfID {
			continue // emitSelf=false belt-and-braces; gossipsub already excludes this
		}
		l.mu.Lock()
		h := l.handler
		l.mu.Unlock()
		if h != nil {
			h(topicName, msg.ReceivedFrom.String(), msg.Data)
		}
	}
}

// Unsubscribe leaves topic and stops its read loop. Idempotent.
func (l *LibP2P) Unsubscribe(topicName string) error {
	l.mu.Lock()
	jt, ok := l.topics[topicName]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	delete(l.topics, topicName)
	l.mu.Unlock()

	jt.cancel()
	jt.sub.Cancel()
	return jt.topic.Close()
}

// Publish sends data on topic. ErrNoPeers replaces gossipsub's
// "no peers subscribed" condition, checked structurally via ListPeers
// rather than by matching the library's error text.
func (l *LibP2P) Publish(ctx context.Context, topicName string, data []byte) error {
	l.mu.Lock()
	jt, ok := l.topics[topicName]
	closed := l.closed
	l.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("overlay: publish to unsubscribed topic %q", topicName)
	}
	if len(jt.topic.ListPeers()) == 0 {
		return ErrNoPeers
	}
	if err := jt.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("overlay: publish to %q: %w", topicName, err)
	}
	return nil
}

// Peers returns the peer IDs gossipsub currently considers subscribed
// to topic.
func (l *LibP2P) Peers(topicName string) []string {
	l.mu.Lock()
	jt, ok := l.topics[topicName]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	peers := jt.topic.ListPeers()
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.String()
	}
	return ids
}

// OnMessage installs h as the single inbound listener for every topic.
func (l *LibP2P) OnMessage(h MessageHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// LocalID returns this node's libp2p peer.ID as a string.
func (l *LibP2P) LocalID() string {
	return l.host.ID().String()
}

// Close leaves every topic and shuts down the DHT, relay service (if
// any), and the underlying host.
func (l *LibP2P) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	topics := make([]string, 0, len(l.topics))
	for t := range l.topics {
		topics = append(topics, t)
	}
	l.mu.Unlock()

	for _, t := range topics {
		l.Unsubscribe(t)
	}
	if l.relay != nil {
		l.relay.Close()
	}
	l.dht.Close()
	return l.host.Close()
}

// ConnectedPeerCount returns the number of peers currently connected at
// the host level, independent of any topic — used by Bootstrap Mode's
// heartbeat (spec.md §4.9).
func (l *LibP2P) ConnectedPeerCount() int {
	return len(l.host.Network().Peers())
}

// Addrs returns this node's listen multiaddrs, each joined with its
// peer.ID into a dialable /p2p/ address.
func (l *LibP2P) Addrs() []string {
	id := l.host.ID()
	addrs := l.host.Addrs()
	result := make([]string, len(addrs))
	for i, a := range addrs {
		result[i] = fmt.Sprintf("%s/p2p/%s", a, id)
	}
	return result
}

var _ Overlay = (*LibP2P)(nil)
