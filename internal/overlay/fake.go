package overlay

import (
	"context"
	"sync"
)

// Network is a shared in-process broker that several Fake peers attach
// to, simulating the subset of gossipsub behavior the core depends on:
// per-topic subscriber sets, "no peers" on an empty topic, and fan-out
// delivery to every other subscriber. It exists so package-level tests
// can exercise multi-session scenarios (spec.md §8's "two sessions, one
// room" properties) without a live libp2p network.
type Network struct {
	mu     sync.Mutex
	topics map[string]map[*Fake]struct{}
}

// NewNetwork constructs an empty shared broker.
func NewNetwork() *Network {
	return &Network{topics: make(map[string]map[*Fake]struct{})}
}

// NewPeer attaches a new Fake overlay identified by id to the network.
func (n *Network) NewPeer(id string) *Fake {
	return &Fake{net: n, id: id, subscribed: make(map[string]bool)}
}

func (n *Network) subscribe(topic string, f *Fake) {
	n.mu.Lock()
	defer n.mu.Unlock()
	set, ok := n.topics[topic]
	if !ok {
		set = make(map[*Fake]struct{})
		n.topics[topic] = set
	}
	set[f] = struct{}{}
}

func (n *Network) unsubscribe(topic string, f *Fake) {
	n.mu.Lock()
	defer n.mu.Unlock()
	set, ok := n.topics[topic]
	if !ok {
		return
	}
	delete(set, f)
	if len(set) == 0 {
		delete(n.topics, topic)
	}
}

func (n *Network) subscribers(topic string, exclude *Fake) []*Fake {
	n.mu.Lock()
	defer n.mu.Unlock()
	set := n.topics[topic]
	result := make([]*Fake, 0, len(set))
	for f := range set {
		if f != exclude {
			result = append(result, f)
		}
	}
	return result
}

// Fake is an in-memory Overlay attached to a Network. It never touches
// the real network and delivers published messages synchronously to
// every other subscriber on the topic.
type Fake struct {
	net *Network
	id  string

	mu         sync.Mutex
	subscribed map[string]bool
	handler    MessageHandler
	closed     bool
}

// Subscribe joins topic on the shared network.
func (f *Fake) Subscribe(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.subscribed[topic] {
		return nil
	}
	f.subscribed[topic] = true
	f.net.subscribe(topic, f)
	return nil
}

// Unsubscribe leaves topic. Idempotent.
func (f *Fake) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.subscribed[topic] {
		return nil
	}
	delete(f.subscribed, topic)
	f.net.unsubscribe(topic, f)
	return nil
}

// Publish delivers data to every other subscriber of topic, or returns
// ErrNoPeers if there are none.
func (f *Fake) Publish(ctx context.Context, topic string, data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.mu.Unlock()

	peers := f.net.subscribers(topic, f)
	if len(peers) == 0 {
		return ErrNoPeers
	}
	for _, p := range peers {
		p.mu.Lock()
		h := p.handler
		p.mu.Unlock()
		if h != nil {
			h(topic, f.id, data)
		}
	}
	return nil
}

// Peers returns the ids of every other subscriber of topic.
func (f *Fake) Peers(topic string) []string {
	peers := f.net.subscribers(topic, f)
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.id)
	}
	return ids
}

// OnMessage installs h as this peer's inbound handler.
func (f *Fake) OnMessage(h MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// LocalID returns this peer's id as given to Network.NewPeer.
func (f *Fake) LocalID() string {
	return f.id
}

// Close unsubscribes from every topic this peer joined.
func (f *Fake) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	topics := make([]string, 0, len(f.subscribed))
	for t := range f.subscribed {
		topics = append(topics, t)
	}
	f.mu.Unlock()

	for _, t := range topics {
		f.Unsubscribe(t)
	}
	return nil
}

var _ Overlay = (*Fake)(nil)
