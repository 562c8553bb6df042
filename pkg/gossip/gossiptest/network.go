// Package gossiptest provides an in-memory gossip network for tests.
package gossiptest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
)

var ErrUnreachable = errors.New("gossiptest: peer unreachable")

// Sent records one call to Send.
type Sent struct {
	From    string
	Addr    string
	Payload []byte
	Err     error
}

// Network connects in-memory transports. Every member sees every other
// member; payloads sent to a node's address land on its inbound channel.
type Network struct {
	mu      sync.Mutex
	nodes   map[string]*Transport // by addr
	order   []string
	down    map[string]bool
	extra   []gossip.Member
	sent    []Sent
	bufSize int
}

func NewNetwork() *Network {
	return &Network{
		nodes:   make(map[string]*Transport),
		down:    make(map[string]bool),
		bufSize: 64,
	}
}

// Transport is one node's view of the network.
type Transport struct {
	net     *Network
	name    string
	addr    string
	inbound chan []byte
}

var _ gossip.Transport = (*Transport)(nil)

// Join adds a node and returns its transport and inbound channel.
func (n *Network) Join(name, addr string) (*Transport, <-chan []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := &Transport{net: n, name: name, addr: addr, inbound: make(chan []byte, n.bufSize)}
	n.nodes[addr] = t
	n.order = append(n.order, addr)
	return t, t.inbound
}

// AddMember lists a member that has no transport behind it; sends to it
// fail unless it is later joined.
func (n *Network) AddMember(name, addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.extra = append(n.extra, gossip.Member{Name: name, Addr: addr})
}

// SetDown makes sends to addr fail.
func (n *Network) SetDown(addr string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[addr] = down
}

// Sent returns a copy of every send attempted so far, failed ones included.
func (n *Network) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

// SentTo returns the payloads successfully delivered to addr.
func (n *Network) SentTo(addr string) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out [][]byte
	for _, s := range n.sent {
		if s.Addr == addr && s.Err == nil {
			out = append(out, s.Payload)
		}
	}
	return out
}

func (t *Transport) LocalName() string { return t.name }

func (t *Transport) Members() []gossip.Member {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	out := make([]gossip.Member, 0, len(t.net.order)+len(t.net.extra))
	for _, addr := range t.net.order {
		out = append(out, gossip.Member{Name: t.net.nodes[addr].name, Addr: addr})
	}
	return append(out, t.net.extra...)
}

func (t *Transport) Send(addr string, payload []byte) error {
	t.net.mu.Lock()
	rec := Sent{From: t.name, Addr: addr, Payload: append([]byte(nil), payload...)}
	dst, ok := t.net.nodes[addr]
	if !ok || t.net.down[addr] {
		rec.Err = fmt.Errorf("%w: %s", ErrUnreachable, addr)
	}
	t.net.sent = append(t.net.sent, rec)
	t.net.mu.Unlock()

	if rec.Err != nil {
		return rec.Err
	}
	dst.inbound <- append([]byte(nil), payload...)
	return nil
}
