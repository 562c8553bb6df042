package node

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
)

const DefaultMutationBuffer = 100

// ErrClosed is returned once the node stopped accepting mutations.
var ErrClosed = errors.New("node: mutation channel closed")

// Membership is the read-only view /info reports.
type Membership interface {
	Members() []gossip.Member
}

// Node is the mutation ingress: it applies writes to the local cache and
// queues them for the replication engine.
type Node struct {
	name    string
	kv      kv.Cache
	members Membership
	logger  *zap.Logger

	mu        sync.RWMutex
	closed    bool
	mutations chan gossip.Message
}

func NewNode(name string, cache kv.Cache, members Membership, buffer int, logger *zap.Logger) *Node {
	if buffer <= 0 {
		buffer = DefaultMutationBuffer
	}
	return &Node{
		name:      name,
		kv:        cache,
		members:   members,
		logger:    logger,
		mutations: make(chan gossip.Message, buffer),
	}
}

// Mutations is consumed by the replication engine.
func (n *Node) Mutations() <-chan gossip.Message {
	return n.mutations
}

func (n *Node) Name() string {
	return n.name
}

// Insert applies key=value locally, then queues the Insert for broadcast.
// The local write stands even when queueing fails.
func (n *Node) Insert(ctx context.Context, key, value string) error {
	n.kv.Insert(key, value)
	return n.emit(ctx, gossip.Insert(key, value))
}

// Remove deletes key locally, then queues the Remove for broadcast.
func (n *Node) Remove(ctx context.Context, key string) error {
	n.kv.Remove(key)
	return n.emit(ctx, gossip.Remove(key))
}

func (n *Node) Get(key string) (string, error) {
	return n.kv.Get(key)
}

// Close stops accepting mutations and closes the channel.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.mutations)
	}
}

// emit blocks while the channel is full, until ctx is done.
func (n *Node) emit(ctx context.Context, msg gossip.Message) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	select {
	case n.mutations <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
