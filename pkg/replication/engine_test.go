package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/gossip/gossiptest"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
)

// testNode is one cluster member: a cache, a mutation channel standing in
// for the HTTP ingress, and a running engine.
type testNode struct {
	cache     kv.Cache
	mutations chan gossip.Message
	addr      string
}

// insert mimics the ingress: apply locally, then hand off for broadcast.
func (n *testNode) insert(key, value string) {
	n.cache.Insert(key, value)
	n.mutations <- gossip.Insert(key, value)
}

func (n *testNode) remove(key string) {
	n.cache.Remove(key)
	n.mutations <- gossip.Remove(key)
}

func startNode(t *testing.T, net *gossiptest.Network, name, addr string, interval time.Duration) *testNode {
	t.Helper()
	cache, err := kv.NewLRU(128)
	require.NoError(t, err)

	tr, inbound := net.Join(name, addr)
	n := &testNode{cache: cache, mutations: make(chan gossip.Message, 100), addr: addr}
	e := New(Config{ProbeInterval: interval}, cache, tr, inbound, n.mutations, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	return n
}

func eventuallyValue(t *testing.T, c kv.Cache, key, want string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		v, err := c.Get(key)
		return err == nil && v == want
	}, time.Second, 5*time.Millisecond)
}

func eventuallyMissing(t *testing.T, c kv.Cache, key string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		_, err := c.Get(key)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_InsertPropagates(t *testing.T) {
	net := gossiptest.NewNetwork()
	x := startNode(t, net, "x", "10.0.0.1:4001", time.Hour)
	y := startNode(t, net, "y", "10.0.0.2:4001", time.Hour)

	x.insert("a", "1")

	v, err := x.cache.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	eventuallyValue(t, y.cache, "a", "1")
}

func TestEngine_RemovePropagates(t *testing.T) {
	net := gossiptest.NewNetwork()
	x := startNode(t, net, "x", "10.0.0.1:4001", time.Hour)
	y := startNode(t, net, "y", "10.0.0.2:4001", time.Hour)

	x.insert("a", "1")
	eventuallyValue(t, y.cache, "a", "1")

	x.remove("a")
	_, err := x.cache.Get("a")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	eventuallyMissing(t, y.cache, "a")
}

func TestEngine_MutationNotReappliedLocally(t *testing.T) {
	net := gossiptest.NewNetwork()
	x := startNode(t, net, "x", "10.0.0.1:4001", time.Hour)
	startNode(t, net, "y", "10.0.0.2:4001", time.Hour)

	// The event arrives without a local apply: the engine must only forward.
	x.mutations <- gossip.Insert("only-remote", "v")

	assert.Eventually(t, func() bool {
		return len(net.SentTo("10.0.0.2:4001")) == 1
	}, time.Second, 5*time.Millisecond)
	_, err := x.cache.Get("only-remote")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestEngine_PingDoesNotTouchCache(t *testing.T) {
	net := gossiptest.NewNetwork()
	sender, _ := net.Join("probe", "10.0.0.9:4001")
	y := startNode(t, net, "y", "10.0.0.2:4001", time.Hour)
	y.cache.Insert("a", "1")
	y.cache.Insert("b", "2")

	require.NoError(t, sender.Send(y.addr, gossip.Encode(gossip.Ping())))
	// an insert sent afterwards proves the ping was consumed first
	require.NoError(t, sender.Send(y.addr, gossip.Encode(gossip.Insert("marker", "m"))))
	eventuallyValue(t, y.cache, "marker", "m")

	assert.Equal(t, 3, y.cache.Len())
	for k, want := range map[string]string{"a": "1", "b": "2"} {
		v, err := y.cache.Get(k)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestEngine_DecodeFailureIsolation(t *testing.T) {
	net := gossiptest.NewNetwork()
	sender, _ := net.Join("peer", "10.0.0.9:4001")
	y := startNode(t, net, "y", "10.0.0.2:4001", time.Hour)

	require.NoError(t, sender.Send(y.addr, []byte{0xde, 0xad, 0xbe, 0xef}))
	require.NoError(t, sender.Send(y.addr, gossip.Encode(gossip.Insert("k", "v"))))

	eventuallyValue(t, y.cache, "k", "v")
	assert.Equal(t, 1, y.cache.Len())
}

func TestEngine_ProbesWithoutTraffic(t *testing.T) {
	const interval = 20 * time.Millisecond

	net := gossiptest.NewNetwork()
	startNode(t, net, "x", "10.0.0.1:4001", interval)
	net.Join("y", "10.0.0.2:4001")

	assert.Eventually(t, func() bool {
		pings := 0
		for _, p := range net.SentTo("10.0.0.2:4001") {
			m, err := gossip.Decode(p)
			if err == nil && m == gossip.Ping() {
				pings++
			}
		}
		return pings >= 2
	}, 2*time.Second, interval/2)
}

func TestEngine_PingOnMutationChannelIgnored(t *testing.T) {
	net := gossiptest.NewNetwork()
	x := startNode(t, net, "x", "10.0.0.1:4001", time.Hour)
	net.Join("y", "10.0.0.2:4001")

	x.mutations <- gossip.Ping()
	x.mutations <- gossip.Remove("k")

	assert.Eventually(t, func() bool {
		return len(net.Sent()) > 0
	}, time.Second, 5*time.Millisecond)

	sent := net.Sent()
	require.Len(t, sent, 1)
	m, err := gossip.Decode(sent[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, gossip.Remove("k"), m)
}

func TestEngine_ClosedSourcesKeepLoopAlive(t *testing.T) {
	net := gossiptest.NewNetwork()
	tr, _ := net.Join("x", "10.0.0.1:4001")
	net.Join("y", "10.0.0.2:4001")

	cache, err := kv.NewLRU(8)
	require.NoError(t, err)
	inbound := make(chan []byte)
	mutations := make(chan gossip.Message)
	close(inbound)
	close(mutations)

	e := New(Config{ProbeInterval: 10 * time.Millisecond}, cache, tr, inbound, mutations, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// probes keep flowing after both channels are closed
	assert.Eventually(t, func() bool {
		return len(net.SentTo("10.0.0.2:4001")) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	e := New(Config{}, nil, nil, nil, nil, zap.NewNop())
	assert.Equal(t, DefaultProbeInterval, e.interval)
}
