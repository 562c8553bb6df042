// Package gossip implements the peer-facing side of zephyrmesh: the wire
// protocol for replicated cache mutations, the Transport abstraction the
// replication engine talks to, a memberlist-backed Cluster that provides
// membership, failure detection and point-to-point delivery, and the
// Broadcast helper that fans a message out to every peer.
//
// Typical usage:
//
//	c, inbound, err := gossip.Start(gossip.Config{Name: "node1", BindAddr: "0.0.0.0:4001"}, logger)
//	if err != nil { ... }
//	defer c.Leave(time.Second)
//	_ = gossip.Broadcast(c, gossip.Insert("a", "1"), logger)
//
// Membership is read fresh on every broadcast; nothing is cached here.
package gossip
