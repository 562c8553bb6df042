package gossip

// Member is one entry of the membership view.
type Member struct {
	Name string `json:"name"`
	Addr string `json:"addr"` // host:port of the member's gossip transport
}

// Transport is what the replication engine needs from membership and
// networking: who is out there, and a way to reach them.
// Inbound payloads are delivered separately on a channel.
type Transport interface {
	// LocalName is the member name of this node.
	LocalName() string
	// Members returns a best-effort snapshot of the current view; it may be
	// empty and may include the local node.
	Members() []Member
	// Send delivers payload to the member listening on addr.
	Send(addr string, payload []byte) error
}
