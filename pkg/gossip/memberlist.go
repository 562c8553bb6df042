package gossip

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
)

const defaultInboundBuffer = 1000

// Config describes how this node takes part in the cluster.
type Config struct {
	Name          string
	BindAddr      string   // host:port for gossip UDP/TCP
	AdvertiseAddr string   // optional host:port announced to peers
	JoinAddrs     []string // seeds; empty means standalone

	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	SuspicionMult int

	InboundBuffer int
}

// Cluster is a Transport backed by hashicorp/memberlist. Liveness, suspicion
// and dead-node handling are memberlist's business.
type Cluster struct {
	list   *memberlist.Memberlist
	name   string
	logger *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

var _ Transport = (*Cluster)(nil)

// Start creates the memberlist, joins the configured seeds and returns the
// channel on which user messages from peers are delivered in arrival order.
func Start(cfg Config, logger *zap.Logger) (*Cluster, <-chan []byte, error) {
	if cfg.Name == "" {
		return nil, nil, errors.New("gossip: node name is required")
	}
	host, port, err := ParseHostPort(cfg.BindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("gossip bind: %w", err)
	}
	for _, a := range cfg.JoinAddrs {
		if _, _, err := ParseHostPort(a); err != nil {
			return nil, nil, fmt.Errorf("invalid join address: %w", err)
		}
	}

	mc := memberlist.DefaultLANConfig()
	mc.Name = cfg.Name
	mc.BindAddr = host
	mc.BindPort = port
	mc.AdvertisePort = port
	if cfg.AdvertiseAddr != "" {
		ah, ap, err := ParseHostPort(cfg.AdvertiseAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("gossip advertise: %w", err)
		}
		mc.AdvertiseAddr = ah
		mc.AdvertisePort = ap
	}
	if cfg.ProbeInterval > 0 {
		mc.ProbeInterval = cfg.ProbeInterval
	}
	if cfg.ProbeTimeout > 0 {
		mc.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.SuspicionMult > 0 {
		mc.SuspicionMult = cfg.SuspicionMult
	}
	mc.Logger = zap.NewStdLog(logger.Named("memberlist"))

	size := cfg.InboundBuffer
	if size <= 0 {
		size = defaultInboundBuffer
	}
	inbound := make(chan []byte, size)

	c := &Cluster{
		name:   cfg.Name,
		logger: logger,
		done:   make(chan struct{}),
	}
	mc.Delegate = &delegate{inbound: inbound, done: c.done, logger: logger}
	mc.Events = &events{logger: logger}

	list, err := memberlist.Create(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("gossip create: %w", err)
	}
	c.list = list

	local := list.LocalNode()
	logger.Info("local node", zap.String("name", local.Name), zap.String("addr", local.Address()))

	if err := c.join(cfg.JoinAddrs); err != nil {
		_ = c.Shutdown()
		return nil, nil, err
	}
	return c, inbound, nil
}

func (c *Cluster) join(seeds []string) error {
	if len(seeds) == 0 {
		c.logger.Info("no join address specified, running as a standalone node")
		return nil
	}
	n, err := c.list.Join(seeds)
	if err != nil {
		return fmt.Errorf("join %v: %w", seeds, err)
	}
	c.logger.Info("joined cluster", zap.Strings("seeds", seeds), zap.Int("contacted", n))
	return nil
}

// LocalName is the memberlist name of this node.
func (c *Cluster) LocalName() string { return c.name }

// LocalAddr is the advertised gossip address of this node.
func (c *Cluster) LocalAddr() string { return c.list.LocalNode().Address() }

// Members returns the alive members, this node included.
func (c *Cluster) Members() []Member {
	nodes := c.list.Members()
	out := make([]Member, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Member{Name: n.Name, Addr: n.Address()})
	}
	return out
}

// Send delivers payload to the member at addr over memberlist's reliable
// (TCP) user-message path.
func (c *Cluster) Send(addr string, payload []byte) error {
	host, port, err := ParseHostPort(addr)
	if err != nil {
		return err
	}
	ip, err := resolveIP(host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	return c.list.SendReliable(&memberlist.Node{Addr: ip, Port: uint16(port)}, payload)
}

// Leave announces departure and waits up to timeout for it to propagate,
// then shuts the memberlist down.
func (c *Cluster) Leave(timeout time.Duration) error {
	err := c.list.Leave(timeout)
	if serr := c.Shutdown(); err == nil {
		err = serr
	}
	return err
}

// Shutdown stops the memberlist without announcing departure and releases
// any NotifyMsg call blocked on a full inbound channel. Safe to call twice.
func (c *Cluster) Shutdown() error {
	c.stopOnce.Do(func() { close(c.done) })
	if c.list == nil {
		return nil
	}
	return c.list.Shutdown()
}

// delegate hands user messages to the replication engine.
type delegate struct {
	inbound chan<- []byte
	done    <-chan struct{}
	logger  *zap.Logger
}

func (d *delegate) NodeMeta(int) []byte { return nil }

// NotifyMsg blocks when the inbound buffer is full.
func (d *delegate) NotifyMsg(b []byte) {
	if len(b) == 0 {
		return
	}
	// memberlist reuses b after we return
	msg := append([]byte(nil), b...)
	d.logger.Debug("received message", zap.Int("bytes", len(msg)))
	select {
	case d.inbound <- msg:
	case <-d.done:
	}
}

func (d *delegate) GetBroadcasts(int, int) [][]byte { return nil }
func (d *delegate) LocalState(bool) []byte          { return nil }
func (d *delegate) MergeRemoteState([]byte, bool)   {}

type events struct {
	logger *zap.Logger
}

func (e *events) NotifyJoin(n *memberlist.Node) {
	telemetry.MembershipEvents.WithLabelValues("join").Inc()
	e.logger.Info("node joined the cluster", zap.String("name", n.Name), zap.String("addr", n.Address()))
}

func (e *events) NotifyLeave(n *memberlist.Node) {
	telemetry.MembershipEvents.WithLabelValues("leave").Inc()
	e.logger.Info("node left the cluster", zap.String("name", n.Name), zap.String("addr", n.Address()))
}

func (e *events) NotifyUpdate(n *memberlist.Node) {
	telemetry.MembershipEvents.WithLabelValues("update").Inc()
	e.logger.Debug("node updated", zap.String("name", n.Name), zap.String("addr", n.Address()),
		zap.String("port", strconv.Itoa(int(n.Port))))
}
