// Package replication runs the control loop that keeps a node's cache in
// step with its peers. One goroutine multiplexes the probe timer, payloads
// arriving from peers and mutations already applied locally, and handles
// them one at a time.
package replication

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
)

// DefaultProbeInterval is used when Config.ProbeInterval is not positive.
const DefaultProbeInterval = 3 * time.Second

// Config tunes an Engine.
type Config struct {
	ProbeInterval time.Duration
}

// Engine replicates cache mutations between this node and its peers.
type Engine struct {
	cache     kv.Cache
	transport gossip.Transport
	inbound   <-chan []byte
	mutations <-chan gossip.Message
	interval  time.Duration
	logger    *zap.Logger
}

// New wires an engine. inbound carries raw peer payloads; mutations carries
// Insert/Remove messages whose effect is already in cache.
func New(
	cfg Config,
	cache kv.Cache,
	transport gossip.Transport,
	inbound <-chan []byte,
	mutations <-chan gossip.Message,
	logger *zap.Logger,
) *Engine {
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Engine{
		cache:     cache,
		transport: transport,
		inbound:   inbound,
		mutations: mutations,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled. Errors from a single peer or payload
// are logged and never stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	inbound, mutations := e.inbound, e.mutations
	e.logger.Info("replication engine started", zap.Duration("probe_interval", e.interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("replication engine stopped")
			return ctx.Err()

		case <-ticker.C:
			e.probe()

		case payload, ok := <-inbound:
			if !ok {
				e.logger.Warn("inbound channel closed")
				inbound = nil
				continue
			}
			e.receive(payload)

		case msg, ok := <-mutations:
			if !ok {
				e.logger.Warn("mutation channel closed")
				mutations = nil
				continue
			}
			e.forward(msg)
		}
	}
}

func (e *Engine) probe() {
	telemetry.Probes.Inc()
	if err := gossip.Broadcast(e.transport, gossip.Ping(), e.logger); err != nil {
		e.logger.Debug("ping broadcast incomplete", zap.Error(err))
	}
}

func (e *Engine) receive(payload []byte) {
	msg, err := Apply(e.cache, payload, e.logger)
	if err != nil {
		if errors.Is(err, gossip.ErrDecode) {
			telemetry.DecodeErrors.Inc()
		}
		e.logger.Warn("dropping peer payload", zap.Int("bytes", len(payload)), zap.Error(err))
		return
	}
	telemetry.MessagesReceived.WithLabelValues(msg.Command.String()).Inc()
}

func (e *Engine) forward(msg gossip.Message) {
	if msg.Command == gossip.CmdPing {
		e.logger.Warn("ignoring ping on mutation channel")
		return
	}
	telemetry.MutationsBroadcast.WithLabelValues(msg.Command.String()).Inc()
	if err := gossip.Broadcast(e.transport, msg, e.logger); err != nil {
		e.logger.Warn("mutation broadcast incomplete",
			zap.Stringer("cmd", msg.Command), zap.String("key", msg.Key), zap.Error(err))
	}
}
