package gossip

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
)

// Broadcast sends msg to every member of the current view except the local
// node. Sends are sequential and fire-and-forget: a failed peer is logged and
// skipped, never retried, and does not stop delivery to the others. The
// returned error combines the per-peer failures.
func Broadcast(t Transport, msg Message, logger *zap.Logger) error {
	var (
		self    = t.LocalName()
		payload = Encode(msg)
		errs    error
	)

	for _, m := range t.Members() {
		if m.Name == self {
			continue
		}
		logger.Debug("sending",
			zap.String("peer", m.Name),
			zap.String("target", m.Addr),
			zap.Stringer("cmd", msg.Command),
			zap.String("key", msg.Key),
		)
		if err := t.Send(m.Addr, payload); err != nil {
			logger.Warn("send failed", zap.String("peer", m.Name), zap.String("target", m.Addr), zap.Error(err))
			telemetry.SendFailures.WithLabelValues(msg.Command.String()).Inc()
			errs = multierr.Append(errs, fmt.Errorf("send to %s: %w", m.Name, err))
			continue
		}
		telemetry.MessagesSent.WithLabelValues(msg.Command.String()).Inc()
	}
	return errs
}
