package replication

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
)

// Apply decodes a peer payload and applies it to cache. Nothing is applied
// when decoding fails.
func Apply(cache kv.Cache, payload []byte, logger *zap.Logger) (gossip.Message, error) {
	msg, err := gossip.Decode(payload)
	if err != nil {
		return gossip.Message{}, err
	}

	switch msg.Command {
	case gossip.CmdPing:
		logger.Debug("received ping")
	case gossip.CmdInsert:
		cache.Insert(msg.Key, msg.Value)
		logger.Debug("applied insert", zap.String("key", msg.Key))
	case gossip.CmdRemove:
		cache.Remove(msg.Key)
		logger.Debug("applied remove", zap.String("key", msg.Key))
	default:
		return msg, fmt.Errorf("unhandled command %s", msg.Command)
	}
	return msg, nil
}
