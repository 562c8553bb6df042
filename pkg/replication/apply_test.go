package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
)

func TestApply(t *testing.T) {
	logger := zap.NewNop()
	cache := kv.NewWeighted(1<<10, 0)

	t.Run("Insert", func(t *testing.T) {
		msg, err := Apply(cache, gossip.Encode(gossip.Insert("a", "1")), logger)
		require.NoError(t, err)
		assert.Equal(t, gossip.CmdInsert, msg.Command)

		v, err := cache.Get("a")
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	})

	t.Run("DuplicateInsert", func(t *testing.T) {
		_, err := Apply(cache, gossip.Encode(gossip.Insert("a", "1")), logger)
		require.NoError(t, err)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("Ping", func(t *testing.T) {
		before := cache.Len()
		msg, err := Apply(cache, gossip.Encode(gossip.Ping()), logger)
		require.NoError(t, err)
		assert.Equal(t, gossip.CmdPing, msg.Command)
		assert.Equal(t, before, cache.Len())
	})

	t.Run("Remove", func(t *testing.T) {
		_, err := Apply(cache, gossip.Encode(gossip.Remove("a")), logger)
		require.NoError(t, err)
		_, err = cache.Get("a")
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("RemoveMissing", func(t *testing.T) {
		_, err := Apply(cache, gossip.Encode(gossip.Remove("never-there")), logger)
		assert.NoError(t, err)
	})

	t.Run("Corrupt", func(t *testing.T) {
		cache.Insert("keep", "me")
		_, err := Apply(cache, []byte("definitely not a message"), logger)
		assert.ErrorIs(t, err, gossip.ErrDecode)
		assert.Equal(t, 1, cache.Len())
	})
}
