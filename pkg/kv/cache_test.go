package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Cache {
	t.Helper()
	l, err := New(Config{Backend: BackendLRU, Capacity: 16})
	require.NoError(t, err)
	w, err := New(Config{Backend: BackendWeighted, MaxBytes: 1 << 10})
	require.NoError(t, err)
	return map[string]Cache{BackendLRU: l, BackendWeighted: w}
}

func TestNew(t *testing.T) {
	t.Run("DefaultsToLRU", func(t *testing.T) {
		c, err := New(Config{Capacity: 4})
		require.NoError(t, err)
		assert.IsType(t, &LRU{}, c)
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		_, err := New(Config{Backend: "redis", Capacity: 4})
		assert.ErrorContains(t, err, "unknown backend")
	})

	t.Run("LRUNeedsCapacity", func(t *testing.T) {
		_, err := New(Config{Backend: BackendLRU})
		assert.Error(t, err)
	})

	t.Run("WeightedNeedsBytes", func(t *testing.T) {
		_, err := New(Config{Backend: BackendWeighted})
		assert.Error(t, err)
	})
}

func TestCache_InsertIsIdempotent(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c.Insert("k", "v")
			c.Insert("k", "v")

			got, err := c.Get("k")
			require.NoError(t, err)
			assert.Equal(t, "v", got)
			assert.Equal(t, 1, c.Len())
		})
	}
}

func TestCache_RemoveMissingIsNoop(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c.Insert("keep", "1")

			assert.NotPanics(t, func() { c.Remove("absent") })
			c.Remove("absent")

			assert.Equal(t, 1, c.Len())
			_, err := c.Get("absent")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCache_LastWriteWins(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c.Insert("k", "1")
			c.Insert("k", "2")
			got, err := c.Get("k")
			require.NoError(t, err)
			assert.Equal(t, "2", got)

			c.Remove("k")
			_, err = c.Get("k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLRU_EvictsByCount(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)

	c.Insert("a", "1")
	c.Insert("b", "2")
	_, err = c.Get("a") // a is now most recent
	require.NoError(t, err)
	c.Insert("c", "3")

	_, err = c.Get("b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}
