package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(nil, envMap(nil))
	require.NoError(t, err)

	assert.NotEmpty(t, c.Name)
	assert.Equal(t, "0.0.0.0:3001", c.HTTPAddr)
	assert.Equal(t, "0.0.0.0:4001", c.GossipAddr)
	assert.Empty(t, c.JoinAddrs)
	assert.Equal(t, kv.BackendLRU, c.CacheBackend)
	assert.Equal(t, 128, c.CacheCapacity)
	assert.Equal(t, 3*time.Second, c.ProbeInterval)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := envMap(map[string]string{
		"ZEPHYR_NAME":           "from-env",
		"ZEPHYR_JOIN":           "seed-a, http://seed-b:5000",
		"ZEPHYR_CACHE_CAPACITY": "10",
		"ZEPHYR_ETCD":           "http://etcd:2379",
	})
	c, err := Load([]string{"-name", "from-flag", "-probe-interval", "250ms"}, env)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", c.Name)
	assert.Equal(t, []string{"seed-a:4001", "seed-b:5000"}, c.JoinAddrs)
	assert.Equal(t, 10, c.CacheCapacity)
	assert.Equal(t, 250*time.Millisecond, c.ProbeInterval)
	assert.Equal(t, []string{"http://etcd:2379"}, c.EtcdEndpoints)

	g := c.Gossip()
	assert.Equal(t, "from-flag", g.Name)
	assert.Equal(t, c.JoinAddrs, g.JoinAddrs)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][]string{
		"bad seed port":   {"-join", "seed:notaport"},
		"bad http addr":   {"-http-addr", "nowhere"},
		"unknown backend": {"-cache-backend", "disk"},
		"zero capacity":   {"-cache-capacity", "0"},
		"zero probe":      {"-probe-interval", "0s"},
		"unknown flag":    {"-bogus"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(args, envMap(nil))
			assert.Error(t, err)
		})
	}

	_, err := Load(nil, envMap(map[string]string{"ZEPHYR_CACHE_TTL": "soon"}))
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	c, err := Load([]string{"-cache-backend", "weighted", "-cache-bytes", "1024", "-cache-ttl", "1m"}, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, kv.Config{Backend: kv.BackendWeighted, Capacity: 128, MaxBytes: 1024, TTL: time.Minute}, c.Cache())
}
