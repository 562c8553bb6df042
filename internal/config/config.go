// Package config loads node settings from flags, falling back to ZEPHYR_*
// environment variables and then to built-in defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
	"github.com/ryandielhenn/zephyrmesh/pkg/replication"
)

const defaultGossipPort = "4001"

type Config struct {
	Name          string
	HTTPAddr      string
	GossipAddr    string
	AdvertiseAddr string
	JoinAddrs     []string

	CacheBackend  string
	CacheCapacity int
	CacheMaxBytes int
	CacheTTL      time.Duration

	ProbeInterval time.Duration
	EtcdEndpoints []string
	LogLevel      string
}

// Load parses args (without the program name). getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	envInt := func(key string, def int) (int, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	}
	envDur := func(key string, def time.Duration) (time.Duration, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}

	capacity, err := envInt("ZEPHYR_CACHE_CAPACITY", 128)
	if err != nil {
		return Config{}, err
	}
	maxBytes, err := envInt("ZEPHYR_CACHE_BYTES", 64<<20)
	if err != nil {
		return Config{}, err
	}
	ttl, err := envDur("ZEPHYR_CACHE_TTL", 0)
	if err != nil {
		return Config{}, err
	}
	probe, err := envDur("ZEPHYR_PROBE_INTERVAL", replication.DefaultProbeInterval)
	if err != nil {
		return Config{}, err
	}

	var (
		c    Config
		join string
		etcd string
	)
	fs := flag.NewFlagSet("zephyrmesh", flag.ContinueOnError)
	fs.StringVar(&c.Name, "name", env("ZEPHYR_NAME", ""), "unique node name (default: hostname plus a random suffix)")
	fs.StringVar(&c.HTTPAddr, "http-addr", env("ZEPHYR_HTTP_ADDR", "0.0.0.0:3001"), "HTTP listen address")
	fs.StringVar(&c.GossipAddr, "gossip-addr", env("ZEPHYR_GOSSIP_ADDR", "0.0.0.0:"+defaultGossipPort), "gossip bind address")
	fs.StringVar(&c.AdvertiseAddr, "advertise-addr", env("ZEPHYR_ADVERTISE_ADDR", ""), "gossip address announced to peers")
	fs.StringVar(&join, "join", env("ZEPHYR_JOIN", ""), "comma separated seed gossip addresses")
	fs.StringVar(&c.CacheBackend, "cache-backend", env("ZEPHYR_CACHE_BACKEND", kv.BackendLRU), "cache backend: lru or weighted")
	fs.IntVar(&c.CacheCapacity, "cache-capacity", capacity, "lru backend: maximum number of entries")
	fs.IntVar(&c.CacheMaxBytes, "cache-bytes", maxBytes, "weighted backend: maximum key+value bytes")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", ttl, "weighted backend: entry time to live (0 disables)")
	fs.DurationVar(&c.ProbeInterval, "probe-interval", probe, "interval between ping broadcasts")
	fs.StringVar(&etcd, "etcd", env("ZEPHYR_ETCD", ""), "comma separated etcd endpoints used for seed discovery")
	fs.StringVar(&c.LogLevel, "log-level", env("ZEPHYR_LOG_LEVEL", "debug"), "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if c.Name == "" {
		c.Name = defaultName()
	}
	for _, a := range splitList(join) {
		c.JoinAddrs = append(c.JoinAddrs, gossip.NormalizeHostPort(a, defaultGossipPort))
	}
	c.EtcdEndpoints = splitList(etcd)

	return c, c.Validate()
}

// Validate rejects settings that must abort startup.
func (c Config) Validate() error {
	var errs error
	if _, _, err := gossip.ParseHostPort(c.HTTPAddr); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("http-addr: %w", err))
	}
	if _, _, err := gossip.ParseHostPort(c.GossipAddr); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("gossip-addr: %w", err))
	}
	if c.AdvertiseAddr != "" {
		if _, _, err := gossip.ParseHostPort(c.AdvertiseAddr); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("advertise-addr: %w", err))
		}
	}
	for _, a := range c.JoinAddrs {
		if _, _, err := gossip.ParseHostPort(a); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("join: %w", err))
		}
	}
	if c.ProbeInterval <= 0 {
		errs = multierr.Append(errs, errors.New("probe-interval must be positive"))
	}
	switch c.CacheBackend {
	case kv.BackendLRU:
		if c.CacheCapacity <= 0 {
			errs = multierr.Append(errs, errors.New("cache-capacity must be positive"))
		}
	case kv.BackendWeighted:
		if c.CacheMaxBytes <= 0 {
			errs = multierr.Append(errs, errors.New("cache-bytes must be positive"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown cache-backend %q", c.CacheBackend))
	}
	return errs
}

// Cache returns the kv settings.
func (c Config) Cache() kv.Config {
	return kv.Config{
		Backend:  c.CacheBackend,
		Capacity: c.CacheCapacity,
		MaxBytes: c.CacheMaxBytes,
		TTL:      c.CacheTTL,
	}
}

// Gossip returns the membership settings: 5s failure-detector probes with a
// 500ms ack timeout.
func (c Config) Gossip() gossip.Config {
	return gossip.Config{
		Name:          c.Name,
		BindAddr:      c.GossipAddr,
		AdvertiseAddr: c.AdvertiseAddr,
		JoinAddrs:     c.JoinAddrs,
		ProbeInterval: 5 * time.Second,
		ProbeTimeout:  500 * time.Millisecond,
	}
}

func defaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
