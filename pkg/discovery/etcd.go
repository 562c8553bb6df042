// Package discovery publishes this node's gossip address in etcd and reads
// the addresses of the others, so a fresh node can find seeds to join.
// Membership itself stays with the gossip layer; etcd is only a bootstrap aid.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const Prefix = "/zephyrmesh/nodes/"

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

func NodeKey(name string) string {
	return Prefix + name
}

// RegisterNode writes name -> addr under a lease of ttl seconds and keeps the
// lease alive until the returned cancel func is called.
func RegisterNode(cli *clientv3.Client, name, addr string, ttl int64, logger *zap.Logger) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(context.TODO(), ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(context.TODO(), NodeKey(name), addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("register %s: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
		logger.Debug("etcd lease keepalive stopped", zap.Int64("lease", int64(lease.ID)))
	}()

	return lease.ID, cancel, nil
}

// Seeds lists the gossip addresses registered by every node but self.
func Seeds(ctx context.Context, cli *clientv3.Client, self string) ([]string, error) {
	resp, err := cli.Get(ctx, Prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return seedsFrom(resp.Kvs, self), nil
}

func seedsFrom(kvs []*mvccpb.KeyValue, self string) []string {
	out := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		name := strings.TrimPrefix(string(kv.Key), Prefix)
		if name == self || len(kv.Value) == 0 {
			continue
		}
		out = append(out, string(kv.Value))
	}
	sort.Strings(out)
	return out
}
