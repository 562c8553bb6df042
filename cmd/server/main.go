package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrmesh/internal/config"
	"github.com/ryandielhenn/zephyrmesh/internal/logging"
	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/discovery"
	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
	"github.com/ryandielhenn/zephyrmesh/pkg/node"
	"github.com/ryandielhenn/zephyrmesh/pkg/replication"
)

// Set with -ldflags "-X main.version=... -X main.gitSHA=...".
var (
	version = "dev"
	gitSHA  = "unknown"
)

const (
	leaseTTL        = 10 // seconds
	sweepInterval   = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	leaveTimeout    = 2 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("node stopped", zap.Error(err))
	}
	logger.Info("node stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	telemetry.SetBuildInfo(version, gitSHA)
	logger = logger.With(zap.String("node", cfg.Name))

	// 1. Local cache
	cache, err := kv.New(cfg.Cache())
	if err != nil {
		return err
	}

	// 2. Seeds from etcd, if configured
	gcfg := cfg.Gossip()
	var cli *clientv3.Client
	if len(cfg.EtcdEndpoints) > 0 {
		logger.Info("creating etcd client", zap.Strings("endpoints", cfg.EtcdEndpoints))
		cli, err = discovery.NewClient(cfg.EtcdEndpoints)
		if err != nil {
			return fmt.Errorf("etcd client: %w", err)
		}
		defer cli.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		seeds, err := discovery.Seeds(ctx, cli, cfg.Name)
		cancel()
		if err != nil {
			return err
		}
		logger.Info("seeds from etcd", zap.Strings("seeds", seeds))
		gcfg.JoinAddrs = append(gcfg.JoinAddrs, seeds...)
	}

	// 3. Join the cluster
	cluster, inbound, err := gossip.Start(gcfg, logger.Named("gossip"))
	if err != nil {
		return err
	}
	defer func() {
		if err := cluster.Leave(leaveTimeout); err != nil {
			logger.Warn("leave cluster", zap.Error(err))
		}
	}()

	if cli != nil {
		lease, cancel, err := discovery.RegisterNode(cli, cfg.Name, cluster.LocalAddr(), leaseTTL, logger.Named("discovery"))
		if err != nil {
			return err
		}
		defer func() {
			cancel()
			ctx, done := context.WithTimeout(context.Background(), time.Second)
			_, _ = cli.Revoke(ctx, lease)
			done()
		}()
	}

	// 4. Ingress and replication
	n := node.NewNode(cfg.Name, cache, cluster, node.DefaultMutationBuffer, logger.Named("http"))
	engine := replication.New(
		replication.Config{ProbeInterval: cfg.ProbeInterval},
		cache, cluster, inbound, n.Mutations(), logger.Named("replication"),
	)

	telemetry.RegisterGauge("cache_items", "Entries in the local cache.", func() float64 {
		return float64(cache.Len())
	})
	telemetry.RegisterGauge("cluster_members", "Members currently known to the gossip layer.", func() float64 {
		return float64(len(cluster.Members()))
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           n.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 5. Run until signalled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := engine.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		if err != nil {
			// cancels request contexts still blocked on the mutation queue
			_ = srv.Close()
		}
		n.Close()
		return err
	})
	if sw, ok := cache.(kv.Sweeper); ok && cfg.CacheTTL > 0 {
		g.Go(func() error {
			sw.Sweep(gctx, sweepInterval, logger.Named("kv"))
			return nil
		})
	}

	return g.Wait()
}
