package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/downfa11-org/logship/pkg/client"
	"github.com/downfa11-org/logship/pkg/config"
	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/record"
	"github.com/downfa11-org/logship/pkg/relay"
	"github.com/downfa11-org/logship/pkg/server"
	"github.com/downfa11-org/logship/util"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	fmt.Printf("🚀 Starting logship role=%s dir=%s\n", cfg.Role, cfg.LogDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		util.Error("logship stopped: %v", err)
		os.Exit(1)
	}
	util.Info("logship stopped")
}

// run starts the roles cfg selects and blocks until ctx is done or one role
// fails. Stores and cursors are closed before it returns.
func run(ctx context.Context, cfg *config.Config) error {
	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	} else {
		util.Info("📉 Exporter disabled")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// abort stops roles already started when a later one fails to open.
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if cfg.RunsPrimary() {
		store := disk.NewLogStore(cfg.LogDir, cfg.SegmentSize)
		if err := store.Open(); err != nil {
			return abort(fmt.Errorf("open log store: %w", err))
		}
		defer store.Close()

		srv, err := server.New(store, server.Options{
			Password:          cfg.Password,
			NodeID:            cfg.NodeID,
			MaxPushBytes:      cfg.MaxPushBytes,
			HeartbeatInterval: cfg.HeartbeatInterval(),
			HeartbeatTimeout:  cfg.HeartbeatTimeout(),
			CleanupInterval:   cfg.CleanupInterval(),
			Retention:         cfg.Retention(),
		})
		if err != nil {
			return abort(fmt.Errorf("init replication server: %w", err))
		}
		g.Go(func() error { return srv.Run(gctx, cfg.ListenAddr()) })
	}

	if cfg.RunsReplica() {
		c := client.New(cfg.LogDir, client.Options{
			Addr:              cfg.PrimaryAddr,
			Password:          cfg.Password,
			NodeID:            cfg.NodeID,
			ServerSide:        cfg.ServerSide,
			AllowPull:         cfg.AllowPull,
			HeartbeatInterval: cfg.HeartbeatInterval(),
			HeartbeatTimeout:  cfg.HeartbeatTimeout(),
			PullInterval:      cfg.PullInterval(),
			ReconnectDelay:    cfg.ReconnectDelay(),
		})
		if err := c.Open(); err != nil {
			return abort(fmt.Errorf("open replica cursor: %w", err))
		}
		g.Go(func() error { return c.Run(gctx) })
	}

	if cfg.RunsRelay() {
		t := relay.New(cfg.LogDir, printRecord)
		if err := t.Open(); err != nil {
			return abort(fmt.Errorf("open relay cursor: %w", err))
		}
		g.Go(func() error { return t.Run(gctx, cfg.RelayPollInterval()) })
	}

	return g.Wait()
}

// printRecord writes one relayed record to stdout as a tab separated line.
func printRecord(rec record.Record) {
	fmt.Printf("%d\t%d\t%s\n", rec.Timestamp, rec.SourceID, rec.Payload)
}
