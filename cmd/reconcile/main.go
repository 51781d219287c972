package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/internal/ops"
	"main/internal/reconcile"
	"main/internal/ringbuf"
	"main/pkg/conn"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("reconcile: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "config.json", "config file path")
	onceFlag := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	cfg, err := ops.Load(*configFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := reconcile.NewHTTPAccountClient(cfg.AccountURL)
	if err != nil {
		return err
	}

	pg, err := conn.New(cfg.Database)
	if err != nil {
		return err
	}
	defer pg.Close()

	store, err := reconcile.NewDBStore(pg.DB())
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	rings := make([]*ringbuf.Buffer, 0, len(cfg.Shards))
	defer func() {
		for _, ring := range rings {
			_ = ring.Close()
		}
	}()
	for _, shardCfg := range cfg.Shards {
		ringCfg := cfg.Ring
		ringCfg.Name = shardCfg.Ring
		ring, err := ringbuf.Attach(ringCfg)
		if err != nil {
			// the feed may not have started yet; audit what exists
			logs.Errorf("reconcile: ring %s unavailable: %v", shardCfg.Ring, err)
			continue
		}
		rings = append(rings, ring)
	}

	orch, err := reconcile.New(client, store, reconcile.Option{
		Interval: cfg.ReconcileInterval,
		Rings:    rings,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	if *onceFlag {
		report, err := orch.ReconcileOnce(ctx)
		if err != nil {
			return err
		}
		logs.Infof("reconcile: updated=%d removed=%d ringErrors=%d",
			report.Updated, report.Removed, report.RingErrors)
		return nil
	}

	logs.Infof("reconcile: running every %s", cfg.ReconcileInterval)
	return orch.Run(ctx)
}
