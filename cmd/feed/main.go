package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/ringbuf"
	"main/internal/stream"
)

func main() {
	if err := run(); err != nil {
		log.Printf("feed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "config.json", "config file path")
	flag.Parse()

	cfg, err := ops.Load(*configFlag)
	if err != nil {
		return err
	}

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "mdcore.feed",
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewMetrics()
	registry := feed.NewRegistry()
	parser := feed.BinanceKlineParser{Interval: cfg.KlineInterval}

	var (
		wg    sync.WaitGroup
		rings []*ringbuf.Buffer
	)
	defer func() {
		for _, ring := range rings {
			_ = ring.Close()
		}
	}()

	for _, shardCfg := range cfg.Shards {
		ringCfg := cfg.Ring
		ringCfg.Name = shardCfg.Ring
		ringCfg.Metrics = metrics
		ring, err := ringbuf.Open(ringCfg)
		if err != nil {
			return err
		}
		rings = append(rings, ring)

		symbols := shardCfg.Symbols
		mgr, err := stream.NewManager(cfg.ExchangeURL, stream.WebSocketDialer{}, stream.Option{
			Backoff:          cfg.Backoff,
			HeartbeatTimeout: cfg.HeartbeatTimeout,
			Metrics:          metrics,
			OnConnect: func(conn stream.Conn) error {
				payload, err := parser.SubscribeRequest(symbols)
				if err != nil {
					return err
				}
				return conn.WriteMessage(payload)
			},
		})
		if err != nil {
			return err
		}

		shard, err := feed.NewShard(shardCfg.ID, symbols, mgr, parser, ring, feed.Option{
			ReceiveTimeout:     cfg.ReceiveTimeout,
			MaxConsecutiveErrs: cfg.MaxConsecutive,
			Metrics:            metrics,
		})
		if err != nil {
			return err
		}
		if err := registry.Add(shard); err != nil {
			return err
		}

		wg.Add(1)
		go func(s *feed.Shard) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				logs.Errorf("feed: shard %d exited: %v", s.ID(), err)
			}
		}(shard)
	}

	logs.Infof("feed: %d shards running", len(cfg.Shards))

	reportTicker := time.NewTicker(time.Minute)
	defer reportTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-reportTicker.C:
			snap := metrics.Snapshot()
			logs.Infof("feed: written=%d rejected=%d skipped=%d capacity=%d reconnects=%d aborts=%d",
				snap.TicksWritten, snap.Rejects, snap.FramesSkipped,
				snap.CapacityEvents, snap.Reconnects, snap.ShardAborts)
		}
	}
}
