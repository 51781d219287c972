package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/ringbuf"
)

const (
	queueCapacity = 4096
	idlePause     = time.Millisecond
)

func main() {
	if err := run(); err != nil {
		log.Printf("brain: %v", err)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewMetrics()
	queue := bus.NewQueue(queueCapacity, metrics)
	defer queue.Close()

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

		wg.Add(1)
		go func(r *ringbuf.Buffer) {
			defer wg.Done()
			pump(ctx, r, queue)
		}(ring)
	}

	logs.Infof("brain: consuming %d rings", len(rings))

	// the strategy collaborator plugs in here; until then account for flow
	var consumed atomic.Uint64
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := metrics.Snapshot()
				logs.Infof("brain: read=%d handled=%d queueDrops=%d",
					snap.TicksRead, consumed.Load(), snap.QueueDrops)
			}
		}
	}()

	queue.Run(ctx, func(bus.TickEvent) {
		consumed.Add(1)
	})
	wg.Wait()
	return nil
}

// pump drains one ring into the queue, napping when the ring is empty.
func pump(ctx context.Context, ring *ringbuf.Buffer, queue *bus.Queue) {
	for {
		if ctx.Err() != nil {
			return
		}
		tick, ok := ring.Read()
		if !ok {
			if err := sleep(ctx, idlePause); err != nil {
				return
			}
			continue
		}
		_ = queue.TryPublish(bus.TickEvent{Ring: ring.Name(), Tick: tick})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
