package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ringbuf"
	"main/pkg/exception"
)

// Position is one authoritative position snapshot from the exchange's
// request/response API.
type Position struct {
	Symbol     string
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
}

// AccountClient queries authoritative account state. Never on the hot path.
type AccountClient interface {
	Positions(ctx context.Context) ([]Position, error)
}

const DefaultInterval = 5 * time.Minute

// Option configures the orchestrator.
type Option struct {
	// Interval paces reconciliation runs. Optional; default 5m.
	Interval time.Duration
	// Registry, when set, has its shard states audited each run.
	Registry *feed.Registry
	// Rings, when set, have their cursor invariants audited each run.
	Rings []*ringbuf.Buffer
	// Metrics receives correction counters. Optional.
	Metrics *obs.Metrics
}

// Report summarizes one reconciliation run.
type Report struct {
	Updated       int
	Removed       int
	RingErrors    int
	AbortedShards int
}

// Orchestrator periodically reconciles the locally cached account view
// against authoritative exchange state and audits the data plane. Each run
// is idempotent: corrections are derived purely from the current diff, so a
// second run right after the first changes nothing.
type Orchestrator struct {
	client AccountClient
	store  Store
	opt    Option
}

// New wires an orchestrator.
func New(client AccountClient, store Store, option ...Option) (*Orchestrator, error) {
	if client == nil || store == nil {
		return nil, exception.ErrNilInstance
	}
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	if opt.Interval <= 0 {
		opt.Interval = DefaultInterval
	}
	return &Orchestrator{client: client, store: store, opt: opt}, nil
}

// Run reconciles on a fixed cadence until ctx is done. Failures of a single
// run are logged and retried on the next tick, never fatal.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.opt.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := o.ReconcileOnce(ctx)
			if err != nil {
				logs.Errorf("reconcile: run failed: %v", err)
				continue
			}
			logs.Infof("reconcile: updated=%d removed=%d ringErrors=%d abortedShards=%d",
				report.Updated, report.Removed, report.RingErrors, report.AbortedShards)
		}
	}
}

// ReconcileOnce performs one full reconciliation pass.
func (o *Orchestrator) ReconcileOnce(ctx context.Context) (Report, error) {
	var report Report

	authoritative, err := o.client.Positions(ctx)
	if err != nil {
		return report, errors.Wrap(err, "fetch account state")
	}
	cached, err := o.store.List(ctx)
	if err != nil {
		return report, errors.Wrap(err, "load cached state")
	}

	bySymbol := make(map[string]Position, len(authoritative))
	for _, pos := range authoritative {
		bySymbol[pos.Symbol] = pos
	}

	// drop cached positions the exchange no longer holds
	for _, rec := range cached {
		if _, ok := bySymbol[rec.Symbol]; ok {
			continue
		}
		if err := o.store.Delete(ctx, rec.Symbol); err != nil {
			return report, err
		}
		o.opt.Metrics.AddCorrection()
		report.Removed++
		logs.Infof("reconcile: %s closed on exchange, removed from cache", rec.Symbol)
	}

	// overwrite drifted or missing entries
	cachedBySymbol := make(map[string]PositionRecord, len(cached))
	for _, rec := range cached {
		cachedBySymbol[rec.Symbol] = rec
	}
	for _, pos := range authoritative {
		rec, ok := cachedBySymbol[pos.Symbol]
		if ok && rec.Qty.Equal(pos.Qty) && rec.EntryPrice.Equal(pos.EntryPrice) {
			continue
		}
		if err := o.store.Upsert(ctx, PositionRecord{
			Symbol:     pos.Symbol,
			Qty:        pos.Qty,
			EntryPrice: pos.EntryPrice,
		}); err != nil {
			return report, err
		}
		o.opt.Metrics.AddCorrection()
		report.Updated++
		if ok {
			logs.Infof("reconcile: %s drifted (cached qty %s, exchange qty %s), corrected",
				pos.Symbol, rec.Qty, pos.Qty)
		}
	}

	report.RingErrors = o.auditRings()
	report.AbortedShards = o.auditShards()
	return report, nil
}

func (o *Orchestrator) auditRings() int {
	failures := 0
	for _, ring := range o.opt.Rings {
		if err := ring.Audit(); err != nil {
			failures++
			logs.Errorf("reconcile: ring %s failed audit: %v", ring.Name(), err)
		}
	}
	return failures
}

func (o *Orchestrator) auditShards() int {
	if o.opt.Registry == nil {
		return 0
	}
	aborted := 0
	for _, status := range o.opt.Registry.Snapshot() {
		if status.State == feed.ShardAborted {
			aborted++
			logs.Errorf("reconcile: shard %d aborted (conn %s, ring %s pending %d), needs restart",
				status.ID, status.Conn, status.RingName, status.RingPending)
		}
	}
	return aborted
}
