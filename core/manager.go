package core

// manager.go — the Persistent Bot Manager (spec.md §4.5): supervises every
// worker, owns the process-wide operator signer and vault-cooldown map,
// resumes from durable state at boot, and watches for newly-registered
// tokens in the background.
//
// Grounded on core/liquidity_pools.go's AMM singleton (one process-wide
// manager guarding a map under a mutex, exposing lifecycle operations)
// generalized from a pool registry to a worker registry, and on
// cmd/dexserver/main.go's top-level resume/backfill wiring shape.

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// backfillScanInterval is the background poll period for newly-created
// vault-token pairs lacking a bot record (spec.md §4.5 step 3).
const backfillScanInterval = 10 * time.Second

// handle bundles a running worker with the cancel function that stops its
// goroutine on process shutdown.
type handle struct {
	worker *Worker
	cancel context.CancelFunc
}

// Manager is the process-wide supervisor (spec.md §3 "in-memory manager
// state", §4.5).
type Manager struct {
	rpc    RPCClient
	store  Store
	bus    *BroadcastSink
	cfg    WorkerConfig
	logger *log.Logger

	operator Signer

	mu      sync.Mutex
	workers map[Address]*handle
	cooldown *vaultCooldownMap

	wg sync.WaitGroup
}

// NewManager constructs a manager with its operator signer already
// bootstrapped (spec.md §4.5 "operator signer bootstrap").
func NewManager(rpc RPCClient, store Store, operator Signer, cfg WorkerConfig, lg *log.Logger) *Manager {
	if lg == nil {
		lg = log.StandardLogger()
	}
	return &Manager{
		rpc:      rpc,
		store:    store,
		bus:      NewBroadcastSink(),
		cfg:      cfg,
		logger:   lg,
		operator: operator,
		workers:  make(map[Address]*handle),
		cooldown: newVaultCooldownMap(),
	}
}

// Broadcast exposes the manager's log fan-out sink for subscribers (e.g. an
// HTTP server-sent-events endpoint).
func (m *Manager) Broadcast() *BroadcastSink { return m.bus }

// ResumeAll implements spec.md §4.5 Resume: loads every running bot record
// and spawns a worker per record with hydrated counters, then backfills
// vaults with a token-mint but no bot record, then launches the background
// backfill scan.
func (m *Manager) ResumeAll(ctx context.Context) error {
	bots, err := m.store.ListRunningBots(ctx)
	if err != nil {
		return fmt.Errorf("resume-all: list running bots: %w", err)
	}
	for _, b := range bots {
		vault := VaultRecord{
			VaultStateAddr: b.VaultStateAddr,
			OwnerKey:       b.OwnerKey,
			TokenMint:      &b.TokenMint,
		}
		hydrated := WorkerStats{
			TotalTrades:    b.TotalTrades,
			TotalVolumeSOL: b.TotalVolumeSOL,
			LastTradeTime:  b.LastTradeTime,
		}
		m.spawn(ctx, b.TokenMint, vault, b.OwnerKey, hydrated)
	}

	if err := m.backfill(ctx); err != nil {
		m.logger.Warnf("resume-all: initial backfill: %v", err)
	}

	m.wg.Add(1)
	go m.backfillLoop(ctx)

	m.logger.Infof("resumed %d workers", len(bots))
	return nil
}

// backfillLoop runs the periodic scan for newly-created tokens (spec.md
// §4.5 step 3), without blocking on errors from a single scan.
func (m *Manager) backfillLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(backfillScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.backfill(ctx); err != nil {
				m.logger.Warnf("backfill scan: %v", err)
			}
		}
	}
}

// backfill scans vault records for those with a non-null token-mint for
// which no bot record exists and spawns a worker for each.
func (m *Manager) backfill(ctx context.Context) error {
	m.mu.Lock()
	known := make(map[Address]struct{}, len(m.workers))
	for mint := range m.workers {
		known[mint] = struct{}{}
	}
	m.mu.Unlock()

	vaults, err := m.store.ListVaultsNeedingWorker(ctx, known)
	if err != nil {
		return err
	}
	for _, v := range vaults {
		if v.TokenMint == nil {
			continue
		}
		m.StartWorker(ctx, *v.TokenMint, v, v.OwnerKey)
	}
	return nil
}

// StartWorker implements spec.md §4.5's start-worker(mint, vault, owner):
// idempotent (it does nothing when a worker for mint is already
// registered), otherwise it upserts the durable record and spawns the
// worker. It returns nothing; callers receive no worker handle.
func (m *Manager) StartWorker(ctx context.Context, mint Address, vault VaultRecord, owner Address) {
	m.mu.Lock()
	if _, exists := m.workers[mint]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if m.store != nil {
		rec := BotRecord{
			TokenMint:      mint,
			VaultStateAddr: vault.VaultStateAddr,
			OwnerKey:       owner,
			StrategyName:   "volume",
			Status:         BotStatusRunning,
		}
		if err := m.store.UpsertBot(ctx, rec); err != nil {
			m.logger.Warnf("start-worker: upsert bot %s: %v", mint.Short(), err)
		}
	}

	m.spawn(ctx, mint, vault, owner, WorkerStats{})
}

// spawn constructs and launches a worker goroutine, registering its handle.
func (m *Manager) spawn(ctx context.Context, mint Address, vault VaultRecord, owner Address, hydrated WorkerStats) {
	m.mu.Lock()
	if _, exists := m.workers[mint]; exists {
		m.mu.Unlock()
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	direct := &DirectExecutor{RPC: m.rpc, Signer: m.operator}
	custody := &CustodyExecutor{RPC: m.rpc, Operator: m.operator, Vault: vault}
	w := NewWorker(mint, vault, owner, m.cfg, m.rpc, direct, custody, m.store, m.bus, m.cooldown, hydrated, m.logger)
	m.workers[mint] = &handle{worker: w, cancel: cancel}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.Run(workerCtx)
	}()
}

// UpdateStrategy implements spec.md §4.5's update-strategy(mint,
// strategy-name, strategy-config): persists the durable row. The worker's
// own on-chain config read (cycle step 5) is the live source of trading
// parameters; this updates only the durable label and opaque blob that
// callers use for bookkeeping.
func (m *Manager) UpdateStrategy(ctx context.Context, mint Address, strategyName string, strategyConfig any) error {
	rec, ok, err := m.store.GetBot(ctx, mint)
	if err != nil {
		return fmt.Errorf("update-strategy: load bot %s: %w", mint.Short(), err)
	}
	if !ok {
		return fmt.Errorf("update-strategy: no bot record for mint %s", mint.Short())
	}
	cfgBytes, err := marshalStrategyConfig(strategyConfig)
	if err != nil {
		return err
	}
	rec.StrategyName = strategyName
	rec.StrategyConfig = cfgBytes
	return m.store.UpsertBot(ctx, rec)
}

// AggregateStats implements spec.md §4.5's aggregate-stats(): sums the
// per-worker in-memory counters for workers currently running, plus the
// durable counters of any bot records without a live worker.
func (m *Manager) AggregateStats(ctx context.Context) (AggregateStats, error) {
	m.mu.Lock()
	liveMints := make(map[Address]struct{}, len(m.workers))
	var totalVolume float64
	var totalTrades uint64
	activeCount := 0
	for mint, h := range m.workers {
		liveMints[mint] = struct{}{}
		s := h.worker.Stats()
		totalVolume += s.TotalVolumeSOL
		totalTrades += s.TotalTrades
		if h.worker.State() == StateTrading {
			activeCount++
		}
	}
	m.mu.Unlock()

	totalCount := len(liveMints)
	if m.store != nil {
		bots, err := m.store.ListRunningBots(ctx)
		if err != nil {
			return AggregateStats{}, fmt.Errorf("aggregate-stats: list bots: %w", err)
		}
		for _, b := range bots {
			if _, live := liveMints[b.TokenMint]; live {
				continue
			}
			totalVolume += b.TotalVolumeSOL
			totalTrades += b.TotalTrades
			totalCount++
		}
	}

	return AggregateStats{
		TotalVolumeSOL: totalVolume,
		TotalTrades:    totalTrades,
		ActiveCount:    activeCount,
		TotalCount:     totalCount,
	}, nil
}

// Shutdown cancels every worker and waits for their goroutines to return.
// No in-flight transaction is rolled back (spec.md §4.4 Cancellation).
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, h := range m.workers {
		h.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	m.bus.Close()
}

// WorkerCount returns the number of workers currently registered.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}
