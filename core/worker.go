package core

// worker.go — the per-token trading loop (spec.md §4.4): a state machine
// with no terminal state and no stop button, owned exclusively by its own
// goroutine once spawned by the manager.
//
// Grounded on core/liquidity_pools.go's AMM.Swap (read state, validate,
// mutate, log, all under one lock-free pass per call) generalized into a
// long-running loop, and on the pumpfun reference bot's waiting/trading
// cycle shape for the funds-gate and alternation rules.

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// WorkerState is the worker's coarse lifecycle phase (spec.md §4.4).
type WorkerState int

const (
	StateTrading WorkerState = iota
	StateWaitingForFunds
)

func (s WorkerState) String() string {
	if s == StateWaitingForFunds {
		return "waiting_for_funds"
	}
	return "trading"
}

const (
	waitingPollInterval = 3 * time.Second
	missingHaltLimit    = 3
	backoffBase         = 5 * time.Second
	backoffCap          = 60 * time.Second
	backoffFactor       = 1.5
)

// Store is the durable persistence contract the worker and manager depend
// on (spec.md §6 logical schema). Implemented by core/store.go.
type Store interface {
	UpsertBot(ctx context.Context, b BotRecord) error
	GetBot(ctx context.Context, mint Address) (BotRecord, bool, error)
	ListRunningBots(ctx context.Context) ([]BotRecord, error)
	ListVaultsNeedingWorker(ctx context.Context, known map[Address]struct{}) ([]VaultRecord, error)
	SetBotInactive(ctx context.Context, mint Address) error
	AppendLog(ctx context.Context, l BotLog) error
}

// Broadcaster is the best-effort live-log fan-out sink (spec.md §4.5).
// Implemented by core/broadcast.go.
type Broadcaster interface {
	Publish(l BotLog)
}

// WorkerConfig bundles the tunables a worker needs, sourced from
// pkg/config.Config.Worker.
type WorkerConfig struct {
	MinGasReserveLamports uint64
	BotMinTradeLamports   uint64
	BotMaxTradeLamports   uint64
	DefaultSlippageBps    uint16
	RandPercentMin        float64
	RandPercentMax        float64
	FeeClaimInterval      time.Duration
}

// WorkerStats mirrors the durable counters, held in memory for the
// lifetime of the worker's goroutine (spec.md §3).
type WorkerStats struct {
	TotalTrades    uint64
	TotalVolumeSOL float64
	LastTradeTime  *time.Time
}

// Worker owns the state machine for one token (spec.md §4.4). Every field
// after construction is touched only by the worker's own goroutine, except
// the fields explicitly documented as shared (manager-owned maps,
// passed in by pointer).
type Worker struct {
	mint   Address
	vault  VaultRecord
	owner  Address
	cfg    WorkerConfig

	rpc      RPCClient
	direct   Executor
	custody  Executor
	store    Store
	bus      Broadcaster
	logger   *log.Logger

	vaultLastTrade *vaultCooldownMap

	mu                        sync.Mutex
	state                     WorkerState
	stats                     WorkerStats
	mintMissing               int
	curveMissing              int
	consecutiveFailuresLocked int
	graduated                 bool
	ammPool                   Address
	lastFeeClaim              time.Time
	quoteMint                 Address
	tokenCreator              Address
	hasCreator                bool
	tokenProgramID            Address
}

// vaultCooldownMap is the manager-owned, cross-worker shared map of
// vault-sol-holder -> last successful trade instant (spec.md §3, §5).
// Atomic last-trade-wins updates under a plain mutex; contention is
// negligible per spec.md §9.
type vaultCooldownMap struct {
	mu   sync.Mutex
	data map[Address]time.Time
}

func newVaultCooldownMap() *vaultCooldownMap {
	return &vaultCooldownMap{data: make(map[Address]time.Time)}
}

func (m *vaultCooldownMap) Get(vault Address) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[vault]
	return t, ok
}

func (m *vaultCooldownMap) Set(vault Address, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[vault] = t
}

// NewWorker constructs a worker for one bot record. hydrated must carry the
// durable total-trades / total-volume / last-trade counters so alternation
// survives a restart (spec.md §4.4 Ordering guarantees).
func NewWorker(mint Address, vault VaultRecord, owner Address, cfg WorkerConfig, rpc RPCClient, direct, custody Executor, store Store, bus Broadcaster, cooldown *vaultCooldownMap, hydrated WorkerStats, lg *log.Logger) *Worker {
	if lg == nil {
		lg = log.StandardLogger()
	}
	return &Worker{
		mint:           mint,
		vault:          vault,
		owner:          owner,
		cfg:            cfg,
		rpc:            rpc,
		direct:         direct,
		custody:        custody,
		store:          store,
		bus:            bus,
		logger:         lg,
		vaultLastTrade: cooldown,
		state:          StateTrading,
		stats:          hydrated,
		quoteMint:      NativeSolMint,
		tokenProgramID: TokenProgramID,
	}
}

// Run is the worker's infinite loop (spec.md §4.4). There is no stop()
// method; only ctx cancellation (process shutdown) or a permanent-halt
// sentinel (mint account or bonding-curve account missing three times in a
// row) ends it. The bonding-curve token account is not checked.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		halted := w.cycle(ctx)
		if halted {
			return
		}
	}
}

// cycle runs one iteration of the cycle contract (spec.md §4.4 steps
// 1-14), returning true if the worker has permanently halted.
func (w *Worker) cycle(ctx context.Context) bool {
	vaultSolHolder, err := w.vault.SolHolderAddress()
	if err != nil {
		w.log(LogError, fmt.Sprintf("derive vault sol holder: %v", err))
		w.sleep(ctx, backoffCap)
		return false
	}

	// Step 1-2: funds gate.
	balance, err := w.rpc.GetBalance(ctx, vaultSolHolder)
	if err != nil {
		w.handleCycleError(ctx, err)
		return false
	}
	minRequired := w.cfg.MinGasReserveLamports + w.cfg.BotMinTradeLamports
	if balance < minRequired {
		w.enterWaitingForFunds()
		w.sleep(ctx, waitingPollInterval)
		return false
	}

	// Step 3: funds-detected transition log.
	w.exitWaitingForFunds()

	// Steps 5-6: read the vault config and the mint/bonding-curve accounts.
	// Step 4 (the cooperative rate limit against the shared vault cooldown
	// map) follows the read, since min-delay-secs comes from the vault config.
	vaultCfg, curve, halted, ok := w.readVaultAndCurve(ctx, vaultSolHolder)
	if halted {
		return true
	}
	if !ok {
		return false
	}

	if last, seen := w.vaultLastTrade.Get(vaultSolHolder); seen {
		minDelay := time.Duration(vaultCfg.MinDelaySecs) * time.Second
		if time.Since(last) < minDelay {
			w.sleep(ctx, w.cycleSleepDuration(vaultCfg))
			return false
		}
	}

	// Step 7: graduation detection.
	if !w.graduated {
		if graduated, _ := DetectGraduation(curve, nil); graduated {
			w.markGraduated(ctx, vaultSolHolder)
		}
	}

	// Supplemental fee-claim cycle step (SPEC_FULL.md): spec.md names
	// last-fee-claim-time and FEE_CLAIM_INTERVAL_HOURS but its cycle
	// contract never invokes a claim; this closes that gap.
	w.maybeClaimFees(ctx)

	// Step 8-10: alternate buy/sell and size the trade.
	side, tokenBalance, err := w.decideSide(ctx, vaultSolHolder)
	if err != nil {
		w.handleCycleError(ctx, err)
		return false
	}

	req, skip, err := w.buildTradeRequest(side, balance, tokenBalance, vaultCfg)
	if err != nil {
		w.handleCycleError(ctx, err)
		return false
	}
	if skip {
		w.sleep(ctx, w.cycleSleepDuration(vaultCfg))
		return false
	}

	// Step 10: invoke the appropriate executor.
	executor := w.activeExecutor()
	var result TradeResult
	if side == SideBuy {
		result, err = executor.BuildBuy(ctx, req)
	} else {
		result, err = executor.BuildSell(ctx, req)
	}

	if err != nil {
		kind := Classify(err)
		switch kind {
		case KindPoolComplete:
			// Step 12: graduation signalled by the trade itself, not a failure.
			w.markGraduated(ctx, vaultSolHolder)
		case KindFundsInsufficient:
			w.enterWaitingForFunds()
		default:
			w.handleCycleError(ctx, err)
		}
		w.sleep(ctx, w.cycleSleepDuration(vaultCfg))
		return false
	}

	// Step 11: success bookkeeping.
	w.recordSuccess(ctx, side, result, vaultSolHolder)
	w.resetFailureCounter()

	// Step 14: sleep a uniformly random duration.
	w.sleep(ctx, w.cycleSleepDuration(vaultCfg))
	return false
}

// readVaultAndCurve implements step 5 and step 6 of the cycle contract:
// read the vault's on-chain config and mint, track mint-missing misses,
// and halt after three consecutive misses.
func (w *Worker) readVaultAndCurve(ctx context.Context, vaultSolHolder Address) (cfg Config, curve BondingCurveState, halted bool, ok bool) {
	vsInfo, err := w.rpc.GetAccountInfo(ctx, w.vault.VaultStateAddr)
	if err != nil {
		w.handleCycleError(ctx, err)
		return Config{}, BondingCurveState{}, false, false
	}
	if !vsInfo.Exists {
		w.log(LogError, "vault state account missing")
		return Config{}, BondingCurveState{}, false, false
	}
	vs, err := ParseVaultState(vsInfo.Data)
	if err != nil {
		w.log(LogError, fmt.Sprintf("parse vault state: %v", err))
		return Config{}, BondingCurveState{}, false, false
	}

	mintInfo, err := w.rpc.GetAccountInfo(ctx, w.mint)
	if err != nil {
		w.handleCycleError(ctx, err)
		return Config{}, BondingCurveState{}, false, false
	}
	if !mintInfo.Exists {
		w.mu.Lock()
		w.mintMissing++
		missed := w.mintMissing
		w.mu.Unlock()
		w.log(LogWarn, fmt.Sprintf("mint account missing (%d/%d)", missed, missingHaltLimit))
		if missed >= missingHaltLimit {
			w.haltInactive(ctx, "mint account missing 3 consecutive reads")
			return Config{}, BondingCurveState{}, true, false
		}
		return Config{}, BondingCurveState{}, false, false
	}
	tokenProgram := TokenProgramID
	if mintInfo.Owner == Token2022ProgramID {
		tokenProgram = Token2022ProgramID
	}
	w.mu.Lock()
	w.mintMissing = 0
	w.tokenProgramID = tokenProgram
	w.mu.Unlock()

	bondingCurve, _, err := DeriveBondingCurve(w.mint)
	if err != nil {
		w.log(LogError, fmt.Sprintf("derive bonding curve: %v", err))
		return Config{}, BondingCurveState{}, false, false
	}
	curveInfo, err := w.rpc.GetAccountInfo(ctx, bondingCurve)
	if err != nil {
		w.handleCycleError(ctx, err)
		return Config{}, BondingCurveState{}, false, false
	}
	if !curveInfo.Exists {
		w.mu.Lock()
		w.curveMissing++
		missed := w.curveMissing
		w.mu.Unlock()
		w.log(LogWarn, fmt.Sprintf("bonding curve account missing (%d/%d)", missed, missingHaltLimit))
		if missed >= missingHaltLimit {
			w.haltInactive(ctx, "bonding curve account missing 3 consecutive reads")
			return Config{}, BondingCurveState{}, true, false
		}
		return Config{}, BondingCurveState{}, false, false
	}
	w.mu.Lock()
	w.curveMissing = 0
	w.mu.Unlock()

	curve, err = ParseBondingCurveState(curveInfo.Data)
	if err != nil {
		w.log(LogError, fmt.Sprintf("parse bonding curve: %v", err))
		return Config{}, BondingCurveState{}, false, false
	}
	if curve.HasCreator {
		w.mu.Lock()
		w.tokenCreator = curve.Creator
		w.hasCreator = true
		w.mu.Unlock()
	}

	return vs.Config, curve, false, true
}

// decideSide implements step 8: buy when total-trades is even OR
// token-balance <= 0; otherwise sell.
func (w *Worker) decideSide(ctx context.Context, vaultSolHolder Address) (TradeSide, uint64, error) {
	w.mu.Lock()
	tokenProgram := w.tokenProgramID
	w.mu.Unlock()
	userATA, _, err := DeriveBondingCurveTokenAccount(vaultSolHolder, w.mint, tokenProgram)
	if err != nil {
		return SideBuy, 0, NewClassifiedError(KindFatal, "derive vault token account: %w", err)
	}
	tokenBalance, err := w.rpc.GetTokenAccountBalance(ctx, userATA)
	if err != nil && Classify(err) != KindAccountMissing {
		return SideBuy, 0, err
	}

	w.mu.Lock()
	even := w.stats.TotalTrades%2 == 0
	w.mu.Unlock()

	if even || tokenBalance == 0 {
		return SideBuy, tokenBalance, nil
	}
	return SideSell, tokenBalance, nil
}

// buildTradeRequest implements step 9: size the trade per spec.md §4.2.
func (w *Worker) buildTradeRequest(side TradeSide, solBalance, tokenBalance uint64, vaultCfg Config) (TradeRequest, bool, error) {
	w.mu.Lock()
	creator := w.tokenCreator
	hasCreator := w.hasCreator
	tokenProgram := w.tokenProgramID
	graduated := w.graduated
	ammPool := w.ammPool
	w.mu.Unlock()

	if !graduated && !hasCreator {
		return TradeRequest{}, false, NewClassifiedError(KindFatal, "bonding curve for %s carries no creator; creator-fee vault cannot be resolved", w.mint.Short())
	}

	req := TradeRequest{
		Side:           side,
		SlippageBps:    nonZeroOr(vaultCfg.SlippageBps, w.cfg.DefaultSlippageBps),
		Mint:           w.mint,
		TokenCreator:   creator,
		TokenProgramID: tokenProgram,
		Graduated:      graduated,
		AMMPool:        ammPool,
	}

	if side == SideSell {
		req.TokenAmount = tokenBalance
		return req, false, nil
	}

	if vaultCfg.TradeSizePct == 0 {
		// spec.md §8 boundary: trade-size-pct = 0 means no trade ever issued.
		return TradeRequest{}, true, nil
	}

	size, err := SizeTrade(SizeOpts{
		VaultBalance:   solBalance,
		MinGasReserve:  w.cfg.MinGasReserveLamports,
		TradeSizePct:   vaultCfg.TradeSizePct,
		BotMinTrade:    w.cfg.BotMinTradeLamports,
		BotMaxTrade:    w.cfg.BotMaxTradeLamports,
		RandPercentMin: w.cfg.RandPercentMin,
		RandPercentMax: w.cfg.RandPercentMax,
	})
	if err != nil {
		if err == ErrTradeTooSmall {
			return TradeRequest{}, true, nil
		}
		return TradeRequest{}, false, err
	}
	req.SolAmount = size
	return req, false, nil
}

func nonZeroOr(v, fallback uint16) uint16 {
	if v == 0 {
		return fallback
	}
	return v
}

// activeExecutor picks custody over direct when both are wired; it has no
// say in venue. Venue routing happens one layer down: buildTradeRequest
// stamps TradeRequest.Graduated/AMMPool from the worker's own graduation
// state, and the executor's BuildBuy/BuildSell branch on those fields to
// assemble an AMM swap instead of a bonding-curve one (spec.md §4.3).
func (w *Worker) activeExecutor() Executor {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.custody != nil {
		return w.custody
	}
	return w.direct
}

func (w *Worker) recordSuccess(ctx context.Context, side TradeSide, result TradeResult, vaultSolHolder Address) {
	w.mu.Lock()
	w.stats.TotalTrades++
	w.stats.TotalVolumeSOL += lamportsToSOL(result.SolAmount)
	now := time.Now()
	w.stats.LastTradeTime = &now
	trades := w.stats.TotalTrades
	volume := w.stats.TotalVolumeSOL
	w.mu.Unlock()

	w.vaultLastTrade.Set(vaultSolHolder, now)

	w.log(LogTrade, fmt.Sprintf("%s confirmed sig=%s", side, shortSig(result.Signature)))

	if w.store != nil {
		rec := BotRecord{
			TokenMint:      w.mint,
			VaultStateAddr: w.vault.VaultStateAddr,
			OwnerKey:       w.owner,
			TotalTrades:    trades,
			TotalVolumeSOL: volume,
			LastTradeTime:  &now,
			Status:         BotStatusRunning,
		}
		if err := w.store.UpsertBot(ctx, rec); err != nil {
			w.logger.Warnf("persist bot record for %s: %v", w.mint.Short(), err)
		}
	}
}

func shortSig(sig string) string {
	if len(sig) <= 12 {
		return sig
	}
	return sig[:12]
}

func lamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / 1e9
}

func (w *Worker) markGraduated(ctx context.Context, vaultSolHolder Address) {
	w.mu.Lock()
	alreadyGraduated := w.graduated
	w.graduated = true
	w.mu.Unlock()
	if alreadyGraduated {
		return
	}
	w.log(LogInfo, "bonding curve complete, locating AMM pool")

	pool, err := LocateAMMPool(ctx, w.rpc, w.mint, w.quoteMint)
	if err != nil {
		w.logger.Warnf("locate AMM pool for %s: %v", w.mint.Short(), err)
		return
	}
	w.mu.Lock()
	w.ammPool = pool
	w.mu.Unlock()
	w.log(LogInfo, fmt.Sprintf("located AMM pool %s, routing switched permanently", pool.Short()))
}

func (w *Worker) enterWaitingForFunds() {
	w.mu.Lock()
	already := w.state == StateWaitingForFunds
	w.state = StateWaitingForFunds
	w.mu.Unlock()
	if !already {
		w.log(LogWarn, "insufficient vault balance, waiting for funds")
	}
}

func (w *Worker) exitWaitingForFunds() {
	w.mu.Lock()
	was := w.state == StateWaitingForFunds
	w.state = StateTrading
	w.mu.Unlock()
	if was {
		w.log(LogInfo, "funds detected, resuming trading")
	}
}

// handleCycleError implements step 13: classify and apply backoff.
func (w *Worker) handleCycleError(ctx context.Context, err error) {
	kind := Classify(err)

	switch kind {
	case KindFundsInsufficient:
		w.enterWaitingForFunds()
		return
	case KindSlippageExceeded:
		w.log(LogWarn, fmt.Sprintf("slippage exceeded: %v", err))
	case KindRateLimited:
		w.log(LogWarn, fmt.Sprintf("rate limited: %v", err))
	default:
		w.log(LogError, err.Error())
	}

	n := w.incrementFailures()
	w.sleep(ctx, backoffDuration(n))
}

func (w *Worker) incrementFailures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consecutiveFailuresLocked++
	return w.consecutiveFailuresLocked
}

func (w *Worker) resetFailureCounter() {
	w.mu.Lock()
	w.consecutiveFailuresLocked = 0
	w.mu.Unlock()
}

// backoffDuration implements spec.md §5: min(60s, 5s * 1.5^n).
func backoffDuration(n int) time.Duration {
	d := time.Duration(float64(backoffBase) * math.Pow(backoffFactor, float64(n)))
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func (w *Worker) haltInactive(ctx context.Context, reason string) {
	w.log(LogError, fmt.Sprintf("halting permanently: %s", reason))
	if w.store != nil {
		if err := w.store.SetBotInactive(ctx, w.mint); err != nil {
			w.logger.Warnf("mark bot inactive for %s: %v", w.mint.Short(), err)
		}
	}
}

// maybeClaimFees runs the supplemented fee-claim step: if the vault is the
// token's creator and the configured interval has elapsed since the last
// claim, issue a claim-fees instruction. Best-effort: a failure here is
// logged, not treated as a cycle failure.
func (w *Worker) maybeClaimFees(ctx context.Context) {
	if !w.vault.IsCreator || w.cfg.FeeClaimInterval <= 0 {
		return
	}
	w.mu.Lock()
	due := time.Since(w.lastFeeClaim) >= w.cfg.FeeClaimInterval
	creator := w.tokenCreator
	hasCreator := w.hasCreator
	w.mu.Unlock()
	if !due || !hasCreator {
		return
	}

	result, err := w.activeExecutor().BuildClaimFees(ctx, creator)
	w.mu.Lock()
	w.lastFeeClaim = time.Now()
	w.mu.Unlock()
	if err != nil {
		w.logger.Debugf("fee claim for %s skipped: %v", w.mint.Short(), err)
		return
	}
	w.log(LogInfo, fmt.Sprintf("claimed creator fees sig=%s", shortSig(result.Signature)))
}

// cycleSleepDuration implements step 14: uniform random in
// [min-delay-ms, max-delay-ms] as read from the vault's on-chain config.
func (w *Worker) cycleSleepDuration(cfg Config) time.Duration {
	lo := int(cfg.MinDelaySecs) * 1000
	hi := int(cfg.MaxDelaySecs) * 1000
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	ms := lo + rand.Intn(hi-lo)
	return time.Duration(ms) * time.Millisecond
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (w *Worker) log(level LogLevel, message string) {
	l := BotLog{
		ID:        uuid.NewString(),
		TokenMint: w.mint,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	}
	switch level {
	case LogError:
		w.logger.Errorf("[%s] %s", w.mint.Short(), message)
	case LogWarn:
		w.logger.Warnf("[%s] %s", w.mint.Short(), message)
	default:
		w.logger.Infof("[%s] %s", w.mint.Short(), message)
	}
	if w.store != nil {
		if err := w.store.AppendLog(context.Background(), l); err != nil {
			w.logger.Debugf("append log: %v", err)
		}
	}
	if w.bus != nil {
		w.bus.Publish(l)
	}
}

// Stats returns a snapshot of the worker's in-memory counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// State returns the worker's current coarse state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Graduated reports whether the worker has detected graduation.
func (w *Worker) Graduated() (bool, Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.graduated, w.ammPool
}
