package core

// graduation.go — detects a token's one-way transition from bonding-curve
// venue to AMM venue (spec.md §4.3) and locates the AMM pool account once
// it exists, memoizing the result process-wide so neither lookup method
// repeats for a mint already resolved.
//
// Grounded on core/liquidity_pools.go's pool-account bookkeeping (pools
// keyed by ID, looked up through a manager singleton) generalized from an
// in-process pool ledger to an on-chain pool locator.

import (
	"context"
	"fmt"
	"sync"
)

// poolCache memoizes mint -> AMM pool address, process-wide (spec.md §4.3).
var (
	poolCacheMu sync.RWMutex
	poolCache   = make(map[Address]Address)
)

func cachedPool(mint Address) (Address, bool) {
	poolCacheMu.RLock()
	defer poolCacheMu.RUnlock()
	pool, ok := poolCache[mint]
	return pool, ok
}

func cachePool(mint, pool Address) {
	poolCacheMu.Lock()
	defer poolCacheMu.Unlock()
	poolCache[mint] = pool
}

// GraduationSignal names which of the three detection paths fired
// (spec.md §4.3).
type GraduationSignal int

const (
	SignalNone GraduationSignal = iota
	SignalCompleteByte
	SignalPoolCompleteError
	SignalAMMPoolFound
)

// DetectGraduation checks the first two signals a worker has in hand after
// a bonding-curve read or a trade attempt: the parsed `complete` byte, and
// (if execErr is non-nil) whether it classifies as PoolComplete. The third
// signal — actually locating the pool — is a separate step
// (LocateAMMPool) since it requires RPC calls the caller may want to skip
// when the first two signals are already negative.
func DetectGraduation(curve BondingCurveState, execErr error) (bool, GraduationSignal) {
	if curve.Complete {
		return true, SignalCompleteByte
	}
	if execErr != nil && Classify(execErr) == KindPoolComplete {
		return true, SignalPoolCompleteError
	}
	return false, SignalNone
}

// LocateAMMPool finds the AMM pool for mint against quoteMint (typically
// the native SOL mint), trying the cache, then an indexed program-account
// query, then brute-force PDA derivation over indices 0..99 (spec.md §4.3).
// The result is cached on success.
func LocateAMMPool(ctx context.Context, rpc RPCClient, mint, quoteMint Address) (Address, error) {
	if pool, ok := cachedPool(mint); ok {
		return pool, nil
	}

	if pool, err := locateByIndexQuery(ctx, rpc, mint); err == nil {
		cachePool(mint, pool)
		return pool, nil
	}

	pool, err := locateByBruteForce(ctx, rpc, mint, quoteMint)
	if err != nil {
		return Address{}, fmt.Errorf("locate AMM pool for %s: %w", mint.Short(), err)
	}
	cachePool(mint, pool)
	return pool, nil
}

// locateByIndexQuery issues a single getProgramAccounts call with a memcmp
// filter at the pool layout's base-mint offset. Not every RPC provider
// supports program-account queries; an error here is expected to be
// swallowed by the caller in favor of the brute-force fallback.
func locateByIndexQuery(ctx context.Context, rpc RPCClient, mint Address) (Address, error) {
	filters := []ProgramAccountFilter{{Offset: PoolBaseMintOffset, Bytes: mint[:]}}
	accounts, err := rpc.GetProgramAccounts(ctx, AMMProgramID, filters)
	if err != nil {
		return Address{}, err
	}
	if len(accounts) == 0 {
		return Address{}, fmt.Errorf("no pool account matched index query for mint %s", mint.Short())
	}
	return accounts[0].Address, nil
}

// locateByBruteForce derives candidate pool PDAs over indices 0..99,
// batching reads 10 at a time, and verifies each candidate by reading back
// the base-mint field at its known offset (spec.md §4.3).
func locateByBruteForce(ctx context.Context, rpc RPCClient, mint, quoteMint Address) (Address, error) {
	const total = 100
	const batchSize = 10

	for batchStart := 0; batchStart < total; batchStart += batchSize {
		candidates := make([]Address, 0, batchSize)
		for i := batchStart; i < batchStart+batchSize && i < total; i++ {
			pda, _, err := DeriveAMMPool(uint16(i), mint, quoteMint)
			if err != nil {
				continue
			}
			candidates = append(candidates, pda)
		}
		infos, err := rpc.GetMultipleAccounts(ctx, candidates)
		if err != nil {
			return Address{}, fmt.Errorf("batch read pool candidates: %w", err)
		}
		for i, info := range infos {
			if !info.Exists || len(info.Data) <= PoolBaseMintOffset+32 {
				continue
			}
			var recoveredMint Address
			copy(recoveredMint[:], info.Data[PoolBaseMintOffset:PoolBaseMintOffset+32])
			if recoveredMint == mint {
				return candidates[i], nil
			}
		}
	}
	return Address{}, fmt.Errorf("exhausted %d pool indices without a match", total)
}

// ActivePoolFeeRecipient reads the pool account's mode-flag byte and
// returns recipientA when it is 0 and recipientB otherwise. The
// globalConfig account is not read: the two candidates are the
// caller-supplied recipientA and recipientB.
func ActivePoolFeeRecipient(ctx context.Context, rpc RPCClient, globalConfig, pool Address, recipientA, recipientB Address) (Address, error) {
	poolInfo, err := rpc.GetAccountInfo(ctx, pool)
	if err != nil {
		return Address{}, fmt.Errorf("read pool account: %w", err)
	}
	if !poolInfo.Exists || len(poolInfo.Data) <= PoolModeFlagOffset {
		return Address{}, fmt.Errorf("pool account %s missing or too short for mode flag", pool.Short())
	}
	mode := poolInfo.Data[PoolModeFlagOffset]
	if mode == 0 {
		return recipientA, nil
	}
	return recipientB, nil
}
