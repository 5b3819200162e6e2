package core

// executor.go — the two trade-routing strategies (spec.md §4.2): a direct
// executor (owner-signed) and a via-custody executor (operator-signed,
// vault-funded). Both translate a TradeRequest into a composed,
// signed, submitted, confirmed transaction using core/codec.go and
// core/rpc.go.
//
// Grounded on core/liquidity_pools.go's Swap (constant-product math, fee
// arithmetic under a ledger.Snapshot) generalized to the bonding-curve
// pricing formulas of spec.md §4.2, and on the pumpfun/pumpswap reference
// files for the instruction-assembly shape and graduation-error handling.

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// nominalFallbackTokensOut is the fixed nominal expectation used when the
// reserves read is stale or zero (spec.md §4.2).
const nominalFallbackTokensOut = 100_000

// Executor is the capability set every routing strategy implements
// (spec.md §4.2).
type Executor interface {
	BuildBuy(ctx context.Context, req TradeRequest) (TradeResult, error)
	BuildSell(ctx context.Context, req TradeRequest) (TradeResult, error)
	BuildClaimFees(ctx context.Context, creator Address) (TradeResult, error)
}

//---------------------------------------------------------------------
// Pricing / slippage math (spec.md §4.2)
//---------------------------------------------------------------------

// ExpectedOutput computes the constant-product expected output of a swap
// of deltaIn against reserves (reserveIn, reserveOut), per spec.md §4.2:
// floor(deltaIn * reserveOut / (reserveIn + deltaIn) * 10^decimals).
// decimals is typically 0 when reserves are already denominated in raw
// base units; a non-zero value rescales the result for display-unit
// reserves.
func ExpectedOutput(deltaIn, reserveIn, reserveOut uint64, decimals uint8) uint64 {
	if reserveIn == 0 && reserveOut == 0 {
		return 0
	}
	num := new64(deltaIn) * new64(reserveOut)
	den := new64(reserveIn) + new64(deltaIn)
	if den == 0 {
		return 0
	}
	out := num / den
	if decimals > 0 {
		p := pow10(decimals)
		out = out*p + (num%den)*p/den
	}
	return out
}

func new64(v uint64) uint64 { return v }

func pow10(n uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}

// MinOut applies a slippage tolerance to an expected output, floor-rounded
// (spec.md §4.2: "Min-out is floor(expected × (1 − slippage))").
func MinOut(expected uint64, slippageBps uint16) uint64 {
	frac := 1.0 - float64(slippageBps)/10_000.0
	if frac < 0 {
		frac = 0
	}
	return uint64(math.Floor(float64(expected) * frac))
}

// MaxIn applies a slippage tolerance to a requested input, floor-rounded
// (spec.md §4.2: "max-in is floor(requested × (1 + slippage))").
func MaxIn(requested uint64, slippageBps uint16) uint64 {
	frac := 1.0 + float64(slippageBps)/10_000.0
	return uint64(math.Floor(float64(requested) * frac))
}

// QuoteBuy computes (expectedTokensOut, maxSolCost) for a buy of
// solAmount lamports against a bonding curve's virtual reserves. Falls back
// to the nominal expectation when reserves are stale or zero.
func QuoteBuy(curve BondingCurveState, solAmount uint64, slippageBps uint16) (expectedOut, maxCost uint64) {
	if curve.VirtSol == 0 || curve.VirtToken == 0 {
		expectedOut = nominalFallbackTokensOut
		if expectedOut < 1 {
			expectedOut = 1
		}
		return expectedOut, MaxIn(solAmount, slippageBps)
	}
	expectedOut = ExpectedOutput(solAmount, curve.VirtSol, curve.VirtToken, 0)
	return expectedOut, MaxIn(solAmount, slippageBps)
}

// QuoteSell computes (expectedSolOut, minSolOut) for a sell of tokenAmount
// raw token units against a bonding curve's virtual reserves.
func QuoteSell(curve BondingCurveState, tokenAmount uint64, slippageBps uint16) (expectedOut, minOut uint64) {
	if curve.VirtSol == 0 || curve.VirtToken == 0 {
		expectedOut = nominalFallbackTokensOut
		if expectedOut < 1 {
			expectedOut = 1
		}
		return expectedOut, MinOut(expectedOut, slippageBps)
	}
	expectedOut = ExpectedOutput(tokenAmount, curve.VirtToken, curve.VirtSol, 0)
	return expectedOut, MinOut(expectedOut, slippageBps)
}

//---------------------------------------------------------------------
// Sizing (spec.md §4.2 — via-custody ceiling, applies equally as a sanity
// ceiling for the direct path since both share the same worker-level caps)
//---------------------------------------------------------------------

// SizeOpts bundles the inputs SizeTrade needs.
type SizeOpts struct {
	VaultBalance   uint64 // lamports
	MinGasReserve  uint64 // lamports
	TradeSizePct   uint8  // on-chain ceiling, spec.md §4.2
	BotMinTrade    uint64 // lamports
	BotMaxTrade    uint64 // lamports
	RandPercentMin float64 // lower bound of the random-in-percent-range draw
	RandPercentMax float64
}

// ErrTradeTooSmall is returned by SizeTrade when the computed size would
// fall below the configured floor; the caller skips the cycle.
var ErrTradeTooSmall = fmt.Errorf("sized trade below bot-min-trade floor")

// SizeTrade computes the lamport amount for the next buy, honoring
// trade-size-pct as an absolute ceiling (spec.md §4.2):
//
//	allowed-max = (vault-balance − min-gas-reserve) × trade-size-pct / 100
//	chosen      = min(random_in_percent_range × available, allowed-max × 0.95, bot-max-trade)
//
// and erroring if chosen does not exceed bot-min-trade.
func SizeTrade(o SizeOpts) (uint64, error) {
	if o.VaultBalance <= o.MinGasReserve {
		return 0, ErrFundsInsufficient
	}
	available := o.VaultBalance - o.MinGasReserve
	allowedMax := available * uint64(o.TradeSizePct) / 100

	lo, hi := o.RandPercentMin, o.RandPercentMax
	if hi <= lo {
		hi = lo + 0.0001
	}
	randFrac := lo + rand.Float64()*(hi-lo)
	randomPick := uint64(float64(available) * randFrac)

	ceilingPick := uint64(float64(allowedMax) * 0.95)

	chosen := minUint64(randomPick, ceilingPick, o.BotMaxTrade)
	if chosen <= o.BotMinTrade {
		return 0, ErrTradeTooSmall
	}
	return chosen, nil
}

func minUint64(vals ...uint64) uint64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

//---------------------------------------------------------------------
// Post-graduation AMM routing (spec.md §4.3)
//---------------------------------------------------------------------

// ammSwapPlan bundles the parsed pool state, the active fee recipient, and
// the computed swap amounts a post-graduation buy or sell needs. Shared by
// both executors since the account-list shape differs only in who owns the
// base/quote token accounts (spec.md §4.3).
type ammSwapPlan struct {
	pool         PoolState
	globalConfig Address
	feeRecipient Address
	amountA      uint64 // buy: expected base-token out; sell: exact base-token in
	amountB      uint64 // buy: max quote/SOL cost; sell: min quote/SOL out
}

// prepareAMMSwap reads the pool's live reserves from its two vault token
// accounts, derives price as quote/base, and resolves the active per-pool
// fee recipient (spec.md §4.3). For a sell, req.TokenAmount must already be
// the exact (non-zero) amount to swap; callers resolve "sell all" before
// calling this.
func prepareAMMSwap(ctx context.Context, rpc RPCClient, req TradeRequest) (ammSwapPlan, error) {
	poolInfo, err := rpc.GetAccountInfo(ctx, req.AMMPool)
	if err != nil {
		return ammSwapPlan{}, err
	}
	if !poolInfo.Exists {
		return ammSwapPlan{}, NewClassifiedError(KindAccountMissing, "AMM pool account missing for %s", req.AMMPool.Short())
	}
	pool, err := ParsePoolAccount(poolInfo.Data)
	if err != nil {
		return ammSwapPlan{}, NewClassifiedError(KindFatal, "parse AMM pool: %w", err)
	}

	baseReserve, err := rpc.GetTokenAccountBalance(ctx, pool.BaseVault)
	if err != nil {
		return ammSwapPlan{}, err
	}
	quoteReserve, err := rpc.GetTokenAccountBalance(ctx, pool.QuoteVault)
	if err != nil {
		return ammSwapPlan{}, err
	}

	globalConfig, _, err := DeriveAMMGlobalConfig()
	if err != nil {
		return ammSwapPlan{}, NewClassifiedError(KindFatal, "derive AMM global config: %w", err)
	}
	feeRecipient, err := ActivePoolFeeRecipient(ctx, rpc, globalConfig, req.AMMPool, AMMFeeRecipientA, AMMFeeRecipientB)
	if err != nil {
		return ammSwapPlan{}, err
	}

	plan := ammSwapPlan{pool: pool, globalConfig: globalConfig, feeRecipient: feeRecipient}
	if req.Side == SideBuy {
		plan.amountA = ExpectedOutput(req.SolAmount, quoteReserve, baseReserve, 0)
		plan.amountB = MaxIn(req.SolAmount, req.SlippageBps)
	} else {
		expectedOut := ExpectedOutput(req.TokenAmount, baseReserve, quoteReserve, 0)
		plan.amountA = req.TokenAmount
		plan.amountB = MinOut(expectedOut, req.SlippageBps)
	}
	return plan, nil
}

//---------------------------------------------------------------------
// Direct executor
//---------------------------------------------------------------------

// DirectExecutor trades with a locally-held signing keypair that owns the
// token account directly (spec.md §4.2).
type DirectExecutor struct {
	RPC    RPCClient
	Signer Signer
}

// BuildBuy composes, signs, submits, and confirms a direct buy. Once the
// worker has graduated the token, req.AMMPool routes this through the AMM
// swap path instead (spec.md §4.3).
func (d *DirectExecutor) BuildBuy(ctx context.Context, req TradeRequest) (TradeResult, error) {
	if req.Graduated && req.AMMPool != (Address{}) {
		return d.buildAMMBuy(ctx, req)
	}

	bondingCurve, _, err := DeriveBondingCurve(req.Mint)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve: %w", err)
	}
	curveInfo, err := d.RPC.GetAccountInfo(ctx, bondingCurve)
	if err != nil {
		return TradeResult{}, err
	}
	if !curveInfo.Exists {
		return TradeResult{}, NewClassifiedError(KindAccountMissing, "bonding curve account missing for mint %s", req.Mint.Short())
	}
	curve, err := ParseBondingCurveState(curveInfo.Data)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "parse bonding curve: %w", err)
	}
	if curve.Complete {
		return TradeResult{}, ErrPoolComplete
	}

	expectedOut, maxCost := QuoteBuy(curve, req.SolAmount, req.SlippageBps)
	payload := EncodeBuy(expectedOut, maxCost)

	creatorVault, _, err := DeriveCreatorVault(req.TokenCreator)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive creator vault: %w", err)
	}
	bcATA, _, err := DeriveBondingCurveTokenAccount(bondingCurve, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve ATA: %w", err)
	}
	userATA, _, err := DeriveBondingCurveTokenAccount(d.Signer.PublicKey(), req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive user ATA: %w", err)
	}

	accounts := DirectBuyAccounts(Address{}, Address{}, req.Mint, bondingCurve, bcATA, userATA, d.Signer.PublicKey(), creatorVault, Address{}, DEXProgramID)

	sig, err := submitInstruction(ctx, d.RPC, d.Signer, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: maxCost, TokenAmount: expectedOut}, nil
}

// BuildSell composes, signs, submits, and confirms a direct sell. A zero
// req.TokenAmount means "sell all" and is resolved against the signer's
// live token-account balance. Once graduated, routes through the AMM swap
// path (spec.md §4.3).
func (d *DirectExecutor) BuildSell(ctx context.Context, req TradeRequest) (TradeResult, error) {
	if req.Graduated && req.AMMPool != (Address{}) {
		return d.buildAMMSell(ctx, req)
	}

	bondingCurve, _, err := DeriveBondingCurve(req.Mint)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve: %w", err)
	}
	curveInfo, err := d.RPC.GetAccountInfo(ctx, bondingCurve)
	if err != nil {
		return TradeResult{}, err
	}
	if !curveInfo.Exists {
		return TradeResult{}, NewClassifiedError(KindAccountMissing, "bonding curve account missing for mint %s", req.Mint.Short())
	}
	curve, err := ParseBondingCurveState(curveInfo.Data)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "parse bonding curve: %w", err)
	}
	if curve.Complete {
		return TradeResult{}, ErrPoolComplete
	}

	userATA, _, err := DeriveBondingCurveTokenAccount(d.Signer.PublicKey(), req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive user ATA: %w", err)
	}

	tokenAmount := req.TokenAmount
	if tokenAmount == 0 {
		bal, err := d.RPC.GetTokenAccountBalance(ctx, userATA)
		if err != nil {
			return TradeResult{}, err
		}
		tokenAmount = bal
	}
	if tokenAmount == 0 {
		return TradeResult{}, ErrFundsInsufficient
	}

	expectedOut, minOut := QuoteSell(curve, tokenAmount, req.SlippageBps)
	payload := EncodeSell(tokenAmount, minOut)

	creatorVault, _, err := DeriveCreatorVault(req.TokenCreator)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive creator vault: %w", err)
	}
	bcATA, _, err := DeriveBondingCurveTokenAccount(bondingCurve, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve ATA: %w", err)
	}

	accounts := DirectSellAccounts(Address{}, Address{}, req.Mint, bondingCurve, bcATA, userATA, d.Signer.PublicKey(), creatorVault, Address{}, DEXProgramID)

	sig, err := submitInstruction(ctx, d.RPC, d.Signer, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: expectedOut, TokenAmount: tokenAmount}, nil
}

// BuildClaimFees claims the signer's own creator fees directly.
func (d *DirectExecutor) BuildClaimFees(ctx context.Context, creator Address) (TradeResult, error) {
	creatorVault, _, err := DeriveCreatorVault(creator)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive creator vault: %w", err)
	}
	payload := EncodeClaimFees()
	accounts := []AccountMeta{
		{creatorVault, false, true},
		{d.Signer.PublicKey(), true, true},
		{DEXProgramID, false, false},
	}
	sig, err := submitInstruction(ctx, d.RPC, d.Signer, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig}, nil
}

// buildAMMBuy composes a post-graduation buy against the located AMM pool,
// specifying an exact desired base-token output capped by a max quote/SOL
// cost (spec.md §4.3).
func (d *DirectExecutor) buildAMMBuy(ctx context.Context, req TradeRequest) (TradeResult, error) {
	plan, err := prepareAMMSwap(ctx, d.RPC, req)
	if err != nil {
		return TradeResult{}, err
	}

	userBaseATA, _, err := DeriveBondingCurveTokenAccount(d.Signer.PublicKey(), req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive user base ATA: %w", err)
	}
	userQuoteATA, _, err := DeriveBondingCurveTokenAccount(d.Signer.PublicKey(), NativeSolMint, TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive user quote ATA: %w", err)
	}

	payload := EncodeAMMSwapBaseOutput(plan.amountA, plan.amountB)
	accounts := AMMSwapAccounts(req.AMMPool, plan.pool.BaseVault, plan.pool.QuoteVault, userBaseATA, userQuoteATA, d.Signer.PublicKey(), plan.feeRecipient, plan.globalConfig, AMMProgramID)

	sig, err := submitInstruction(ctx, d.RPC, d.Signer, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: plan.amountB, TokenAmount: plan.amountA}, nil
}

// buildAMMSell mirrors buildAMMBuy for the sell direction: exact base-token
// input, floored by a minimum quote/SOL output.
func (d *DirectExecutor) buildAMMSell(ctx context.Context, req TradeRequest) (TradeResult, error) {
	userBaseATA, _, err := DeriveBondingCurveTokenAccount(d.Signer.PublicKey(), req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive user base ATA: %w", err)
	}

	tokenAmount := req.TokenAmount
	if tokenAmount == 0 {
		bal, err := d.RPC.GetTokenAccountBalance(ctx, userBaseATA)
		if err != nil {
			return TradeResult{}, err
		}
		tokenAmount = bal
	}
	if tokenAmount == 0 {
		return TradeResult{}, ErrFundsInsufficient
	}
	req.TokenAmount = tokenAmount

	plan, err := prepareAMMSwap(ctx, d.RPC, req)
	if err != nil {
		return TradeResult{}, err
	}
	userQuoteATA, _, err := DeriveBondingCurveTokenAccount(d.Signer.PublicKey(), NativeSolMint, TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive user quote ATA: %w", err)
	}

	payload := EncodeAMMSwapBaseInput(plan.amountA, plan.amountB)
	accounts := AMMSwapAccounts(req.AMMPool, plan.pool.BaseVault, plan.pool.QuoteVault, userBaseATA, userQuoteATA, d.Signer.PublicKey(), plan.feeRecipient, plan.globalConfig, AMMProgramID)

	sig, err := submitInstruction(ctx, d.RPC, d.Signer, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: plan.amountB, TokenAmount: tokenAmount}, nil
}

//---------------------------------------------------------------------
// Via-custody executor
//---------------------------------------------------------------------

// CustodyExecutor routes trades through a custody-contract vault PDA,
// signed by the shared operator key (spec.md §4.2). TokenCreator is a
// required TradeRequest field (spec.md §9 open question) rather than a
// silent default to the vault's own address.
type CustodyExecutor struct {
	RPC      RPCClient
	Operator Signer
	Vault    VaultRecord
}

// BuildBuy reads the vault's on-chain Config (a zero trade-size-pct refuses
// the trade), derives the vault's ATA, and assembles the CPI-wrapping
// instruction. No create-account prologue instruction is issued: the
// vault's ATA must already exist.
func (c *CustodyExecutor) BuildBuy(ctx context.Context, req TradeRequest) (TradeResult, error) {
	vaultSolHolder, err := c.Vault.SolHolderAddress()
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault sol holder: %w", err)
	}

	if req.Graduated && req.AMMPool != (Address{}) {
		return c.buildAMMBuy(ctx, req, vaultSolHolder)
	}

	cfg, curve, err := c.readVaultAndCurve(ctx, req.Mint)
	if err != nil {
		return TradeResult{}, err
	}
	if curve.Complete {
		return TradeResult{}, ErrPoolComplete
	}
	if cfg.TradeSizePct == 0 {
		return TradeResult{}, ErrTradeTooSmall
	}

	expectedOut, maxCost := QuoteBuy(curve, req.SolAmount, req.SlippageBps)

	bondingCurve, _, err := DeriveBondingCurve(req.Mint)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve: %w", err)
	}
	bcATA, _, err := DeriveBondingCurveTokenAccount(bondingCurve, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve ATA: %w", err)
	}
	vaultATA, _, err := DeriveBondingCurveTokenAccount(vaultSolHolder, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault ATA: %w", err)
	}
	creatorVault, _, err := DeriveCreatorVault(req.TokenCreator)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive creator vault: %w", err)
	}

	dexAccounts := DirectBuyAccounts(Address{}, Address{}, req.Mint, bondingCurve, bcATA, vaultATA, vaultSolHolder, creatorVault, Address{}, DEXProgramID)
	accounts := VaultBuyAccounts(c.Vault.VaultStateAddr, vaultSolHolder, c.Operator.PublicKey(), dexAccounts)

	payload := EncodeVaultBuy(uint64(c.Vault.Nonce), expectedOut, maxCost)

	sig, err := submitInstruction(ctx, c.RPC, c.Operator, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: maxCost, TokenAmount: expectedOut}, nil
}

// BuildSell mirrors BuildBuy for the sell direction.
func (c *CustodyExecutor) BuildSell(ctx context.Context, req TradeRequest) (TradeResult, error) {
	vaultSolHolder, err := c.Vault.SolHolderAddress()
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault sol holder: %w", err)
	}

	if req.Graduated && req.AMMPool != (Address{}) {
		return c.buildAMMSell(ctx, req, vaultSolHolder)
	}

	_, curve, err := c.readVaultAndCurve(ctx, req.Mint)
	if err != nil {
		return TradeResult{}, err
	}
	if curve.Complete {
		return TradeResult{}, ErrPoolComplete
	}

	bondingCurve, _, err := DeriveBondingCurve(req.Mint)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve: %w", err)
	}
	vaultATA, _, err := DeriveBondingCurveTokenAccount(vaultSolHolder, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault ATA: %w", err)
	}

	tokenAmount := req.TokenAmount
	if tokenAmount == 0 {
		bal, err := c.RPC.GetTokenAccountBalance(ctx, vaultATA)
		if err != nil {
			return TradeResult{}, err
		}
		tokenAmount = bal
	}
	if tokenAmount == 0 {
		return TradeResult{}, ErrFundsInsufficient
	}

	expectedOut, minOut := QuoteSell(curve, tokenAmount, req.SlippageBps)

	bcATA, _, err := DeriveBondingCurveTokenAccount(bondingCurve, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive bonding curve ATA: %w", err)
	}
	creatorVault, _, err := DeriveCreatorVault(req.TokenCreator)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive creator vault: %w", err)
	}

	dexAccounts := DirectSellAccounts(Address{}, Address{}, req.Mint, bondingCurve, bcATA, vaultATA, vaultSolHolder, creatorVault, Address{}, DEXProgramID)
	accounts := VaultSellAccounts(c.Vault.VaultStateAddr, vaultSolHolder, c.Operator.PublicKey(), dexAccounts)

	payload := EncodeVaultSell(uint64(c.Vault.Nonce), tokenAmount, minOut)

	sig, err := submitInstruction(ctx, c.RPC, c.Operator, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: expectedOut, TokenAmount: tokenAmount}, nil
}

// BuildClaimFees claims the vault's accrued creator fees, if IsCreator.
func (c *CustodyExecutor) BuildClaimFees(ctx context.Context, creator Address) (TradeResult, error) {
	if !c.Vault.IsCreator {
		return TradeResult{}, NewClassifiedError(KindFatal, "vault %s is not the token creator, cannot claim fees", c.Vault.VaultStateAddr.Short())
	}
	vaultSolHolder, err := c.Vault.SolHolderAddress()
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault sol holder: %w", err)
	}
	creatorVault, _, err := DeriveCreatorVault(creator)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive creator vault: %w", err)
	}
	dexAccounts := []AccountMeta{
		{creatorVault, false, true},
		{vaultSolHolder, false, true},
		{DEXProgramID, false, false},
	}
	accounts := VaultBuyAccounts(c.Vault.VaultStateAddr, vaultSolHolder, c.Operator.PublicKey(), dexAccounts)
	payload := EncodeVaultClaimFees(uint64(c.Vault.Nonce))

	sig, err := submitInstruction(ctx, c.RPC, c.Operator, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig}, nil
}

// buildAMMBuy mirrors DirectExecutor.buildAMMBuy, routed through the
// custody vault's CPI-wrapping instruction instead of a direct one
// (spec.md §4.3).
func (c *CustodyExecutor) buildAMMBuy(ctx context.Context, req TradeRequest, vaultSolHolder Address) (TradeResult, error) {
	plan, err := prepareAMMSwap(ctx, c.RPC, req)
	if err != nil {
		return TradeResult{}, err
	}

	vaultBaseATA, _, err := DeriveBondingCurveTokenAccount(vaultSolHolder, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault base ATA: %w", err)
	}
	vaultQuoteATA, _, err := DeriveBondingCurveTokenAccount(vaultSolHolder, NativeSolMint, TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault quote ATA: %w", err)
	}

	dexAccounts := AMMSwapAccounts(req.AMMPool, plan.pool.BaseVault, plan.pool.QuoteVault, vaultBaseATA, vaultQuoteATA, vaultSolHolder, plan.feeRecipient, plan.globalConfig, AMMProgramID)
	accounts := VaultBuyAccounts(c.Vault.VaultStateAddr, vaultSolHolder, c.Operator.PublicKey(), dexAccounts)
	payload := EncodeVaultAMMSwapBaseOutput(uint64(c.Vault.Nonce), plan.amountA, plan.amountB)

	sig, err := submitInstruction(ctx, c.RPC, c.Operator, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: plan.amountB, TokenAmount: plan.amountA}, nil
}

// buildAMMSell mirrors buildAMMBuy for the sell direction.
func (c *CustodyExecutor) buildAMMSell(ctx context.Context, req TradeRequest, vaultSolHolder Address) (TradeResult, error) {
	vaultBaseATA, _, err := DeriveBondingCurveTokenAccount(vaultSolHolder, req.Mint, req.TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault base ATA: %w", err)
	}

	tokenAmount := req.TokenAmount
	if tokenAmount == 0 {
		bal, err := c.RPC.GetTokenAccountBalance(ctx, vaultBaseATA)
		if err != nil {
			return TradeResult{}, err
		}
		tokenAmount = bal
	}
	if tokenAmount == 0 {
		return TradeResult{}, ErrFundsInsufficient
	}
	req.TokenAmount = tokenAmount

	plan, err := prepareAMMSwap(ctx, c.RPC, req)
	if err != nil {
		return TradeResult{}, err
	}
	vaultQuoteATA, _, err := DeriveBondingCurveTokenAccount(vaultSolHolder, NativeSolMint, TokenProgramID)
	if err != nil {
		return TradeResult{}, NewClassifiedError(KindFatal, "derive vault quote ATA: %w", err)
	}

	dexAccounts := AMMSwapAccounts(req.AMMPool, plan.pool.BaseVault, plan.pool.QuoteVault, vaultBaseATA, vaultQuoteATA, vaultSolHolder, plan.feeRecipient, plan.globalConfig, AMMProgramID)
	accounts := VaultSellAccounts(c.Vault.VaultStateAddr, vaultSolHolder, c.Operator.PublicKey(), dexAccounts)
	payload := EncodeVaultAMMSwapBaseInput(uint64(c.Vault.Nonce), plan.amountA, plan.amountB)

	sig, err := submitInstruction(ctx, c.RPC, c.Operator, payload, accounts)
	if err != nil {
		return TradeResult{}, err
	}
	return TradeResult{Signature: sig, SolAmount: plan.amountB, TokenAmount: tokenAmount}, nil
}

// readVaultAndCurve fetches and parses both the vault state and the
// bonding-curve state in one batched round trip.
func (c *CustodyExecutor) readVaultAndCurve(ctx context.Context, mint Address) (Config, BondingCurveState, error) {
	bondingCurve, _, err := DeriveBondingCurve(mint)
	if err != nil {
		return Config{}, BondingCurveState{}, NewClassifiedError(KindFatal, "derive bonding curve: %w", err)
	}
	infos, err := c.RPC.GetMultipleAccounts(ctx, []Address{c.Vault.VaultStateAddr, bondingCurve})
	if err != nil {
		return Config{}, BondingCurveState{}, err
	}
	if len(infos) != 2 || !infos[0].Exists {
		return Config{}, BondingCurveState{}, NewClassifiedError(KindFatal, "vault state account missing")
	}
	vs, err := ParseVaultState(infos[0].Data)
	if err != nil {
		return Config{}, BondingCurveState{}, NewClassifiedError(KindFatal, "parse vault state: %w", err)
	}
	if !infos[1].Exists {
		return Config{}, BondingCurveState{}, NewClassifiedError(KindAccountMissing, "bonding curve account missing for mint %s", mint.Short())
	}
	curve, err := ParseBondingCurveState(infos[1].Data)
	if err != nil {
		return Config{}, BondingCurveState{}, NewClassifiedError(KindFatal, "parse bonding curve: %w", err)
	}
	return vs.Config, curve, nil
}

//---------------------------------------------------------------------
// Shared submission helper
//---------------------------------------------------------------------

// submitInstruction assembles a single-instruction transaction envelope
// (payload + accounts), signs it, submits it, and waits for confirmation.
// It fetches a recent blockhash first (failing if that read fails), but the
// blockhash is not written into the envelope. The chain-native wire
// transaction format (compute-budget prologue instructions, message header,
// signature placement) is not built anywhere in this engine; its concern
// stops at producing the instruction data and account list the codec is
// responsible for and handing them to the RPC façade.
func submitInstruction(ctx context.Context, rpc RPCClient, signer Signer, payload []byte, accounts []AccountMeta) (string, error) {
	_, err := rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	raw := packTransaction(payload, accounts, signer)
	sig, err := rpc.SendRawTransaction(ctx, raw)
	if err != nil {
		return "", err
	}
	if err := rpc.ConfirmTransaction(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// packTransaction serializes the instruction payload, its account list, and
// the signer's public key into a single byte envelope. A production signer
// layer would build the chain-native transaction wire format; this engine
// models only what core/codec.go owns (spec.md §4.1 scope: "no I/O").
func packTransaction(payload []byte, accounts []AccountMeta, signer Signer) []byte {
	buf := make([]byte, 0, len(payload)+32+len(accounts)*33)
	buf = append(buf, signer.PublicKey().Bytes()...)
	for _, a := range accounts {
		buf = append(buf, a.Pubkey.Bytes()...)
	}
	buf = append(buf, payload...)
	sig := signer.Sign(buf)
	return append(sig, buf...)
}
