package core

import "testing"

func TestExpectedOutputConstantProduct(t *testing.T) {
	// rᵥ-quote = 30 SOL, rᵥ-base = 1_000_000_000 tokens, buy of 1 SOL.
	out := ExpectedOutput(1_000_000_000, 30_000_000_000, 1_000_000_000, 0)
	if out == 0 {
		t.Fatal("expected non-zero output")
	}
	// Larger reserves should yield a smaller marginal output for the same input.
	smaller := ExpectedOutput(1_000_000_000, 60_000_000_000, 1_000_000_000, 0)
	if smaller >= out {
		t.Errorf("expected deeper reserves to produce smaller output: %d >= %d", smaller, out)
	}
}

func TestMinOutFloorsDownward(t *testing.T) {
	got := MinOut(1000, 500) // 5% slippage
	if got != 950 {
		t.Errorf("MinOut(1000, 500) = %d, want 950", got)
	}
}

func TestMaxInFloorsUpward(t *testing.T) {
	got := MaxIn(1000, 500)
	if got != 1050 {
		t.Errorf("MaxIn(1000, 500) = %d, want 1050", got)
	}
}

func TestSizeTradeHonorsCeiling(t *testing.T) {
	opts := SizeOpts{
		VaultBalance:   100_000_000, // 0.1 SOL
		MinGasReserve:  10_000_000,  // 0.01 SOL
		TradeSizePct:   10,
		BotMinTrade:    1,
		BotMaxTrade:    1_000_000_000,
		RandPercentMin: 1.0,
		RandPercentMax: 1.0, // deterministic: always picks 100% of available
	}
	size, err := SizeTrade(opts)
	if err != nil {
		t.Fatalf("SizeTrade: %v", err)
	}
	available := opts.VaultBalance - opts.MinGasReserve
	allowedMax := available * uint64(opts.TradeSizePct) / 100
	ceiling := uint64(float64(allowedMax) * 0.95)
	if size != ceiling {
		t.Errorf("SizeTrade = %d, want the allowed-max ceiling %d", size, ceiling)
	}
}

func TestSizeTradeInsufficientFunds(t *testing.T) {
	opts := SizeOpts{VaultBalance: 1, MinGasReserve: 10}
	if _, err := SizeTrade(opts); err != ErrFundsInsufficient {
		t.Errorf("SizeTrade error = %v, want ErrFundsInsufficient", err)
	}
}

func TestSizeTradeBelowFloorSkipped(t *testing.T) {
	opts := SizeOpts{
		VaultBalance:   100_000_000,
		MinGasReserve:  99_999_999,
		TradeSizePct:   10,
		BotMinTrade:    1_000_000,
		BotMaxTrade:    1_000_000_000,
		RandPercentMin: 0.5,
		RandPercentMax: 0.5,
	}
	if _, err := SizeTrade(opts); err != ErrTradeTooSmall {
		t.Errorf("SizeTrade error = %v, want ErrTradeTooSmall", err)
	}
}

func TestQuoteBuyFallsBackToNominalOnZeroReserves(t *testing.T) {
	curve := BondingCurveState{}
	out, maxCost := QuoteBuy(curve, 1_000_000, 100)
	if out != nominalFallbackTokensOut {
		t.Errorf("QuoteBuy fallback = %d, want %d", out, nominalFallbackTokensOut)
	}
	if maxCost <= 1_000_000 {
		t.Errorf("QuoteBuy maxCost %d should exceed the requested amount", maxCost)
	}
}
