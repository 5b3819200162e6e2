package core

import (
	"context"
	"errors"
	"testing"
)

// stubRPC is a minimal RPCClient fake for graduation-path tests. Methods
// the exercised paths never call panic, so a test that reaches one fails
// loudly instead of silently returning a zero value.
type stubRPC struct {
	accounts        map[Address]AccountInfo
	programAccounts []ProgramAccount
	programErr      error
}

func (s *stubRPC) GetAccountInfo(ctx context.Context, addr Address) (AccountInfo, error) {
	if info, ok := s.accounts[addr]; ok {
		return info, nil
	}
	return AccountInfo{}, nil
}

func (s *stubRPC) GetMultipleAccounts(ctx context.Context, addrs []Address) ([]AccountInfo, error) {
	out := make([]AccountInfo, len(addrs))
	for i, a := range addrs {
		out[i] = s.accounts[a]
	}
	return out, nil
}

func (s *stubRPC) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	panic("GetBalance not implemented by stubRPC")
}

func (s *stubRPC) GetTokenAccountBalance(ctx context.Context, addr Address) (uint64, error) {
	panic("GetTokenAccountBalance not implemented by stubRPC")
}

func (s *stubRPC) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	panic("GetLatestBlockhash not implemented by stubRPC")
}

func (s *stubRPC) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	panic("SendRawTransaction not implemented by stubRPC")
}

func (s *stubRPC) ConfirmTransaction(ctx context.Context, signature string) error {
	panic("ConfirmTransaction not implemented by stubRPC")
}

func (s *stubRPC) GetProgramAccounts(ctx context.Context, program Address, filters []ProgramAccountFilter) ([]ProgramAccount, error) {
	if s.programErr != nil {
		return nil, s.programErr
	}
	return s.programAccounts, nil
}

func (s *stubRPC) SubscribeAccountChange(ctx context.Context, addr Address, cb AccountChangeCallback) (func(), error) {
	panic("SubscribeAccountChange not implemented by stubRPC")
}

func poolAccountData(baseMint Address, modeFlag byte) []byte {
	buf := make([]byte, PoolModeFlagOffset+1)
	copy(buf[PoolBaseMintOffset:], baseMint[:])
	buf[PoolModeFlagOffset] = modeFlag
	return buf
}

func TestDetectGraduationSignals(t *testing.T) {
	if ok, sig := DetectGraduation(BondingCurveState{Complete: true}, nil); !ok || sig != SignalCompleteByte {
		t.Errorf("complete byte: got (%v, %v)", ok, sig)
	}
	if ok, sig := DetectGraduation(BondingCurveState{}, ErrPoolComplete); !ok || sig != SignalPoolCompleteError {
		t.Errorf("pool-complete error: got (%v, %v)", ok, sig)
	}
	if ok, sig := DetectGraduation(BondingCurveState{}, nil); ok || sig != SignalNone {
		t.Errorf("no signal: got (%v, %v)", ok, sig)
	}
}

func TestLocateAMMPoolCacheHit(t *testing.T) {
	mint, err := AddressFromBytes(fixedAddrBytes(101))
	if err != nil {
		t.Fatal(err)
	}
	pool, err := AddressFromBytes(fixedAddrBytes(102))
	if err != nil {
		t.Fatal(err)
	}
	cachePool(mint, pool)

	got, err := LocateAMMPool(context.Background(), &stubRPC{}, mint, NativeSolMint)
	if err != nil {
		t.Fatalf("LocateAMMPool: %v", err)
	}
	if got != pool {
		t.Errorf("LocateAMMPool = %v, want cached %v", got, pool)
	}
}

func TestLocateAMMPoolByIndexQuery(t *testing.T) {
	mint, err := AddressFromBytes(fixedAddrBytes(103))
	if err != nil {
		t.Fatal(err)
	}
	pool, err := AddressFromBytes(fixedAddrBytes(104))
	if err != nil {
		t.Fatal(err)
	}
	rpc := &stubRPC{programAccounts: []ProgramAccount{{Address: pool}}}

	got, err := LocateAMMPool(context.Background(), rpc, mint, NativeSolMint)
	if err != nil {
		t.Fatalf("LocateAMMPool: %v", err)
	}
	if got != pool {
		t.Errorf("LocateAMMPool = %v, want %v", got, pool)
	}
	if cached, ok := cachedPool(mint); !ok || cached != pool {
		t.Error("successful index-query lookup was not cached")
	}
}

func TestLocateAMMPoolByBruteForce(t *testing.T) {
	mint, err := AddressFromBytes(fixedAddrBytes(105))
	if err != nil {
		t.Fatal(err)
	}
	candidate, _, err := DeriveAMMPool(3, mint, NativeSolMint)
	if err != nil {
		t.Fatal(err)
	}

	rpc := &stubRPC{
		programErr: errors.New("program-account query unsupported"),
		accounts: map[Address]AccountInfo{
			candidate: {Exists: true, Data: poolAccountData(mint, 0)},
		},
	}

	got, err := LocateAMMPool(context.Background(), rpc, mint, NativeSolMint)
	if err != nil {
		t.Fatalf("LocateAMMPool: %v", err)
	}
	if got != candidate {
		t.Errorf("LocateAMMPool = %v, want brute-forced %v", got, candidate)
	}
}

func TestActivePoolFeeRecipientModeFlag(t *testing.T) {
	pool, err := AddressFromBytes(fixedAddrBytes(106))
	if err != nil {
		t.Fatal(err)
	}
	rpc := &stubRPC{accounts: map[Address]AccountInfo{
		pool: {Exists: true, Data: poolAccountData(Address{}, 1)},
	}}

	got, err := ActivePoolFeeRecipient(context.Background(), rpc, Address{}, pool, AMMFeeRecipientA, AMMFeeRecipientB)
	if err != nil {
		t.Fatalf("ActivePoolFeeRecipient: %v", err)
	}
	if got != AMMFeeRecipientB {
		t.Errorf("mode=1 should select recipient B, got %v", got)
	}
}
