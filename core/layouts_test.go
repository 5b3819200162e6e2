package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfigRoundTrip(t *testing.T) {
	c := Config{
		TradeSizePct: 10,
		MinDelaySecs: 15,
		MaxDelaySecs: 45,
		SlippageBps:  500,
		Param1:       1,
		Param2:       2,
		Param3:       3,
	}
	copy(c.Reserved[:], []byte("reserved-bytes-marker"))

	encoded := EncodeConfig(c)
	if len(encoded) != ConfigLayoutSize {
		t.Fatalf("encoded config length = %d, want %d", len(encoded), ConfigLayoutSize)
	}

	decoded, err := DecodeConfig(encoded)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if diff := cmp.Diff(c, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeConfigWrongLength(t *testing.T) {
	if _, err := DecodeConfig(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestVaultStateRoundTrip(t *testing.T) {
	owner, err := AddressFromBytes(fixedAddrBytes(1))
	if err != nil {
		t.Fatal(err)
	}
	operator, err := AddressFromBytes(fixedAddrBytes(2))
	if err != nil {
		t.Fatal(err)
	}
	mint, err := AddressFromBytes(fixedAddrBytes(3))
	if err != nil {
		t.Fatal(err)
	}

	v := VaultState{
		Version:          1,
		Bump:             254,
		VaultBump:        253,
		Owner:            owner,
		Operator:         operator,
		TokenMint:        mint,
		Nonce:            7,
		Strategy:         1,
		Config:           Config{TradeSizePct: 5, MinDelaySecs: 10, MaxDelaySecs: 20, SlippageBps: 100},
		LockUntil:        1730000000,
		Paused:           false,
		IsCreator:        true,
		TotalVolume:      12345,
		TotalTrades:      42,
		TotalFeesClaimed: 10,
		LastTrade:        1730000500,
		CreatedAt:        1729000000,
	}

	encoded := SerializeVaultState(v)
	decoded, err := ParseVaultState(encoded)
	if err != nil {
		t.Fatalf("ParseVaultState: %v", err)
	}
	if diff := cmp.Diff(v, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseVaultStateTooShort(t *testing.T) {
	if _, err := ParseVaultState(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestParseVaultStateWrongDiscriminator(t *testing.T) {
	buf := make([]byte, VaultStateMinSize)
	if _, err := ParseVaultState(buf); err == nil {
		t.Fatal("expected discriminator mismatch error")
	}
}

func TestBondingCurveStateRoundTripWithCreator(t *testing.T) {
	creator, err := AddressFromBytes(fixedAddrBytes(9))
	if err != nil {
		t.Fatal(err)
	}
	s := BondingCurveState{
		VirtToken:   1_000_000_000,
		VirtSol:     30_000_000_000,
		RealToken:   500_000_000,
		RealSol:     15_000_000_000,
		TotalSupply: 1_000_000_000_000,
		Complete:    false,
		HasCreator:  true,
		Creator:     creator,
		MayhemMode:  true,
	}
	encoded := SerializeBondingCurveState(s)
	decoded, err := ParseBondingCurveState(encoded)
	if err != nil {
		t.Fatalf("ParseBondingCurveState: %v", err)
	}
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBondingCurveStateRoundTripWithoutCreator(t *testing.T) {
	s := BondingCurveState{
		VirtToken:   1,
		VirtSol:     2,
		RealToken:   3,
		RealSol:     4,
		TotalSupply: 5,
		Complete:    true,
	}
	encoded := SerializeBondingCurveState(s)
	decoded, err := ParseBondingCurveState(encoded)
	if err != nil {
		t.Fatalf("ParseBondingCurveState: %v", err)
	}
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if decoded.HasCreator {
		t.Error("HasCreator should be false when the trailing fields are absent")
	}
}

func TestParsePoolAccount(t *testing.T) {
	baseMint, err := AddressFromBytes(fixedAddrBytes(11))
	if err != nil {
		t.Fatal(err)
	}
	quoteMint, err := AddressFromBytes(fixedAddrBytes(12))
	if err != nil {
		t.Fatal(err)
	}
	baseVault, err := AddressFromBytes(fixedAddrBytes(13))
	if err != nil {
		t.Fatal(err)
	}
	quoteVault, err := AddressFromBytes(fixedAddrBytes(14))
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, PoolModeFlagOffset+1)
	copy(buf[PoolBaseMintOffset:], baseMint[:])
	copy(buf[PoolQuoteMintOffset:], quoteMint[:])
	copy(buf[PoolBaseVaultOffset:], baseVault[:])
	copy(buf[PoolQuoteVaultOffset:], quoteVault[:])
	buf[PoolModeFlagOffset] = 1

	pool, err := ParsePoolAccount(buf)
	if err != nil {
		t.Fatalf("ParsePoolAccount: %v", err)
	}
	if pool.BaseMint != baseMint || pool.QuoteMint != quoteMint {
		t.Error("mints not parsed at the expected offsets")
	}
	if pool.BaseVault != baseVault || pool.QuoteVault != quoteVault {
		t.Error("vaults not parsed at the expected offsets")
	}
	if pool.ModeFlag != 1 {
		t.Errorf("ModeFlag = %d, want 1", pool.ModeFlag)
	}
}

func TestParsePoolAccountTooShort(t *testing.T) {
	if _, err := ParsePoolAccount(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func fixedAddrBytes(seed byte) []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed
	}
	return b
}
