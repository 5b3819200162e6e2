package core

// Wire-level constants: discriminators, byte offsets, and struct layouts.
//
// Everything the on-chain programs expect is not negotiable (spec.md §6):
// a single byte out of place invalidates the transaction or the parse. This
// file is the single source of truth for those layouts, expressed as typed
// constants rather than magic numbers scattered at use sites (spec.md §9).

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// Discriminator is the 8-byte prefix identifying an on-chain instruction or
// account variant.
type Discriminator [8]byte

// anchorDiscriminator reproduces the standard 8-byte-hash-prefix scheme used
// by the DEX and custody programs: sha256(namespace ":" name)[:8].
func anchorDiscriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

// Instruction discriminators, computed once at package init so every caller
// shares one source of truth instead of recomputing or hand-copying bytes.
var (
	DiscBuy             = anchorDiscriminator("global", "buy")
	DiscSell            = anchorDiscriminator("global", "sell")
	DiscCreateToken     = anchorDiscriminator("global", "create")
	DiscClaimFees       = anchorDiscriminator("global", "collect_creator_fee")
	DiscExtendAccount   = anchorDiscriminator("global", "extend_account")
	DiscAMMSwapBaseIn   = anchorDiscriminator("global", "swap_base_input")
	DiscAMMSwapBaseOut  = anchorDiscriminator("global", "swap_base_output")
	DiscVaultCustodyBuy    = anchorDiscriminator("global", "vault_buy")
	DiscVaultCustodySel    = anchorDiscriminator("global", "vault_sell")
	DiscVaultClaim         = anchorDiscriminator("global", "vault_claim_fees")
	DiscVaultAMMSwapIn     = anchorDiscriminator("global", "vault_amm_swap_base_input")
	DiscVaultAMMSwapOut    = anchorDiscriminator("global", "vault_amm_swap_base_output")

	// Account discriminators for parse-time validation of account kind.
	AcctDiscVaultState     = anchorDiscriminator("account", "MmWalletState")
	AcctDiscBondingCurve   = anchorDiscriminator("account", "BondingCurve")
	AcctDiscGlobal         = anchorDiscriminator("account", "Global")
	AcctDiscPool           = anchorDiscriminator("account", "Pool")
)

// PDA seed prefixes, spec.md §4.1.
const (
	SeedVaultState      = "mm_wallet"
	SeedVaultSolHolder   = "vault"
	SeedBondingCurve     = "bonding-curve"
	SeedCreatorVault     = "creator-vault"
	SeedUserVolumeAccum  = "user_volume_accumulator"
	SeedGlobalVolumeAcc  = "global_volume_accumulator"
	SeedFeeConfig        = "fee_config"
	SeedMetadata         = "metadata"
	SeedMintAuthority    = "mint-authority"
	SeedAMMPool          = "pool"
	SeedAMMGlobalConfig  = "global_config"
)

// DEX-specific error codes that signal the bonding curve has graduated
// (spec.md §4.2 / §4.3 / §7). Surfaced both as a decimal program-error code
// and its hex rendering, since RPC clients may report either.
const (
	PoolCompleteErrorCodeDecimal = 6005
	PoolCompleteErrorCodeHex     = "0x1775"
)

// Pool account byte offsets (spec.md §6). Base-mint and mode-flag are the
// two the spec names explicitly; quote-mint and the two reserve vaults sit
// at the offsets this engine additionally relies on to route and price a
// post-graduation swap (spec.md §4.3).
const (
	PoolBaseMintOffset   = 43
	PoolQuoteMintOffset  = 75
	PoolBaseVaultOffset  = 107
	PoolQuoteVaultOffset = 139
	PoolModeFlagOffset   = 243
)

// PoolState is the subset of an AMM pool account's fields a post-graduation
// swap needs: the two mints for identification and the two reserve vaults
// whose live token balances (not any field stored on the pool account
// itself) price the swap (spec.md §4.3).
type PoolState struct {
	BaseMint   Address
	QuoteMint  Address
	BaseVault  Address
	QuoteVault Address
	ModeFlag   byte
}

// ParsePoolAccount extracts a PoolState from a raw pool account buffer at
// the fixed offsets above.
func ParsePoolAccount(data []byte) (PoolState, error) {
	if len(data) <= PoolModeFlagOffset {
		return PoolState{}, fmt.Errorf("pool account too short: %d bytes", len(data))
	}
	var s PoolState
	copy(s.BaseMint[:], data[PoolBaseMintOffset:PoolBaseMintOffset+32])
	copy(s.QuoteMint[:], data[PoolQuoteMintOffset:PoolQuoteMintOffset+32])
	copy(s.BaseVault[:], data[PoolBaseVaultOffset:PoolBaseVaultOffset+32])
	copy(s.QuoteVault[:], data[PoolQuoteVaultOffset:PoolQuoteVaultOffset+32])
	s.ModeFlag = data[PoolModeFlagOffset]
	return s, nil
}

//---------------------------------------------------------------------
// Custody contract Config (45 bytes, exact positions)
//---------------------------------------------------------------------

// ConfigLayoutSize is the exact encoded size of Config: 1+2+2+2+2+2+2 = 13
// scalar bytes plus 32 reserved bytes = 45.
const ConfigLayoutSize = 45

// Config is the custody contract's on-chain trading configuration.
type Config struct {
	TradeSizePct  uint8
	MinDelaySecs  uint16
	MaxDelaySecs  uint16
	SlippageBps   uint16
	Param1        uint16
	Param2        uint16
	Param3        uint16
	// Reserved holds the 32 reserved bytes verbatim so a round trip through
	// EncodeConfig/DecodeConfig never drops unknown-but-significant bytes.
	Reserved [32]byte
}

// EncodeConfig serializes Config to its exact 45-byte on-chain layout.
func EncodeConfig(c Config) []byte {
	buf := make([]byte, ConfigLayoutSize)
	buf[0] = c.TradeSizePct
	binary.LittleEndian.PutUint16(buf[1:3], c.MinDelaySecs)
	binary.LittleEndian.PutUint16(buf[3:5], c.MaxDelaySecs)
	binary.LittleEndian.PutUint16(buf[5:7], c.SlippageBps)
	binary.LittleEndian.PutUint16(buf[7:9], c.Param1)
	binary.LittleEndian.PutUint16(buf[9:11], c.Param2)
	binary.LittleEndian.PutUint16(buf[11:13], c.Param3)
	copy(buf[13:45], c.Reserved[:])
	return buf
}

// DecodeConfig parses the 45-byte custody Config layout.
func DecodeConfig(buf []byte) (Config, error) {
	var c Config
	if len(buf) != ConfigLayoutSize {
		return c, fmt.Errorf("config buffer must be %d bytes, got %d", ConfigLayoutSize, len(buf))
	}
	c.TradeSizePct = buf[0]
	c.MinDelaySecs = binary.LittleEndian.Uint16(buf[1:3])
	c.MaxDelaySecs = binary.LittleEndian.Uint16(buf[3:5])
	c.SlippageBps = binary.LittleEndian.Uint16(buf[5:7])
	c.Param1 = binary.LittleEndian.Uint16(buf[7:9])
	c.Param2 = binary.LittleEndian.Uint16(buf[9:11])
	c.Param3 = binary.LittleEndian.Uint16(buf[11:13])
	copy(c.Reserved[:], buf[13:45])
	return c, nil
}

//---------------------------------------------------------------------
// Vault state account (custody contract), spec.md §6
//---------------------------------------------------------------------

// VaultStateMinSize is the minimum account size ParseVaultState accepts.
// The parsed fields occupy 8 (disc) + 1+1+1 + 32*3 + 8 + 1 + 45 + 8 + 1 +
// 1 + 8 + 8 + 8 + 8 + 8 = 211 bytes; the remaining 40 bytes up to 251 are
// not parsed, and SerializeVaultState leaves them zero.
const VaultStateMinSize = 251

// VaultState mirrors the custody program's vault-state account layout.
type VaultState struct {
	Version            uint8
	Bump               uint8
	VaultBump          uint8
	Owner              Address
	Operator           Address
	TokenMint          Address
	Nonce              uint64
	Strategy           uint8
	Config             Config
	LockUntil          int64
	Paused             bool
	IsCreator          bool
	TotalVolume        uint64
	TotalTrades        uint64
	TotalFeesClaimed   uint64
	LastTrade          int64
	CreatedAt          int64
}

// ParseVaultState decodes the raw account data of a vault-state PDA.
func ParseVaultState(data []byte) (VaultState, error) {
	var v VaultState
	if len(data) < VaultStateMinSize {
		return v, fmt.Errorf("vault state account too short: %d bytes, want >= %d", len(data), VaultStateMinSize)
	}
	if Discriminator(mustDisc(data[0:8])) != AcctDiscVaultState {
		return v, errors.New("vault state account discriminator mismatch")
	}
	off := 8
	v.Version = data[off]
	off++
	v.Bump = data[off]
	off++
	v.VaultBump = data[off]
	off++
	copy(v.Owner[:], data[off:off+32])
	off += 32
	copy(v.Operator[:], data[off:off+32])
	off += 32
	copy(v.TokenMint[:], data[off:off+32])
	off += 32
	v.Nonce = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	v.Strategy = data[off]
	off++
	cfg, err := DecodeConfig(data[off : off+ConfigLayoutSize])
	if err != nil {
		return v, fmt.Errorf("vault state config: %w", err)
	}
	v.Config = cfg
	off += ConfigLayoutSize
	v.LockUntil = int64(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	v.Paused = data[off] != 0
	off++
	v.IsCreator = data[off] != 0
	off++
	v.TotalVolume = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	v.TotalTrades = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	v.TotalFeesClaimed = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	v.LastTrade = int64(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	v.CreatedAt = int64(binary.LittleEndian.Uint64(data[off : off+8]))
	return v, nil
}

// SerializeVaultState re-encodes a VaultState the same way the custody
// program would have written it. Used only by tests to check the parse
// round-trip law (spec.md §8); the engine never writes this account itself.
func SerializeVaultState(v VaultState) []byte {
	buf := make([]byte, VaultStateMinSize)
	copy(buf[0:8], AcctDiscVaultState[:])
	off := 8
	buf[off] = v.Version
	off++
	buf[off] = v.Bump
	off++
	buf[off] = v.VaultBump
	off++
	copy(buf[off:off+32], v.Owner[:])
	off += 32
	copy(buf[off:off+32], v.Operator[:])
	off += 32
	copy(buf[off:off+32], v.TokenMint[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:off+8], v.Nonce)
	off += 8
	buf[off] = v.Strategy
	off++
	copy(buf[off:off+ConfigLayoutSize], EncodeConfig(v.Config))
	off += ConfigLayoutSize
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(v.LockUntil))
	off += 8
	buf[off] = boolByte(v.Paused)
	off++
	buf[off] = boolByte(v.IsCreator)
	off++
	binary.LittleEndian.PutUint64(buf[off:off+8], v.TotalVolume)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], v.TotalTrades)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], v.TotalFeesClaimed)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(v.LastTrade))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(v.CreatedAt))
	return buf
}

//---------------------------------------------------------------------
// Bonding-curve state account
//---------------------------------------------------------------------

// BondingCurveState mirrors the DEX program's bonding-curve account.
// Creator is optional: older accounts omit it, in which case HasCreator is
// false and callers must treat the creator-fee vault as unresolvable
// (spec.md §9 open question).
type BondingCurveState struct {
	VirtToken   uint64
	VirtSol     uint64
	RealToken   uint64
	RealSol     uint64
	TotalSupply uint64
	Complete    bool
	HasCreator  bool
	Creator     Address
	MayhemMode  bool
}

// bondingCurveFixedSize is the length of the account up to (but excluding)
// the optional creator pubkey and trailing mayhem-mode byte.
const bondingCurveFixedSize = 8 + 8*5 + 1 // disc + 5 uint64 + complete byte

// ParseBondingCurveState decodes the bonding-curve account. The creator
// pubkey and mayhem-mode byte are optional trailing fields.
func ParseBondingCurveState(data []byte) (BondingCurveState, error) {
	var s BondingCurveState
	if len(data) < bondingCurveFixedSize {
		return s, fmt.Errorf("bonding curve account too short: %d bytes, want >= %d", len(data), bondingCurveFixedSize)
	}
	if Discriminator(mustDisc(data[0:8])) != AcctDiscBondingCurve {
		return s, errors.New("bonding curve account discriminator mismatch")
	}
	off := 8
	s.VirtToken = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	s.VirtSol = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	s.RealToken = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	s.RealSol = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	s.TotalSupply = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	s.Complete = data[off] != 0
	off++
	if len(data) >= off+32 {
		copy(s.Creator[:], data[off:off+32])
		s.HasCreator = true
		off += 32
	}
	if len(data) > off {
		s.MayhemMode = data[off] != 0
	}
	return s, nil
}

// SerializeBondingCurveState re-encodes BondingCurveState. Used only by
// round-trip law tests.
func SerializeBondingCurveState(s BondingCurveState) []byte {
	size := bondingCurveFixedSize
	if s.HasCreator {
		size += 32 + 1
	}
	buf := make([]byte, size)
	copy(buf[0:8], AcctDiscBondingCurve[:])
	off := 8
	binary.LittleEndian.PutUint64(buf[off:off+8], s.VirtToken)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], s.VirtSol)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], s.RealToken)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], s.RealSol)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], s.TotalSupply)
	off += 8
	buf[off] = boolByte(s.Complete)
	off++
	if s.HasCreator {
		copy(buf[off:off+32], s.Creator[:])
		off += 32
		buf[off] = boolByte(s.MayhemMode)
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func mustDisc(b []byte) [8]byte {
	var d [8]byte
	copy(d[:], b)
	return d
}
