package core

// codec.go — pure, deterministic construction of every DEX and custody
// message this engine produces. No I/O; see core/rpc.go and core/executor.go
// for the components that actually talk to the chain. Grounded on the
// PDA-derivation shape of the pumpfun/pumpswap reference implementations in
// the retrieval pack (DeriveCreatorVaultPDA and friends), re-expressed with
// the teacher's struct/const layering (core/liquidity_pools.go).

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// wellKnownAddress derives a stable 32-byte address for a well-known
// program constant from its human-readable label. Real deployments pin
// these to the actual on-chain program ids; deriving them from a label
// keeps this package self-contained and the constants distinct.
func wellKnownAddress(label string) Address {
	sum := sha256.Sum256([]byte("program:" + label))
	return Address(sum)
}

// Well-known program IDs. Declared once as typed constants, per spec.md §9.
var (
	DEXProgramID             = wellKnownAddress("dex")
	CustodyProgramID         = wellKnownAddress("custody")
	AssociatedTokenProgramID = wellKnownAddress("associated-token")
	TokenProgramID           = wellKnownAddress("token")
	Token2022ProgramID       = wellKnownAddress("token-2022")
	MetadataProgramID        = wellKnownAddress("metadata")
	FeeProgramID             = wellKnownAddress("fee")
	AMMProgramID             = wellKnownAddress("amm")
	SystemProgramID          = Address{} // the all-zero address, by convention

	// NativeSolMint is the canonical wrapped-SOL mint, used as the quote
	// mint for every AMM pool this engine locates (spec.md §4.3).
	NativeSolMint = wellKnownAddress("native-sol-mint")

	// AMMFeeRecipientA and AMMFeeRecipientB are the two candidate
	// per-pool fee recipients ActivePoolFeeRecipient chooses between
	// (spec.md §4.3).
	AMMFeeRecipientA = wellKnownAddress("amm-fee-recipient-a")
	AMMFeeRecipientB = wellKnownAddress("amm-fee-recipient-b")
)

// ErrNoProgramAddress is returned when no valid off-curve PDA exists for the
// given seeds within the bump search space (astronomically unlikely).
var ErrNoProgramAddress = errors.New("unable to find a valid program address")

// FindProgramAddress derives a PDA the same way the chain's runtime does:
// try descending bump values, hash the seeds + bump + program id, and
// accept the first candidate that does NOT decode to a valid point on the
// ed25519 curve (a PDA must have no corresponding private key).
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate, err := createProgramAddress(seeds, byte(bump), programID)
		if err == nil {
			return candidate, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoProgramAddress
}

// createProgramAddress hashes seeds||bump||programID||"ProgramDerivedAddress"
// and rejects any output that is a valid curve point.
func createProgramAddress(seeds [][]byte, bump byte, programID Address) (Address, error) {
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > 32 {
			return Address{}, fmt.Errorf("seed exceeds 32 bytes: %d", len(s))
		}
		h.Write(s)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))
	sum := h.Sum(nil)

	var out Address
	copy(out[:], sum)
	if isOnCurve(out) {
		return Address{}, errors.New("address is on curve")
	}
	return out, nil
}

// isOnCurve reports whether b decodes to a valid ed25519 curve point. A
// genuine PDA must fail this check — that absence of a corresponding point
// is what makes it unsignable by any private key.
func isOnCurve(b Address) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

//---------------------------------------------------------------------
// Seed helpers
//---------------------------------------------------------------------

func u64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func u16LE(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

//---------------------------------------------------------------------
// Well-known PDA derivations (spec.md §4.1 table)
//---------------------------------------------------------------------

// DeriveVaultState derives the custody program's vault-state PDA for
// (owner, nonce).
func DeriveVaultState(owner Address, nonce uint64) (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedVaultState), owner[:], u64LE(nonce)}, CustodyProgramID)
}

// DeriveVaultSolHolder derives the custody program's SOL-holder PDA for
// (owner, nonce). Distinct seed prefix from the vault-state PDA (spec.md
// §3 invariant: both addresses are a pure function of the same inputs but
// must differ).
func DeriveVaultSolHolder(owner Address, nonce uint64) (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedVaultSolHolder), owner[:], u64LE(nonce)}, CustodyProgramID)
}

// DeriveBondingCurve derives the DEX program's bonding-curve PDA for mint.
func DeriveBondingCurve(mint Address) (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedBondingCurve), mint[:]}, DEXProgramID)
}

// DeriveBondingCurveTokenAccount derives the associated-token account owned
// by the bonding-curve PDA, for the given mint and token-program flavor.
func DeriveBondingCurveTokenAccount(bondingCurve, mint, tokenProgram Address) (Address, uint8, error) {
	return FindProgramAddress([][]byte{bondingCurve[:], tokenProgram[:], mint[:]}, AssociatedTokenProgramID)
}

// DeriveCreatorVault derives the DEX program's creator-fee vault PDA for a
// token creator key.
func DeriveCreatorVault(creator Address) (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedCreatorVault), creator[:]}, DEXProgramID)
}

// DeriveUserVolumeAccumulator derives the per-user volume accumulator PDA.
func DeriveUserVolumeAccumulator(user Address) (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedUserVolumeAccum), user[:]}, DEXProgramID)
}

// DeriveGlobalVolumeAccumulator derives the single global volume
// accumulator PDA.
func DeriveGlobalVolumeAccumulator() (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedGlobalVolumeAcc)}, DEXProgramID)
}

// DeriveFeeConfig derives the fee program's fee-config PDA, keyed to the
// DEX program id.
func DeriveFeeConfig() (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedFeeConfig), DEXProgramID[:]}, FeeProgramID)
}

// DeriveTokenMetadata derives the metadata program's metadata PDA for mint.
func DeriveTokenMetadata(mint Address) (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedMetadata), MetadataProgramID[:], mint[:]}, MetadataProgramID)
}

// DeriveMintAuthority derives the DEX program's singleton mint-authority PDA.
func DeriveMintAuthority() (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedMintAuthority)}, DEXProgramID)
}

// DeriveAMMPool derives a candidate AMM pool PDA by brute-force index,
// spec.md §4.3's fallback pool-location method.
func DeriveAMMPool(index uint16, baseMint, quoteMint Address) (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedAMMPool), u16LE(index), baseMint[:], quoteMint[:]}, AMMProgramID)
}

// DeriveAMMGlobalConfig derives the AMM program's singleton global-config
// PDA, which post-graduation swaps list in their account metadata.
func DeriveAMMGlobalConfig() (Address, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedAMMGlobalConfig)}, AMMProgramID)
}

//---------------------------------------------------------------------
// Instruction-data encoding (spec.md §4.1 / §6)
//---------------------------------------------------------------------

// encoder accumulates an instruction payload in declaration order.
type encoder struct {
	buf []byte
}

func newEncoder(disc Discriminator) *encoder {
	e := &encoder{buf: make([]byte, 0, 64)}
	e.buf = append(e.buf, disc[:]...)
	return e
}

func (e *encoder) u8(v uint8) *encoder  { e.buf = append(e.buf, v); return e }
func (e *encoder) u16(v uint16) *encoder {
	e.buf = append(e.buf, u16LE(v)...)
	return e
}
func (e *encoder) u64(v uint64) *encoder {
	e.buf = append(e.buf, u64LE(v)...)
	return e
}
func (e *encoder) i64(v int64) *encoder { return e.u64(uint64(v)) }
func (e *encoder) pubkey(a Address) *encoder {
	e.buf = append(e.buf, a[:]...)
	return e
}
func (e *encoder) str(s string) *encoder {
	e.buf = append(e.buf, u32LE(uint32(len(s)))...)
	e.buf = append(e.buf, []byte(s)...)
	return e
}
func (e *encoder) bytes() []byte { return e.buf }

func u32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// ErrAmountOOR reports an amount outside the range of a u64 amount field
// (spec.md §4.1: "caller-supplied amounts outside [0, 2^64) are rejected").
// In Go, uint64 already enforces this range at the type level; ErrAmountOOR
// exists only for call sites that accept amounts as a wider type (e.g. a
// parsed string or float) before narrowing.
var ErrAmountOOR = errors.New("amount out of representable range")

// EncodeBuy builds the buy instruction payload: discriminator + amountOut
// (u64, expected token output) + maxSolCost (u64).
func EncodeBuy(amountOut, maxSolCost uint64) []byte {
	return newEncoder(DiscBuy).u64(amountOut).u64(maxSolCost).bytes()
}

// EncodeSell builds the sell instruction payload: discriminator +
// tokenAmount (u64) + minSolOutput (u64).
func EncodeSell(tokenAmount, minSolOutput uint64) []byte {
	return newEncoder(DiscSell).u64(tokenAmount).u64(minSolOutput).bytes()
}

// EncodeCreateToken builds the create-token instruction payload:
// discriminator + name + symbol + uri (all length-prefixed strings).
func EncodeCreateToken(name, symbol, uri string) []byte {
	return newEncoder(DiscCreateToken).str(name).str(symbol).str(uri).bytes()
}

// EncodeClaimFees builds the creator-fee claim instruction payload:
// discriminator only, no arguments.
func EncodeClaimFees() []byte {
	return newEncoder(DiscClaimFees).bytes()
}

// EncodeVaultBuy builds the custody contract's CPI-wrapping buy
// instruction: discriminator + nonce (u64) + amountOut (u64) + maxSolCost
// (u64). The custody contract forwards the downstream DEX accounts verbatim
// (spec.md §4.1).
func EncodeVaultBuy(nonce, amountOut, maxSolCost uint64) []byte {
	return newEncoder(DiscVaultCustodyBuy).u64(nonce).u64(amountOut).u64(maxSolCost).bytes()
}

// EncodeVaultSell mirrors EncodeVaultBuy for the sell direction.
func EncodeVaultSell(nonce, tokenAmount, minSolOutput uint64) []byte {
	return newEncoder(DiscVaultCustodySel).u64(nonce).u64(tokenAmount).u64(minSolOutput).bytes()
}

// EncodeVaultClaimFees builds the custody contract's CPI-wrapping
// claim-fees instruction.
func EncodeVaultClaimFees(nonce uint64) []byte {
	return newEncoder(DiscVaultClaim).u64(nonce).bytes()
}

// EncodeAMMSwapBaseOutput builds the post-graduation AMM buy instruction
// payload: discriminator + amountOut (u64, exact desired base-token
// output) + maxAmountIn (u64, quote/SOL cost cap). Mirrors EncodeBuy's
// (amountOut, maxCost) argument shape against the AMM program's own
// discriminator (spec.md §4.3: "otherwise mirrors [the bonding-curve
// instruction]").
func EncodeAMMSwapBaseOutput(amountOut, maxAmountIn uint64) []byte {
	return newEncoder(DiscAMMSwapBaseOut).u64(amountOut).u64(maxAmountIn).bytes()
}

// EncodeAMMSwapBaseInput builds the post-graduation AMM sell instruction
// payload: discriminator + amountIn (u64, exact base-token input) +
// minAmountOut (u64, quote/SOL floor). Mirrors EncodeSell's shape.
func EncodeAMMSwapBaseInput(amountIn, minAmountOut uint64) []byte {
	return newEncoder(DiscAMMSwapBaseIn).u64(amountIn).u64(minAmountOut).bytes()
}

// EncodeVaultAMMSwapBaseOutput wraps EncodeAMMSwapBaseOutput for the
// via-custody executor: discriminator + nonce + amountOut + maxAmountIn.
func EncodeVaultAMMSwapBaseOutput(nonce, amountOut, maxAmountIn uint64) []byte {
	return newEncoder(DiscVaultAMMSwapOut).u64(nonce).u64(amountOut).u64(maxAmountIn).bytes()
}

// EncodeVaultAMMSwapBaseInput mirrors EncodeVaultAMMSwapBaseOutput for the
// sell direction.
func EncodeVaultAMMSwapBaseInput(nonce, amountIn, minAmountOut uint64) []byte {
	return newEncoder(DiscVaultAMMSwapIn).u64(nonce).u64(amountIn).u64(minAmountOut).bytes()
}

//---------------------------------------------------------------------
// Account-metadata lists (spec.md §4.1 — strictly ordered per instruction)
//---------------------------------------------------------------------

// AccountMeta is one entry of an instruction's ordered account list.
type AccountMeta struct {
	Pubkey     Address
	IsSigner   bool
	IsWritable bool
}

// DirectBuyAccounts is the account-metadata list for a direct (owner-signed)
// buy instruction, in the DEX program's native order.
func DirectBuyAccounts(global, feeRecipient, mint, bondingCurve, bondingCurveATA, userATA, user, creatorVault, eventAuthority, dexProgram Address) []AccountMeta {
	return []AccountMeta{
		{global, false, false},
		{feeRecipient, false, true},
		{mint, false, false},
		{bondingCurve, false, true},
		{bondingCurveATA, false, true},
		{userATA, false, true},
		{user, true, true},
		{SystemProgramID, false, false},
		{TokenProgramID, false, false},
		{creatorVault, false, true},
		{eventAuthority, false, false},
		{dexProgram, false, false},
	}
}

// DirectSellAccounts mirrors DirectBuyAccounts for the sell direction. The
// DEX program reuses the same account order for buy and sell.
func DirectSellAccounts(global, feeRecipient, mint, bondingCurve, bondingCurveATA, userATA, user, creatorVault, eventAuthority, dexProgram Address) []AccountMeta {
	return DirectBuyAccounts(global, feeRecipient, mint, bondingCurve, bondingCurveATA, userATA, user, creatorVault, eventAuthority, dexProgram)
}

// VaultBuyAccounts assembles the CPI-wrapping custody instruction's account
// list: the custody contract's own accounts, followed by the downstream DEX
// program's accounts in the DEX program's native order, forwarded verbatim
// (spec.md §4.1).
func VaultBuyAccounts(vaultState, vaultSolHolder, operator Address, dex []AccountMeta) []AccountMeta {
	custodyAccounts := []AccountMeta{
		{vaultState, false, true},
		{vaultSolHolder, false, true},
		{operator, true, false},
		{CustodyProgramID, false, false},
	}
	return append(custodyAccounts, dex...)
}

// VaultSellAccounts mirrors VaultBuyAccounts for the sell direction.
func VaultSellAccounts(vaultState, vaultSolHolder, operator Address, dex []AccountMeta) []AccountMeta {
	return VaultBuyAccounts(vaultState, vaultSolHolder, operator, dex)
}

// AMMSwapAccounts is the account-metadata list for a post-graduation AMM
// swap, which has a different order and discriminator from the
// bonding-curve instruction but otherwise mirrors it (spec.md §4.3).
func AMMSwapAccounts(pool, poolBaseVault, poolQuoteVault, userBaseATA, userQuoteATA, user, feeRecipient, globalConfig, ammProgram Address) []AccountMeta {
	return []AccountMeta{
		{pool, false, true},
		{poolBaseVault, false, true},
		{poolQuoteVault, false, true},
		{userBaseATA, false, true},
		{userQuoteATA, false, true},
		{user, true, true},
		{feeRecipient, false, true},
		{globalConfig, false, false},
		{TokenProgramID, false, false},
		{ammProgram, false, false},
	}
}
