package core

import (
	"bytes"
	"testing"
)

func TestFindProgramAddressDeterministicAndDistinct(t *testing.T) {
	owner, err := GenerateKeypairSigner()
	if err != nil {
		t.Fatal(err)
	}
	ownerAddr := owner.PublicKey()

	for nonce := uint64(0); nonce < 25; nonce++ {
		state1, bump1, err := DeriveVaultState(ownerAddr, nonce)
		if err != nil {
			t.Fatalf("DeriveVaultState(%d): %v", nonce, err)
		}
		state2, bump2, err := DeriveVaultState(ownerAddr, nonce)
		if err != nil {
			t.Fatal(err)
		}
		if state1 != state2 || bump1 != bump2 {
			t.Fatalf("DeriveVaultState(%d) not deterministic: %v/%d vs %v/%d", nonce, state1, bump1, state2, bump2)
		}

		solHolder, _, err := DeriveVaultSolHolder(ownerAddr, nonce)
		if err != nil {
			t.Fatalf("DeriveVaultSolHolder(%d): %v", nonce, err)
		}
		if solHolder == state1 {
			t.Fatalf("vault-state and vault-sol-holder PDAs collided at nonce %d", nonce)
		}
		if isOnCurve(state1) {
			t.Fatalf("derived vault-state %v is on-curve, not a valid PDA", state1)
		}
		if isOnCurve(solHolder) {
			t.Fatalf("derived vault-sol-holder %v is on-curve, not a valid PDA", solHolder)
		}
	}
}

func TestDiscriminatorPrefixesMatchEncodedPayloads(t *testing.T) {
	cases := []struct {
		name    string
		disc    Discriminator
		payload []byte
	}{
		{"buy", DiscBuy, EncodeBuy(1, 2)},
		{"sell", DiscSell, EncodeSell(1, 2)},
		{"create_token", DiscCreateToken, EncodeCreateToken("n", "s", "u")},
		{"claim_fees", DiscClaimFees, EncodeClaimFees()},
		{"vault_buy", DiscVaultCustodyBuy, EncodeVaultBuy(0, 1, 2)},
		{"vault_sell", DiscVaultCustodySel, EncodeVaultSell(0, 1, 2)},
		{"vault_claim", DiscVaultClaim, EncodeVaultClaimFees(0)},
		{"amm_swap_base_output", DiscAMMSwapBaseOut, EncodeAMMSwapBaseOutput(1, 2)},
		{"amm_swap_base_input", DiscAMMSwapBaseIn, EncodeAMMSwapBaseInput(1, 2)},
		{"vault_amm_swap_base_output", DiscVaultAMMSwapOut, EncodeVaultAMMSwapBaseOutput(0, 1, 2)},
		{"vault_amm_swap_base_input", DiscVaultAMMSwapIn, EncodeVaultAMMSwapBaseInput(0, 1, 2)},
	}
	for _, c := range cases {
		if len(c.payload) < 8 {
			t.Fatalf("%s: payload shorter than discriminator", c.name)
		}
		if !bytes.Equal(c.payload[:8], c.disc[:]) {
			t.Errorf("%s: payload prefix %x != discriminator %x", c.name, c.payload[:8], c.disc[:])
		}
	}
}

func TestEncodeBuyFieldOrder(t *testing.T) {
	payload := EncodeBuy(111, 222)
	if len(payload) != 8+8+8 {
		t.Fatalf("buy payload length = %d, want 24", len(payload))
	}
	amountOut := u64LE(111)
	maxCost := u64LE(222)
	if !bytes.Equal(payload[8:16], amountOut) {
		t.Error("amountOut not in expected position")
	}
	if !bytes.Equal(payload[16:24], maxCost) {
		t.Error("maxSolCost not in expected position")
	}
}

func TestEncodeAMMSwapFieldOrder(t *testing.T) {
	out := EncodeAMMSwapBaseOutput(111, 222)
	if len(out) != 8+8+8 {
		t.Fatalf("amm swap-base-output payload length = %d, want 24", len(out))
	}
	if !bytes.Equal(out[8:16], u64LE(111)) || !bytes.Equal(out[16:24], u64LE(222)) {
		t.Error("amountOut/maxAmountIn not in expected position")
	}

	in := EncodeAMMSwapBaseInput(111, 222)
	if !bytes.Equal(in[8:16], u64LE(111)) || !bytes.Equal(in[16:24], u64LE(222)) {
		t.Error("amountIn/minAmountOut not in expected position")
	}
}

func TestAMMSwapAccountsOrder(t *testing.T) {
	accounts := AMMSwapAccounts(Address{1}, Address{2}, Address{3}, Address{4}, Address{5}, Address{6}, Address{7}, Address{8}, Address{9})
	if len(accounts) != 10 {
		t.Fatalf("AMMSwapAccounts length = %d, want 10", len(accounts))
	}
	if accounts[5].Pubkey != (Address{6}) || !accounts[5].IsSigner {
		t.Error("user account must be a signer at index 5")
	}
	if accounts[8].Pubkey != TokenProgramID {
		t.Error("token program must be forwarded at index 8")
	}
}

func TestWellKnownProgramIDsDistinct(t *testing.T) {
	ids := []Address{DEXProgramID, CustodyProgramID, AssociatedTokenProgramID, TokenProgramID, Token2022ProgramID, MetadataProgramID, FeeProgramID, AMMProgramID, NativeSolMint, AMMFeeRecipientA, AMMFeeRecipientB}
	seen := make(map[Address]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate well-known program id: %v", id)
		}
		seen[id] = true
	}
}

func TestDirectBuyAndSellAccountsIdenticalOrder(t *testing.T) {
	a := DirectBuyAccounts(Address{1}, Address{2}, Address{3}, Address{4}, Address{5}, Address{6}, Address{7}, Address{8}, Address{9}, Address{10})
	b := DirectSellAccounts(Address{1}, Address{2}, Address{3}, Address{4}, Address{5}, Address{6}, Address{7}, Address{8}, Address{9}, Address{10})
	if len(a) != len(b) {
		t.Fatalf("account list length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("account %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestVaultBuyAccountsPrependsCustody(t *testing.T) {
	dex := []AccountMeta{{Pubkey: Address{1}}, {Pubkey: Address{2}}}
	out := VaultBuyAccounts(Address{10}, Address{11}, Address{12}, dex)
	if len(out) != 4+len(dex) {
		t.Fatalf("length = %d, want %d", len(out), 4+len(dex))
	}
	if out[0].Pubkey != (Address{10}) || out[1].Pubkey != (Address{11}) || out[2].Pubkey != (Address{12}) {
		t.Error("custody accounts not in expected leading positions")
	}
	if out[4] != dex[0] || out[5] != dex[1] {
		t.Error("downstream dex accounts not forwarded verbatim")
	}
}
