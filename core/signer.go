package core

// Signer key management for the market-making engine.
//
// Features
// --------
//   * Ed25519 key-pairs only — the signature scheme of every address this
//     engine talks about.
//   * Hierarchical Deterministic derivation (SLIP-0010), the same hardened
//     ed25519 derivation the teacher's wallet.go implements; ed25519 has no
//     notion of unhardened children so every level here is hardened.
//   * BIP-39 mnemonic utilities for the rare case an owner-facing tool needs
//     to generate a fresh keypair.
//   * Operator-secret bootstrap: decode a base58 string or a JSON byte array
//     from the process environment, or mint a fresh keypair when absent.
//
// Import hygiene: this file depends only on stdlib crypto + bip39 + base58
// (plus logrus for the bootstrap instructions),
// matching the teacher's "wallet depends only on common + utility" discipline.

import (
	"crypto/ed25519"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

const (
	hardenedOffset uint32 = 0x80000000
	masterHMACKey         = "ed25519 seed" // SLIP-0010 master-key string
)

// Signer signs arbitrary message bytes with a single keypair. Both the
// owner-held direct signer and the shared operator signer implement it.
type Signer interface {
	PublicKey() Address
	Sign(message []byte) []byte
}

// KeypairSigner is the concrete ed25519 Signer used throughout the engine.
type KeypairSigner struct {
	priv ed25519.PrivateKey
	pub  Address
}

// PublicKey returns the signer's public key as an Address.
func (s *KeypairSigner) PublicKey() Address { return s.pub }

// Sign produces a raw 64-byte ed25519 signature over message.
func (s *KeypairSigner) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

// NewKeypairSigner wraps a raw 64-byte ed25519 private key.
func NewKeypairSigner(priv ed25519.PrivateKey) (*KeypairSigner, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub, err := AddressFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &KeypairSigner{priv: priv, pub: pub}, nil
}

// GenerateKeypairSigner mints a brand-new random ed25519 keypair.
func GenerateKeypairSigner() (*KeypairSigner, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	addr, err := AddressFromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &KeypairSigner{priv: priv, pub: addr}, nil
}

//---------------------------------------------------------------------
// HD wallet (SLIP-0010, hardened ed25519) — for owner-side tooling that
// derives many addresses from one seed phrase.
//---------------------------------------------------------------------

// HDWallet keeps master key material in-memory only. *NEVER* persist the
// private fields directly — use an encrypted keystore upstream of this type.
type HDWallet struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
}

// NewRandomHDWallet generates entropyBits (128/256) of RNG entropy and
// returns a wallet plus its recovery mnemonic. The caller MUST wipe the
// mnemonic or store it securely.
func NewRandomHDWallet(entropyBits int) (*HDWallet, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	w, err := NewHDWalletFromSeed(seed)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// HDWalletFromMnemonic imports an existing BIP-39 phrase.
func HDWalletFromMnemonic(mnemonic, passphrase string) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewHDWalletFromSeed(seed)
}

// NewHDWalletFromSeed derives the SLIP-0010 master key from a raw seed.
func NewHDWalletFromSeed(seed []byte) (*HDWallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	i := hmacSHA512([]byte(masterHMACKey), seed)
	return &HDWallet{seed: seed, masterKey: i[:32], masterChain: i[32:]}, nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// derivePrivate returns the key material for a hardened child index.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)
	i := hmacSHA512(parentChain, data)
	return i[:32], i[32:], nil
}

// Signer derives account/index (path m / account' / index') and returns a
// ready-to-use Signer for that path.
func (w *HDWallet) Signer(account, index uint32) (*KeypairSigner, error) {
	account |= hardenedOffset
	index |= hardenedOffset

	k1, c1, err := derivePrivate(w.masterKey, w.masterChain, account)
	if err != nil {
		return nil, err
	}
	k2, _, err := derivePrivate(k1, c1, index)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	return NewKeypairSigner(priv)
}

//---------------------------------------------------------------------
// Operator bootstrap (spec.md §4.5)
//---------------------------------------------------------------------

// LoadOperatorSigner decodes the operator secret from raw env-variable
// content: either a base58-encoded 64-byte private key or a JSON array of
// byte values (both are formats real wallet export tools emit). If secret
// is empty, a fresh keypair is generated and logged together with setup
// instructions — the generated key is valid but unfunded.
func LoadOperatorSigner(secret string, lg *log.Logger) (*KeypairSigner, error) {
	if lg == nil {
		lg = log.StandardLogger()
	}
	if secret == "" {
		signer, err := GenerateKeypairSigner()
		if err != nil {
			return nil, fmt.Errorf("generate operator keypair: %w", err)
		}
		lg.Warnf("OPERATOR_SECRET not set; generated a fresh operator keypair")
		lg.Warnf("operator public key: %s", signer.PublicKey().String())
		lg.Warnf("operator secret (base58, keep this safe): %s", base58.Encode(signer.priv))
		lg.Warnf("trades routed through the operator will fail until this key is funded with SOL")
		return signer, nil
	}

	if raw, ok := decodeJSONByteArray(secret); ok {
		priv := ed25519.PrivateKey(raw)
		signer, err := NewKeypairSigner(priv)
		if err != nil {
			return nil, fmt.Errorf("operator secret (json array): %w", err)
		}
		return signer, nil
	}

	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("operator secret is neither a valid JSON byte array nor base58: %w", err)
	}
	priv := ed25519.PrivateKey(raw)
	signer, err := NewKeypairSigner(priv)
	if err != nil {
		return nil, fmt.Errorf("operator secret (base58): %w", err)
	}
	return signer, nil
}

func decodeJSONByteArray(s string) ([]byte, bool) {
	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return nil, false
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, false
		}
		out[i] = byte(v)
	}
	return out, true
}

// Wipe zeroes a byte slice in-place (best-effort — GC might still copy).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
