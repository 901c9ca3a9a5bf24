// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shauser/lbry-sdk/internal/zero"
	"github.com/tyler-smith/go-bip39"
)

const (
	// BIP0044Purpose is the purpose field of the BIP0044 derivation path.
	BIP0044Purpose = 44

	// MnemonicEntropyBits is the entropy used for freshly generated
	// mnemonics (24 words).
	MnemonicEntropyBits = 256
)

// GenerateMnemonic creates a new BIP0039 mnemonic that can later be handed
// to NewHDKeyRingFromMnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}

	return bip39.NewMnemonic(entropy)
}

// HDKeyRing is a software SecretKeyRing and Signer rooted at a BIP0044
// account key: m/44'/coin'/account'. Keys are derived as
// m/44'/coin'/account'/branch/index.
type HDKeyRing struct {
	params *chaincfg.Params

	// acctKey is the hardened private account key.
	acctKey *hdkeychain.ExtendedKey

	mu       sync.Mutex
	branches map[uint32]*hdkeychain.ExtendedKey
}

// A compile time check to ensure HDKeyRing satisfies the interfaces.
var (
	_ SecretKeyRing = (*HDKeyRing)(nil)
	_ Signer        = (*HDKeyRing)(nil)
)

// NewHDKeyRingFromMnemonic builds a key ring from a BIP0039 mnemonic and
// optional passphrase.
func NewHDKeyRingFromMnemonic(mnemonic, passphrase string,
	params *chaincfg.Params, coinType, account uint32) (*HDKeyRing, error) {

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	defer zero.Bytes(seed)

	return NewHDKeyRing(seed, params, coinType, account)
}

// NewHDKeyRing derives the BIP0044 account key for the given coin type and
// account from a raw seed.
func NewHDKeyRing(seed []byte, params *chaincfg.Params, coinType,
	account uint32) (*HDKeyRing, error) {

	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("unable to create master key: %w", err)
	}
	defer master.Zero()

	path := []uint32{
		BIP0044Purpose + hdkeychain.HardenedKeyStart,
		coinType + hdkeychain.HardenedKeyStart,
		account + hdkeychain.HardenedKeyStart,
	}

	key := master
	for _, child := range path {
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("unable to derive account "+
				"key: %w", err)
		}
	}

	return &HDKeyRing{
		params:   params,
		acctKey:  key,
		branches: make(map[uint32]*hdkeychain.ExtendedKey),
	}, nil
}

// AccountPubKey returns the serialized extended public key of the account.
func (r *HDKeyRing) AccountPubKey() (string, error) {
	pub, err := r.acctKey.Neuter()
	if err != nil {
		return "", err
	}

	return pub.String(), nil
}

// branchKey returns the extended key of the given branch, deriving and
// caching it on first use.
func (r *HDKeyRing) branchKey(branch uint32) (*hdkeychain.ExtendedKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.branches[branch]; ok {
		return key, nil
	}

	key, err := r.acctKey.Derive(branch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive extended key "+
			"branch %d: %w", branch, err)
	}
	r.branches[branch] = key

	return key, nil
}

// childKey derives the extended key at branch/index.
func (r *HDKeyRing) childKey(loc KeyLocator) (*hdkeychain.ExtendedKey, error) {
	branchKey, err := r.branchKey(loc.Branch)
	if err != nil {
		return nil, err
	}

	key, err := branchKey.Derive(loc.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive child extended key "+
			"-- branch %d, child %d: %w", loc.Branch, loc.Index,
			err)
	}

	return key, nil
}

// DeriveKey derives the public key found at the passed locator.
func (r *HDKeyRing) DeriveKey(loc KeyLocator) (KeyDescriptor, error) {
	key, err := r.childKey(loc)
	if err != nil {
		return KeyDescriptor{}, err
	}
	defer key.Zero()

	pubKey, err := key.ECPubKey()
	if err != nil {
		return KeyDescriptor{}, err
	}

	return KeyDescriptor{KeyLocator: loc, PubKey: pubKey}, nil
}

// DerivePrivKey derives the private key found at the passed locator.
func (r *HDKeyRing) DerivePrivKey(loc KeyLocator) (*btcec.PrivateKey, error) {
	key, err := r.childKey(loc)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	return key.ECPrivKey()
}

// SignTransaction signs every described input with a SIGHASH_ALL
// pay-to-pubkey-hash signature script. Inputs without a descriptor are left
// untouched so that transactions funded by several key rings can be signed
// in turns.
func (r *HDKeyRing) SignTransaction(tx *wire.MsgTx,
	descs []*SignDescriptor) error {

	if len(descs) == 0 || len(descs) > len(tx.TxIn) {
		return ErrSignDescriptorMismatch
	}

	for _, desc := range descs {
		if desc.InputIndex < 0 || desc.InputIndex >= len(tx.TxIn) {
			return fmt.Errorf("%w: input index %d out of range",
				ErrSignDescriptorMismatch, desc.InputIndex)
		}

		privKey, err := r.DerivePrivKey(desc.KeyDesc.KeyLocator)
		if err != nil {
			return err
		}

		sigScript, err := txscript.SignatureScript(
			tx, desc.InputIndex, desc.PkScript,
			txscript.SigHashAll, privKey, true,
		)
		if err != nil {
			return fmt.Errorf("unable to sign input %d: %w",
				desc.InputIndex, err)
		}
		tx.TxIn[desc.InputIndex].SignatureScript = sigScript
	}

	return nil
}
