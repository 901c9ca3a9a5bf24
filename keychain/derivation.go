// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain defines the key derivation and signing boundary used by
// the wallet engine, along with a software HD implementation of it.
package keychain

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrBackendUnavailable is returned by key ring implementations that
	// are temporarily unable to derive keys or produce signatures, for
	// example a hardware device that has been disconnected.
	ErrBackendUnavailable = errors.New("signing backend unavailable")

	// ErrSignDescriptorMismatch is returned when the sign descriptors
	// handed to a Signer do not line up with the inputs of the
	// transaction being signed.
	ErrSignDescriptorMismatch = errors.New("sign descriptors do not match " +
		"transaction inputs")
)

// KeyLocator identifies a key within an account: the derivation branch
// (0 for receiving, 1 for change) and the child index within that branch.
type KeyLocator struct {
	// Branch is the account-level child the key is derived under.
	Branch uint32

	// Index is the position of the key within its branch.
	Index uint32
}

// KeyDescriptor wraps a KeyLocator together with the public key it resolves
// to.
type KeyDescriptor struct {
	KeyLocator

	// PubKey is the public key found at the locator.
	PubKey *btcec.PublicKey
}

// PubKeyHash returns the HASH160 of the compressed public key, which is the
// payload of a pay-to-pubkey-hash script.
func (k KeyDescriptor) PubKeyHash() []byte {
	return btcutil.Hash160(k.PubKey.SerializeCompressed())
}

// KeyRing performs public derivation of account keys. Deriving the same
// locator twice must always yield the same key.
type KeyRing interface {
	// DeriveKey derives the public key found at the passed locator.
	DeriveKey(loc KeyLocator) (KeyDescriptor, error)
}

// SecretKeyRing is a KeyRing that can also hand out private keys.
type SecretKeyRing interface {
	KeyRing

	// DerivePrivKey derives the private key found at the passed locator.
	DerivePrivKey(loc KeyLocator) (*btcec.PrivateKey, error)
}

// SignDescriptor carries everything a Signer needs to produce the signature
// script for a single transaction input.
type SignDescriptor struct {
	// KeyDesc locates the key that controls the output being spent.
	KeyDesc KeyDescriptor

	// PkScript is the output script of the previous output.
	PkScript []byte

	// Value is the amount of the previous output.
	Value btcutil.Amount

	// InputIndex is the index of the input within the transaction.
	InputIndex int
}

// Signer adds input signatures to an assembled transaction.
type Signer interface {
	// SignTransaction populates the signature script of every input
	// described by descs. The transaction is modified in place.
	SignTransaction(tx *wire.MsgTx, descs []*SignDescriptor) error
}
