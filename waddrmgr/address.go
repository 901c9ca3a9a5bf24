// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shauser/lbry-sdk/keychain"
)

// Branch identifies one of the two address chains of an account.
type Branch uint32

const (
	// ExternalBranch is the receiving chain. Addresses on it are handed
	// out to payers.
	ExternalBranch Branch = 0

	// InternalBranch is the change chain. Addresses on it only ever
	// receive the wallet's own change.
	InternalBranch Branch = 1

	numBranches = 2
)

// String returns the conventional name of the branch.
func (b Branch) String() string {
	switch b {
	case ExternalBranch:
		return "receiving"
	case InternalBranch:
		return "change"
	default:
		return fmt.Sprintf("branch(%d)", uint32(b))
	}
}

// validate returns an ErrInvalidBranch ManagerError for unknown branches.
func (b Branch) validate() error {
	if b >= numBranches {
		str := fmt.Sprintf("invalid branch %d", uint32(b))
		return managerError(ErrInvalidBranch, str, nil)
	}
	return nil
}

// ManagedAddress is a pay-to-pubkey-hash address derived by an
// AccountManager. Values handed out by the manager are copies; the Used flag
// reflects the state at the time the copy was made.
type ManagedAddress struct {
	// Account is the name of the owning account.
	Account string

	// Address is the P2PKH address.
	Address *btcutil.AddressPubKeyHash

	// PubKey is the public key the address commits to.
	PubKey *btcec.PublicKey

	// PkScript is the output script paying the address.
	PkScript []byte

	// Branch is the chain the address was derived on.
	Branch Branch

	// Index is the derivation index within the branch.
	Index uint32

	// Used is set once an output paying the address has been observed.
	Used bool
}

// KeyLocator returns the locator of the key controlling the address.
func (a *ManagedAddress) KeyLocator() keychain.KeyLocator {
	return keychain.KeyLocator{
		Branch: uint32(a.Branch),
		Index:  a.Index,
	}
}

// KeyDescriptor returns the full key descriptor of the address.
func (a *ManagedAddress) KeyDescriptor() keychain.KeyDescriptor {
	return keychain.KeyDescriptor{
		KeyLocator: a.KeyLocator(),
		PubKey:     a.PubKey,
	}
}

// String returns the encoded address.
func (a *ManagedAddress) String() string {
	return a.Address.EncodeAddress()
}
