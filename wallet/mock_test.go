// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// This file contains mock implementations of the collaborators of a Ledger.
// They are used to inject failures of the signing backend and the chain
// service, and notifications the chain service would never send.

package wallet

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/shauser/lbry-sdk/chain"
	"github.com/shauser/lbry-sdk/keychain"
	"github.com/stretchr/testify/mock"
)

// mockKeys derives keys with a real key ring and mocks signing.
type mockKeys struct {
	mock.Mock

	ring keychain.KeyRing
}

// A compile-time assertion to ensure that mockKeys implements the
// AccountKeys interface.
var _ AccountKeys = (*mockKeys)(nil)

// DeriveKey implements the keychain.KeyRing interface.
func (m *mockKeys) DeriveKey(
	loc keychain.KeyLocator) (keychain.KeyDescriptor, error) {

	return m.ring.DeriveKey(loc)
}

// SignTransaction implements the keychain.Signer interface.
func (m *mockKeys) SignTransaction(tx *wire.MsgTx,
	descs []*keychain.SignDescriptor) error {

	args := m.Called(tx, descs)
	return args.Error(0)
}

// mockChain is a SimChain whose broadcasts are mocked.
type mockChain struct {
	*chain.SimChain
	mock.Mock
}

// A compile-time assertion to ensure that mockChain implements the
// chain.Interface interface.
var _ chain.Interface = (*mockChain)(nil)

// SendRawTransaction implements the chain.Interface interface.
func (m *mockChain) SendRawTransaction(
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	args := m.Called(tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

// injectChain is a SimChain whose notification stream can be interleaved
// with arbitrary values.
type injectChain struct {
	*chain.SimChain

	ntfns chan interface{}
	quit  chan struct{}
}

// A compile-time assertion to ensure that injectChain implements the
// chain.DevInterface interface.
var _ chain.DevInterface = (*injectChain)(nil)

// newInjectChain starts a chain forwarding the notifications of a SimChain.
func newInjectChain(t *testing.T) *injectChain {
	t.Helper()

	c := &injectChain{
		SimChain: newTestChain(t),
		ntfns:    make(chan interface{}),
		quit:     make(chan struct{}),
	}
	t.Cleanup(func() { close(c.quit) })

	sim := c.SimChain.Notifications()
	go func() {
		for {
			select {
			case n, ok := <-sim:
				if !ok {
					return
				}
				select {
				case c.ntfns <- n:
				case <-c.quit:
					return
				}

			case <-c.quit:
				return
			}
		}
	}()

	return c
}

// Notifications implements the chain.Interface interface.
func (c *injectChain) Notifications() <-chan interface{} {
	return c.ntfns
}

// inject delivers n to the ledger ahead of any later chain notification.
func (c *injectChain) inject(t *testing.T, n interface{}) {
	t.Helper()

	select {
	case c.ntfns <- n:
	case <-time.After(testTimeout):
		t.Fatalf("notification %T not consumed", n)
	}
}
