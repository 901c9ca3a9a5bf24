// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shauser/lbry-sdk/waddrmgr"
)

// Account is a named set of addresses derived from one key ring. It belongs
// to exactly one Ledger, which applies chain events to it.
type Account struct {
	name   string
	ledger *Ledger
	addrs  *waddrmgr.AccountManager
	keys   AccountKeys

	// mu serializes the application of chain events to the account.
	mu sync.Mutex

	// applied holds the events applied to the account, keyed by
	// transaction hash and then by block hash. Mempool sightings use the
	// zero hash.
	applied map[chainhash.Hash]map[chainhash.Hash]struct{}

	needsRescan atomic.Bool
}

// Name returns the name of the account.
func (a *Account) Name() string {
	return a.name
}

// Ledger returns the ledger the account is registered with.
func (a *Account) Ledger() *Ledger {
	return a.ledger
}

// NeedsRescan reports whether applying a chain event revealed a conflict
// between the account's records and the chain. Rescan clears it.
func (a *Account) NeedsRescan() bool {
	return a.needsRescan.Load()
}

// GetAddresses returns every address derived on the branch, in derivation
// order.
func (a *Account) GetAddresses(branch waddrmgr.Branch) (
	[]waddrmgr.ManagedAddress, error) {

	return a.addrs.GetAddresses(branch)
}

// ReceivingAddresses returns every derived receiving address.
func (a *Account) ReceivingAddresses() ([]waddrmgr.ManagedAddress, error) {
	return a.addrs.GetAddresses(waddrmgr.ExternalBranch)
}

// ChangeAddresses returns every derived change address.
func (a *Account) ChangeAddresses() ([]waddrmgr.ManagedAddress, error) {
	return a.addrs.GetAddresses(waddrmgr.InternalBranch)
}

// GetOrCreateUsableAddress returns an address of the branch that is unused
// and not reserved by an in-flight send. A newly derived address is watched
// before it is returned.
func (a *Account) GetOrCreateUsableAddress(branch waddrmgr.Branch) (
	waddrmgr.ManagedAddress, error) {

	addr, err := a.addrs.GetOrCreateUsableAddress(branch)
	if err != nil {
		return addr, err
	}
	if err := a.ledger.watchNew(a); err != nil {
		return waddrmgr.ManagedAddress{}, err
	}

	return addr, nil
}

// isApplied reports whether the event was applied. The caller must hold
// the mutex.
func (a *Account) isApplied(tx, block chainhash.Hash) bool {
	_, ok := a.applied[tx][block]
	return ok
}

// markApplied records the event. The caller must hold the mutex.
func (a *Account) markApplied(tx, block chainhash.Hash) {
	blocks, ok := a.applied[tx]
	if !ok {
		blocks = make(map[chainhash.Hash]struct{})
		a.applied[tx] = blocks
	}
	blocks[block] = struct{}{}
}

// forget drops the applied events of the transaction so that it is applied
// again when seen next.
func (a *Account) forget(tx chainhash.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.applied, tx)
}
