// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet ties the address managers of a set of accounts, a
// transaction store and a chain backend into a ledger. The ledger follows
// the chain through notifications, builds and broadcasts transactions and
// answers balance and history queries.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/shauser/lbry-sdk/chain"
	"github.com/shauser/lbry-sdk/keychain"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wallet/txauthor"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

// AccountKeys is the key backend of an account: it derives the account's
// public keys and signs spends of its outputs.
type AccountKeys interface {
	keychain.KeyRing
	keychain.Signer
}

// Snapshot is the persistent state of a ledger.
type Snapshot struct {
	// Accounts maps account names to the state of their addresses.
	Accounts map[string]waddrmgr.Snapshot

	// Store is the transaction store state.
	Store *wtxmgr.Snapshot
}

// LedgerOption modifies how a ledger is opened.
type LedgerOption func(*ledgerOptions)

type ledgerOptions struct {
	snapshot *Snapshot
}

// WithSnapshot restores the ledger from a snapshot. The transaction store is
// restored when the ledger is opened and the address state of each account
// when it is registered.
func WithSnapshot(s *Snapshot) LedgerOption {
	return func(o *ledgerOptions) {
		o.snapshot = s
	}
}

// pendingTx is a built transaction that has not been observed on chain.
type pendingTx struct {
	id     wtxmgr.LockID
	change *Account
}

// Ledger is the context object shared by the accounts registered with it.
type Ledger struct {
	cfg    *Config
	policy txauthor.Policy
	chain  chain.Interface
	store  *wtxmgr.Store

	waiters *txWaiters

	mu        sync.RWMutex
	accounts  []*Account
	byName    map[string]*Account
	restored  map[string]waddrmgr.Snapshot
	bestBlock wtxmgr.BlockMeta

	buildMu sync.Mutex
	pending map[chainhash.Hash]pendingTx

	rescanMu sync.Mutex
	rescanID uint64
	rescans  map[uint64]chan wtxmgr.BlockMeta

	closeOnce sync.Once
	wg        sync.WaitGroup
	quit      chan struct{}
}

// OpenLedger returns a ledger following the chain backend. The backend is
// started and stopped by the caller.
func OpenLedger(cfg *Config, chainClient chain.Interface,
	opts ...LedgerOption) (*Ledger, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, err := cfg.policy()
	if err != nil {
		return nil, err
	}

	var options ledgerOptions
	for _, opt := range opts {
		opt(&options)
	}

	l := &Ledger{
		cfg:      cfg,
		policy:   policy,
		chain:    chainClient,
		store:    wtxmgr.NewStore(),
		waiters:  newTxWaiters(),
		byName:   make(map[string]*Account),
		restored: make(map[string]waddrmgr.Snapshot),
		pending:  make(map[chainhash.Hash]pendingTx),
		rescans:  make(map[uint64]chan wtxmgr.BlockMeta),
		quit:     make(chan struct{}),
	}

	if s := options.snapshot; s != nil {
		if s.Store != nil {
			if err := l.store.Restore(s.Store); err != nil {
				return nil, err
			}
		}
		for name, acct := range s.Accounts {
			l.restored[name] = acct
		}
		log.Infof("Restored ledger snapshot with %d %s",
			len(s.Accounts), pickNoun(len(s.Accounts), "account",
				"accounts"))
	}

	l.wg.Add(1)
	go l.handleChainNotifications()

	return l, nil
}

// Close stops the notification handler and resolves pending waits with
// ErrLedgerClosed.
func (l *Ledger) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
	})
	l.wg.Wait()
	l.waiters.clear()
}

func (l *Ledger) closed() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

// Config returns the configuration of the ledger.
func (l *Ledger) Config() *Config {
	return l.cfg
}

// BestBlock returns the last block connected by the chain backend.
func (l *Ledger) BestBlock() wtxmgr.BlockMeta {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.bestBlock
}

// RegisterAccount adds a named account to the ledger. If the ledger was
// opened from a snapshot holding the account, its address state is
// restored. The account is not watched until SubscribeAccount is called.
func (l *Ledger) RegisterAccount(name string, keys AccountKeys) (*Account,
	error) {

	if l.closed() {
		return nil, ErrLedgerClosed
	}

	addrs, err := waddrmgr.NewAccountManager(
		name, keys, l.cfg.Params, l.cfg.managerConfig(),
	)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byName[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrAccountExists, name)
	}

	if s, ok := l.restored[name]; ok {
		if err := addrs.Restore(s); err != nil {
			return nil, err
		}
		delete(l.restored, name)
	}

	acct := &Account{
		name:    name,
		ledger:  l,
		addrs:   addrs,
		keys:    keys,
		applied: make(map[chainhash.Hash]map[chainhash.Hash]struct{}),
	}
	l.accounts = append(l.accounts, acct)
	l.byName[name] = acct

	log.Infof("Registered account %q", name)

	return acct, nil
}

// Account returns the registered account with the given name.
func (l *Ledger) Account(name string) (*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAccount, name)
	}

	return acct, nil
}

// Accounts returns the registered accounts in registration order.
func (l *Ledger) Accounts() []*Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]*Account(nil), l.accounts...)
}

// checkAccount ensures the account is registered with this ledger.
func (l *Ledger) checkAccount(acct *Account) error {
	if acct == nil || acct.ledger != l {
		return ErrUnknownAccount
	}
	return nil
}

// SubscribeAccount derives the lookahead window of the account and asks the
// chain backend to watch every address of the account. Addresses derived
// later are watched as they are derived.
func (l *Ledger) SubscribeAccount(ctx context.Context, acct *Account) error {
	if err := l.checkAccount(acct); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.closed() {
		return ErrLedgerClosed
	}

	if err := acct.addrs.EnsureGap(); err != nil {
		return err
	}

	return l.watchNew(acct)
}

// watchNew adds the addresses derived by the account since the last call to
// the chain backend's watch filter.
func (l *Ledger) watchNew(acct *Account) error {
	fresh := acct.addrs.UnwatchedAddresses()
	if len(fresh) == 0 {
		return nil
	}

	addrs := make([]btcutil.Address, 0, len(fresh))
	for i := range fresh {
		addrs = append(addrs, fresh[i].Address)
	}
	if err := l.chain.NotifyReceived(addrs); err != nil {
		return fmt.Errorf("unable to watch addresses of account %q: %w",
			acct.name, err)
	}

	log.Debugf("Watching %d new %s of account %q", len(addrs),
		pickNoun(len(addrs), "address", "addresses"), acct.name)

	return nil
}

// ownerOf returns the account and managed address a P2PKH output script
// pays, if it pays one of the registered accounts.
func (l *Ledger) ownerOf(pkScript []byte) (*Account, waddrmgr.ManagedAddress,
	bool) {

	class, addrs, _, err := txscript.ExtractPkScriptAddrs(
		pkScript, l.cfg.Params,
	)
	if err != nil || class != txscript.PubKeyHashTy || len(addrs) != 1 {
		return nil, waddrmgr.ManagedAddress{}, false
	}

	for _, acct := range l.Accounts() {
		managed, err := acct.addrs.LookupAddress(addrs[0])
		if err == nil {
			return acct, managed, true
		}
	}

	return nil, waddrmgr.ManagedAddress{}, false
}

// Snapshot returns the persistent state of the ledger. Accounts restored
// from a previous snapshot but not registered again are carried over.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := &Snapshot{
		Accounts: make(map[string]waddrmgr.Snapshot, len(l.accounts)),
		Store:    l.store.Snapshot(),
	}
	for name, acct := range l.restored {
		s.Accounts[name] = acct
	}
	for _, acct := range l.accounts {
		s.Accounts[acct.name] = acct.addrs.Snapshot()
	}

	return s
}

// Rescan drops every record of the account and replays the chain history of
// its addresses. Replaying may mark addresses used and derive new ones, so
// the replay is repeated until no new addresses appear. It clears the
// account's NeedsRescan flag.
func (l *Ledger) Rescan(ctx context.Context, acct *Account) error {
	if err := l.checkAccount(acct); err != nil {
		return err
	}

	acct.mu.Lock()
	dropped := l.store.DropAccount(acct.name)
	acct.applied = make(map[chainhash.Hash]map[chainhash.Hash]struct{})
	acct.needsRescan.Store(false)
	acct.mu.Unlock()

	log.Infof("Rescanning account %q, dropped %d %s", acct.name, dropped,
		pickNoun(dropped, "credit", "credits"))

	for {
		known := acct.addrs.AllAddresses()
		addrs := make([]btcutil.Address, 0, len(known))
		for i := range known {
			addrs = append(addrs, known[i].Address)
		}

		if err := l.rescan(ctx, addrs); err != nil {
			return err
		}

		// Flush the addresses derived during the replay, they are
		// watched by the rescan already.
		acct.addrs.UnwatchedAddresses()
		if len(acct.addrs.AllAddresses()) == len(known) {
			break
		}
	}

	log.Infof("Finished rescan of account %q", acct.name)

	return nil
}

// rescan runs one chain rescan and waits until all of its notifications
// have been handled.
func (l *Ledger) rescan(ctx context.Context,
	addrs []btcutil.Address) error {

	done := make(chan wtxmgr.BlockMeta, 1)

	l.rescanMu.Lock()
	l.rescanID++
	id := l.rescanID
	l.rescans[id] = done
	l.rescanMu.Unlock()

	defer func() {
		l.rescanMu.Lock()
		delete(l.rescans, id)
		l.rescanMu.Unlock()
	}()

	if err := l.chain.Rescan(id, addrs); err != nil {
		return fmt.Errorf("rescan failed: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.quit:
		return ErrLedgerClosed
	}
}

// finishRescan resolves the rescan with the id of the notification.
func (l *Ledger) finishRescan(n chain.RescanFinished) error {
	l.rescanMu.Lock()
	done, ok := l.rescans[n.ID]
	l.rescanMu.Unlock()

	if !ok {
		return errors.New("rescan finished for unknown request")
	}
	done <- n.Block

	return nil
}
