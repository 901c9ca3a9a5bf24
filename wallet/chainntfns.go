// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shauser/lbry-sdk/chain"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

// handleChainNotifications applies chain notifications in delivery order.
// It is the only goroutine mutating the transaction store on behalf of the
// chain.
func (l *Ledger) handleChainNotifications() {
	defer l.wg.Done()

	notifications := l.chain.Notifications()
	for {
		select {
		case <-l.quit:
			return

		case n, ok := <-notifications:
			if !ok {
				log.Warnf("Chain notification channel closed")
				return
			}

			var err error
			switch n := n.(type) {
			case chain.BlockConnected:
				l.connectBlock(wtxmgr.BlockMeta(n))
			case chain.BlockDisconnected:
				l.disconnectBlock(wtxmgr.BlockMeta(n))
			case chain.RelevantTx:
				err = l.addRelevantTx(n.TxRecord, n.Block)
			case chain.TxDropped:
				l.dropTx(n.Hash)
			case chain.RescanFinished:
				err = l.finishRescan(n)
			default:
				err = errors.New("unknown notification type")
			}
			if err != nil {
				log.Errorf("Cannot handle chain server "+
					"notification %T: %v", n, err)
			}
		}
	}
}

// connectBlock records the new tip.
func (l *Ledger) connectBlock(b wtxmgr.BlockMeta) {
	l.mu.Lock()
	l.bestBlock = b
	l.mu.Unlock()

	log.Debugf("Connected block %v (height %d)", b.Hash, b.Height)
}

// disconnectBlock returns the transactions of the block and of any block
// above it to the mempool.
func (l *Ledger) disconnectBlock(b wtxmgr.BlockMeta) {
	hashes := l.store.Rollback(b.Height)

	// The block may be mined again with the same hash, so the applied
	// events of its transactions are forgotten.
	for _, hash := range hashes {
		for _, acct := range l.Accounts() {
			acct.forget(hash)
		}
		l.waiters.observe(hash, l.store.TxState(hash))
	}

	log.Infof("Disconnected block %v (height %d), %d %s back in mempool",
		b.Hash, b.Height, len(hashes), pickNoun(len(hashes),
			"transaction", "transactions"))
}

// dropTx removes a transaction evicted from the mempool and its unmined
// descendants.
func (l *Ledger) dropTx(hash chainhash.Hash) {
	removed, err := l.store.RemoveUnminedTx(hash)
	switch {
	case wtxmgr.IsError(err, wtxmgr.ErrTxRecordNotFound):
		log.Debugf("Ignoring drop of unknown transaction %v", hash)
		return

	case err != nil:
		log.Warnf("Ignoring drop of %v: %v", hash, err)
		return
	}

	for _, h := range removed {
		l.forgetTx(h)
	}
}

// forgetTx resets the bookkeeping of a transaction removed from the store.
func (l *Ledger) forgetTx(hash chainhash.Hash) {
	for _, acct := range l.Accounts() {
		acct.forget(hash)
	}
	l.releasePending(hash)
	l.waiters.observe(hash, wtxmgr.TxStateUnknown)
}

// ownedOutput is an output of a transaction paying a registered account.
type ownedOutput struct {
	index uint32
	addr  waddrmgr.ManagedAddress
}

// accountEvent is the part of a transaction touching one account.
type accountEvent struct {
	acct    *Account
	outputs []ownedOutput
	inputs  []wire.OutPoint
}

// touchedAccounts splits a transaction into per-account events, in account
// registration order.
func (l *Ledger) touchedAccounts(tx *wire.MsgTx) []*accountEvent {
	events := make(map[*Account]*accountEvent)
	event := func(acct *Account) *accountEvent {
		e, ok := events[acct]
		if !ok {
			e = &accountEvent{acct: acct}
			events[acct] = e
		}
		return e
	}

	for i, out := range tx.TxOut {
		acct, addr, ok := l.ownerOf(out.PkScript)
		if !ok {
			continue
		}
		e := event(acct)
		e.outputs = append(e.outputs, ownedOutput{
			index: uint32(i),
			addr:  addr,
		})
	}

	for _, in := range tx.TxIn {
		c, ok := l.store.Credit(in.PreviousOutPoint)
		if !ok {
			continue
		}
		acct, err := l.Account(c.Account)
		if err != nil {
			continue
		}
		e := event(acct)
		e.inputs = append(e.inputs, in.PreviousOutPoint)
	}

	var ordered []*accountEvent
	for _, acct := range l.Accounts() {
		if e, ok := events[acct]; ok {
			ordered = append(ordered, e)
		}
	}

	return ordered
}

// addRelevantTx applies a transaction reported by the chain backend. The
// transaction is recorded, then each touched account, in registration
// order, marks the addresses paid as used, records the outputs it received
// and the outputs it spent. Applying an event a second time is a no-op.
func (l *Ledger) addRelevantTx(rec *wtxmgr.TxRecord,
	block *wtxmgr.BlockMeta) error {

	if rec == nil {
		return errors.New("relevant transaction without record")
	}

	events := l.touchedAccounts(&rec.MsgTx)
	if len(events) == 0 {
		log.Tracef("Ignoring transaction %v touching no account",
			rec.Hash)
		return nil
	}

	blockOpt := fn.None[wtxmgr.BlockMeta]()
	var blockKey chainhash.Hash
	if block != nil {
		blockOpt = fn.Some(*block)
		blockKey = block.Hash
	}

	if _, err := l.store.InsertTx(rec, blockOpt); err != nil {
		return err
	}

	var replaced []chainhash.Hash
	for _, e := range events {
		replaced = append(replaced, l.applyEvent(rec, blockKey, e)...)
	}

	for _, hash := range replaced {
		l.forgetTx(hash)
	}
	l.releasePending(rec.Hash)

	for _, e := range events {
		if err := l.watchNew(e.acct); err != nil {
			log.Errorf("Unable to extend watch filter: %v", err)
		}
	}

	l.waiters.observe(rec.Hash, l.store.TxState(rec.Hash))

	return nil
}

// applyEvent applies the part of a transaction touching one account under
// the account's lock. It returns the unmined transactions the store removed
// because the transaction double spent them, their unmined descendants
// included.
func (l *Ledger) applyEvent(rec *wtxmgr.TxRecord, blockKey chainhash.Hash,
	e *accountEvent) []chainhash.Hash {

	acct := e.acct
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.isApplied(rec.Hash, blockKey) {
		log.Tracef("Event %v@%v already applied to account %q",
			rec.Hash, blockKey, acct.name)
		return nil
	}

	for _, out := range e.outputs {
		_, err := acct.addrs.MarkUsed(out.addr.Address)
		if err != nil {
			log.Errorf("Unable to mark %v used: %v", out.addr, err)
		}

		txOut := rec.MsgTx.TxOut[out.index]
		_, err = l.store.AddCredit(wtxmgr.Credit{
			OutPoint: wire.OutPoint{Hash: rec.Hash, Index: out.index},
			Account:  acct.name,
			Branch:   out.addr.Branch,
			Index:    out.addr.Index,
			Amount:   btcutil.Amount(txOut.Value),
			PkScript: txOut.PkScript,
			Change:   out.addr.Branch == waddrmgr.InternalBranch,
		})
		switch {
		case err == nil:

		case wtxmgr.IsError(err, wtxmgr.ErrDuplicateCredit):
			log.Warnf("Account %q: %v", acct.name, err)

		default:
			log.Errorf("Unable to add credit %v:%d to account "+
				"%q: %v", rec.Hash, out.index, acct.name, err)
		}
	}

	var replaced []chainhash.Hash
	for _, op := range e.inputs {
		removed, err := l.store.Spend(op, rec.Hash)
		switch {
		case err == nil:
			replaced = append(replaced, removed...)

		case wtxmgr.IsError(err, wtxmgr.ErrDoubleSpend):
			acct.needsRescan.Store(true)
			log.Errorf("Account %q needs a rescan: %v", acct.name,
				err)

		case wtxmgr.IsBenign(err):
			log.Debugf("Account %q: %v", acct.name, err)

		default:
			log.Errorf("Unable to spend %v for account %q: %v", op,
				acct.name, err)
		}
	}

	acct.markApplied(rec.Hash, blockKey)

	log.Debugf("Applied %v to account %q: %d %s received, %d %s spent",
		rec.Hash, acct.name, len(e.outputs),
		pickNoun(len(e.outputs), "output", "outputs"), len(e.inputs),
		pickNoun(len(e.inputs), "output", "outputs"))

	return replaced
}
