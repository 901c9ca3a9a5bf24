// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wtxmgr tracks the transactions relevant to a wallet and the
// outputs they create for its accounts.
package wtxmgr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// txEntry is the store's record of a relevant transaction.
type txEntry struct {
	rec   *TxRecord
	block fn.Option[BlockMeta]
	seq   uint64
}

// mined returns whether the transaction is in a block.
func (e *txEntry) mined() bool {
	return e.block.IsSome()
}

// state returns the confirmation state of the transaction.
func (e *txEntry) state() TxState {
	if e.mined() {
		return TxStateConfirmed
	}
	return TxStateMempool
}

// Store is the in-memory UTXO set and transaction history of a wallet. It
// is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	txs     map[chainhash.Hash]*txEntry
	credits map[wire.OutPoint]*Credit

	// accountCredits lists the outpoints of each account in discovery
	// order.
	accountCredits map[string][]wire.OutPoint

	locks map[wire.OutPoint]LockID

	txSeq     uint64
	creditSeq uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		txs:            make(map[chainhash.Hash]*txEntry),
		credits:        make(map[wire.OutPoint]*Credit),
		accountCredits: make(map[string][]wire.OutPoint),
		locks:          make(map[wire.OutPoint]LockID),
	}
}

// InsertTx records a relevant transaction, either unmined (block None) or
// mined in block. Inserting a known transaction is idempotent except that a
// mined sighting moves an unmined transaction into the block. It returns
// whether the stored state changed.
func (s *Store) InsertTx(rec *TxRecord, block fn.Option[BlockMeta]) (bool,
	error) {

	if rec == nil {
		return false, txStoreError(ErrInput, "nil transaction", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.txs[rec.Hash]
	if !ok {
		s.txSeq++
		s.txs[rec.Hash] = &txEntry{
			rec:   rec,
			block: block,
			seq:   s.txSeq,
		}

		log.Debugf("Inserted %v transaction %v", s.txs[rec.Hash].state(),
			rec.Hash)

		return true, nil
	}

	// A mempool sighting never demotes a mined transaction. Demotion
	// happens through Rollback only.
	if block.IsNone() {
		return false, nil
	}

	newBlock := block.UnwrapOr(BlockMeta{})
	if entry.mined() &&
		entry.block.UnwrapOr(BlockMeta{}).Hash == newBlock.Hash {

		return false, nil
	}

	entry.block = block

	log.Debugf("Transaction %v mined in block %v (height %d)", rec.Hash,
		newBlock.Hash, newBlock.Height)

	return true, nil
}

// AddCredit records an output of a stored transaction as owned by an
// account. Adding an identical credit twice is a no-op; adding a different
// credit for a recorded outpoint fails with ErrDuplicateCredit. It returns
// whether the credit was added.
func (s *Store) AddCredit(c Credit) (bool, error) {
	if c.Amount < 0 {
		str := fmt.Sprintf("negative credit amount %v for %v",
			c.Amount, c.OutPoint)
		return false, txStoreError(ErrInput, str, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.txs[c.OutPoint.Hash]
	if !ok {
		str := fmt.Sprintf("transaction %v of credit is unknown",
			c.OutPoint.Hash)
		return false, txStoreError(ErrTxRecordNotFound, str, nil)
	}
	if int(c.OutPoint.Index) >= len(entry.rec.MsgTx.TxOut) {
		str := fmt.Sprintf("credit %v out of range", c.OutPoint)
		return false, txStoreError(ErrInput, str, nil)
	}

	if existing, ok := s.credits[c.OutPoint]; ok {
		if existing.sameOwner(&c) {
			return false, nil
		}

		str := fmt.Sprintf("conflicting credit for %v already "+
			"recorded for account %q", c.OutPoint, existing.Account)
		return false, txStoreError(ErrDuplicateCredit, str, nil)
	}

	s.creditSeq++
	stored := c
	stored.PkScript = append([]byte(nil), c.PkScript...)
	stored.Sequence = s.creditSeq
	stored.Height = fn.None[int32]()
	stored.SpentBy = fn.None[chainhash.Hash]()
	stored.SpenderMined = false
	stored.Reserved = false

	s.credits[c.OutPoint] = &stored
	s.accountCredits[c.Account] = append(
		s.accountCredits[c.Account], c.OutPoint,
	)

	log.Debugf("Added credit %v (%v) to account %q", c.OutPoint,
		c.Amount, c.Account)

	return true, nil
}

// Spend marks the credit at op as spent by the stored transaction spender.
//
// Spending an unknown outpoint fails with ErrCreditNotFound and spending a
// credit already spent by another unmined transaction fails with
// ErrAlreadySpent; both are benign misses. A mined spender takes precedence
// over an unmined one, which is removed along with its descendants. Spending
// a credit already spent by a different mined transaction fails with
// ErrDoubleSpend.
//
// The returned hashes are the unmined transactions removed to make room for
// a mined spender, descendants included.
func (s *Store) Spend(op wire.OutPoint,
	spender chainhash.Hash) ([]chainhash.Hash, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	spenderEntry, ok := s.txs[spender]
	if !ok {
		str := fmt.Sprintf("spending transaction %v is unknown",
			spender)
		return nil, txStoreError(ErrTxRecordNotFound, str, nil)
	}

	c, ok := s.credits[op]
	if !ok {
		str := fmt.Sprintf("no credit for outpoint %v", op)
		return nil, txStoreError(ErrCreditNotFound, str, nil)
	}

	var removed []chainhash.Hash
	if c.SpentBy.IsSome() {
		prev := c.SpentBy.UnwrapOr(chainhash.Hash{})
		if prev == spender {
			return nil, nil
		}

		prevEntry, ok := s.txs[prev]
		switch {
		case ok && prevEntry.mined():
			str := fmt.Sprintf("outpoint %v spent by mined %v, "+
				"now spent by %v", op, prev, spender)
			return nil, txStoreError(ErrDoubleSpend, str, nil)

		case !spenderEntry.mined():
			str := fmt.Sprintf("outpoint %v already spent by "+
				"unmined %v", op, prev)
			return nil, txStoreError(ErrAlreadySpent, str, nil)
		}

		log.Infof("Removing unmined transaction %v double spent by "+
			"mined %v", prev, spender)
		removed = s.removeUnmined(prev)
	}

	c.SpentBy = fn.Some(spender)
	delete(s.locks, op)

	log.Debugf("Credit %v spent by %v", op, spender)

	return removed, nil
}

// deleteCredit removes a credit from every index. The caller must hold the
// write lock.
func (s *Store) deleteCredit(op wire.OutPoint) {
	c, ok := s.credits[op]
	if !ok {
		return
	}

	delete(s.credits, op)
	delete(s.locks, op)

	ops := s.accountCredits[c.Account]
	for i, o := range ops {
		if o == op {
			ops = append(ops[:i:i], ops[i+1:]...)
			break
		}
	}
	if len(ops) == 0 {
		delete(s.accountCredits, c.Account)
	} else {
		s.accountCredits[c.Account] = ops
	}
}

// removeUnmined removes an unmined transaction, the unmined transactions
// spending its outputs, and the credits they created, and reverts the spends
// they made. It returns the removed hashes. The caller must hold the write
// lock.
func (s *Store) removeUnmined(hash chainhash.Hash) []chainhash.Hash {
	entry, ok := s.txs[hash]
	if !ok || entry.mined() {
		return nil
	}

	// Delete the entry first so cycles through malformed data end.
	delete(s.txs, hash)
	removed := []chainhash.Hash{hash}

	for i := range entry.rec.MsgTx.TxOut {
		op := wire.OutPoint{Hash: hash, Index: uint32(i)}
		c, ok := s.credits[op]
		if !ok {
			continue
		}

		c.SpentBy.WhenSome(func(child chainhash.Hash) {
			removed = append(removed, s.removeUnmined(child)...)
		})
		s.deleteCredit(op)
	}

	for _, txIn := range entry.rec.MsgTx.TxIn {
		c, ok := s.credits[txIn.PreviousOutPoint]
		if !ok {
			continue
		}
		if c.SpentBy.UnwrapOr(chainhash.Hash{}) == hash {
			c.SpentBy = fn.None[chainhash.Hash]()
		}
	}

	return removed
}

// RemoveUnminedTx drops an unmined transaction as replaced or evicted. The
// outputs it spent become unspent again, the credits it created are removed
// and unmined descendants are removed too. It returns the hashes of every
// removed transaction.
func (s *Store) RemoveUnminedTx(hash chainhash.Hash) ([]chainhash.Hash,
	error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.txs[hash]
	if !ok {
		str := fmt.Sprintf("transaction %v is unknown", hash)
		return nil, txStoreError(ErrTxRecordNotFound, str, nil)
	}
	if entry.mined() {
		str := fmt.Sprintf("transaction %v is mined", hash)
		return nil, txStoreError(ErrTxConfirmed, str, nil)
	}

	removed := s.removeUnmined(hash)

	log.Infof("Removed %d unmined transaction(s) starting at %v",
		len(removed), hash)

	return removed, nil
}

// Rollback returns every transaction mined at or above height to the
// mempool. It returns the affected hashes in the order they were first seen.
func (s *Store) Rollback(height int32) []chainhash.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*txEntry
	for _, entry := range s.txs {
		entry.block.WhenSome(func(b BlockMeta) {
			if b.Height >= height {
				entries = append(entries, entry)
			}
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	hashes := make([]chainhash.Hash, 0, len(entries))
	for _, entry := range entries {
		entry.block = fn.None[BlockMeta]()
		hashes = append(hashes, entry.rec.Hash)
	}

	if len(hashes) > 0 {
		log.Infof("Rolled back %d transaction(s) mined at or above "+
			"height %d", len(hashes), height)
	}

	return hashes
}

// DropAccount removes every credit of the account along with the
// transactions no longer referenced by any remaining credit. It returns
// the number of credits removed.
func (s *Store) DropAccount(account string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := append([]wire.OutPoint(nil), s.accountCredits[account]...)
	for _, op := range ops {
		s.deleteCredit(op)
	}

	referenced := make(map[chainhash.Hash]struct{})
	for op, c := range s.credits {
		referenced[op.Hash] = struct{}{}
		c.SpentBy.WhenSome(func(h chainhash.Hash) {
			referenced[h] = struct{}{}
		})
	}
	for hash := range s.txs {
		if _, ok := referenced[hash]; !ok {
			delete(s.txs, hash)
		}
	}

	log.Infof("Dropped %d credit(s) of account %q", len(ops), account)

	return len(ops)
}
