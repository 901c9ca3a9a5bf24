// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// view returns a copy of the credit with the store-maintained fields
// filled in. The caller must hold the lock.
func (s *Store) view(c *Credit) Credit {
	out := *c

	if entry, ok := s.txs[c.OutPoint.Hash]; ok {
		entry.block.WhenSome(func(b BlockMeta) {
			out.Height = fn.Some(b.Height)
		})
	}
	c.SpentBy.WhenSome(func(h chainhash.Hash) {
		if entry, ok := s.txs[h]; ok {
			out.SpenderMined = entry.mined()
		}
	})
	_, out.Reserved = s.locks[c.OutPoint]

	return out
}

// Credit returns the credit recorded for op, spent or not.
func (s *Store) Credit(op wire.OutPoint) (Credit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credits[op]
	if !ok {
		return Credit{}, false
	}

	return s.view(c), true
}

// ListCredits returns every credit of the account, spent or not, in
// discovery order.
func (s *Store) ListCredits(account string) []Credit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := s.accountCredits[account]
	credits := make([]Credit, 0, len(ops))
	for _, op := range ops {
		credits = append(credits, s.view(s.credits[op]))
	}

	return credits
}

// ListUnspent returns the unspent credits of the account in discovery order.
// With confirmedOnly set, credits created by unmined transactions are
// skipped.
func (s *Store) ListUnspent(account string, confirmedOnly bool) []Credit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var credits []Credit
	for _, op := range s.accountCredits[account] {
		c := s.view(s.credits[op])
		if c.Spent() {
			continue
		}
		if confirmedOnly && !c.Confirmed() {
			continue
		}
		credits = append(credits, c)
	}

	return credits
}

// Count returns the number of unspent credits of the account.
func (s *Store) Count(account string, confirmedOnly bool) int {
	return len(s.ListUnspent(account, confirmedOnly))
}

// Sum returns the exact total of the unspent credits of the account.
func (s *Store) Sum(account string, confirmedOnly bool) btcutil.Amount {
	var total btcutil.Amount
	for _, c := range s.ListUnspent(account, confirmedOnly) {
		total += c.Amount
	}

	return total
}

// TxState returns the confirmation state of a transaction.
func (s *Store) TxState(hash chainhash.Hash) TxState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.txs[hash]
	if !ok {
		return TxStateUnknown
	}

	return entry.state()
}

// details builds the TxDetails of a stored transaction. The caller must hold
// the lock.
func (s *Store) details(entry *txEntry) TxDetails {
	d := TxDetails{
		TxRecord: *entry.rec,
		State:    entry.state(),
		Block:    entry.block,
		Sequence: entry.seq,
	}

	for i := range entry.rec.MsgTx.TxOut {
		op := wire.OutPoint{Hash: entry.rec.Hash, Index: uint32(i)}
		if c, ok := s.credits[op]; ok {
			d.Credits = append(d.Credits, s.view(c))
		}
	}
	for _, txIn := range entry.rec.MsgTx.TxIn {
		c, ok := s.credits[txIn.PreviousOutPoint]
		if !ok || c.SpentBy.UnwrapOr(chainhash.Hash{}) != entry.rec.Hash {
			continue
		}
		d.Debits = append(d.Debits, s.view(c))
	}

	return d
}

// TxDetails returns the details of a stored transaction.
func (s *Store) TxDetails(hash chainhash.Hash) (*TxDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.txs[hash]
	if !ok {
		str := fmt.Sprintf("transaction %v is unknown", hash)
		return nil, txStoreError(ErrTxRecordNotFound, str, nil)
	}

	d := s.details(entry)
	return &d, nil
}

// Transactions returns every stored transaction that creates or spends a
// credit of the account, most recent first: unmined transactions lead in
// reverse order of discovery, followed by mined ones by descending height.
func (s *Store) Transactions(account string) []TxDetails {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[chainhash.Hash]struct{})
	var entries []*txEntry
	add := func(hash chainhash.Hash) {
		if _, ok := seen[hash]; ok {
			return
		}
		seen[hash] = struct{}{}
		if entry, ok := s.txs[hash]; ok {
			entries = append(entries, entry)
		}
	}
	for _, op := range s.accountCredits[account] {
		add(op.Hash)
		s.credits[op].SpentBy.WhenSome(add)
	}

	sort.Slice(entries, func(i, j int) bool {
		return newerThan(entries[i], entries[j])
	})

	txs := make([]TxDetails, 0, len(entries))
	for _, entry := range entries {
		txs = append(txs, s.details(entry))
	}

	return txs
}

// newerThan orders transactions most recent first.
func newerThan(a, b *txEntry) bool {
	if a.mined() != b.mined() {
		return !a.mined()
	}
	if a.mined() {
		ha := a.block.UnwrapOr(BlockMeta{}).Height
		hb := b.block.UnwrapOr(BlockMeta{}).Height
		if ha != hb {
			return ha > hb
		}
	}

	return a.seq > b.seq
}
