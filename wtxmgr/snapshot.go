// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TxSnapshot is the persistent form of a stored transaction.
type TxSnapshot struct {
	Record   *TxRecord
	Block    fn.Option[BlockMeta]
	Sequence uint64
}

// Snapshot is the persistent state of a Store. Reservations are transient
// and not included.
type Snapshot struct {
	// Txs are ordered by sequence.
	Txs []TxSnapshot

	// Credits are ordered by sequence. Only OutPoint, Account, Branch,
	// Index, Amount, PkScript, Change, Sequence and SpentBy are
	// meaningful.
	Credits []Credit
}

// Snapshot returns a consistent copy of the store contents.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Txs:     make([]TxSnapshot, 0, len(s.txs)),
		Credits: make([]Credit, 0, len(s.credits)),
	}
	for _, entry := range s.txs {
		snap.Txs = append(snap.Txs, TxSnapshot{
			Record:   entry.rec,
			Block:    entry.block,
			Sequence: entry.seq,
		})
	}
	for _, c := range s.credits {
		snap.Credits = append(snap.Credits, *c)
	}

	sort.Slice(snap.Txs, func(i, j int) bool {
		return snap.Txs[i].Sequence < snap.Txs[j].Sequence
	})
	sort.Slice(snap.Credits, func(i, j int) bool {
		return snap.Credits[i].Sequence < snap.Credits[j].Sequence
	})

	return snap
}

// Restore replaces the store contents with the snapshot. Every credit must
// belong to a transaction of the snapshot.
func (s *Store) Restore(snap *Snapshot) error {
	txs := make(map[chainhash.Hash]*txEntry, len(snap.Txs))
	var txSeq uint64
	for _, tx := range snap.Txs {
		if tx.Record == nil {
			return txStoreError(
				ErrInvalidSnapshot, "nil transaction", nil,
			)
		}
		txs[tx.Record.Hash] = &txEntry{
			rec:   tx.Record,
			block: tx.Block,
			seq:   tx.Sequence,
		}
		if tx.Sequence > txSeq {
			txSeq = tx.Sequence
		}
	}

	credits := make(map[wire.OutPoint]*Credit, len(snap.Credits))
	accountCredits := make(map[string][]wire.OutPoint)
	ordered := append([]Credit(nil), snap.Credits...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	var creditSeq uint64
	for i := range ordered {
		c := ordered[i]
		if _, ok := txs[c.OutPoint.Hash]; !ok {
			str := fmt.Sprintf("credit %v references unknown "+
				"transaction", c.OutPoint)
			return txStoreError(ErrInvalidSnapshot, str, nil)
		}
		if _, ok := credits[c.OutPoint]; ok {
			str := fmt.Sprintf("duplicate credit %v", c.OutPoint)
			return txStoreError(ErrInvalidSnapshot, str, nil)
		}

		c.Height = fn.None[int32]()
		c.SpenderMined = false
		c.Reserved = false
		credits[c.OutPoint] = &c
		accountCredits[c.Account] = append(
			accountCredits[c.Account], c.OutPoint,
		)
		if c.Sequence > creditSeq {
			creditSeq = c.Sequence
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs = txs
	s.credits = credits
	s.accountCredits = accountCredits
	s.locks = make(map[wire.OutPoint]LockID)
	s.txSeq = txSeq
	s.creditSeq = creditSeq

	log.Infof("Restored %d transaction(s) and %d credit(s)", len(txs),
		len(credits))

	return nil
}
