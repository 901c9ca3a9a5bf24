// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

var (
	testScript = []byte{0x51}
	mempool    = fn.None[BlockMeta]()
)

// fakeOutPoint returns an outpoint of a transaction unknown to the store.
func fakeOutPoint(n byte) wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash{0xee, n}}
}

// newTx builds a transaction spending prevOuts and creating one output per
// amount.
func newTx(t *testing.T, prevOuts []wire.OutPoint,
	amounts ...int64) *TxRecord {

	t.Helper()

	tx := wire.NewMsgTx(wire.TxVersion)
	for i := range prevOuts {
		tx.AddTxIn(wire.NewTxIn(&prevOuts[i], nil, nil))
	}
	for _, amount := range amounts {
		tx.AddTxOut(wire.NewTxOut(amount, testScript))
	}

	rec, err := NewTxRecordFromMsgTx(tx, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	return rec
}

// creditFor describes output index of rec as owned by account.
func creditFor(rec *TxRecord, index uint32, account string) Credit {
	return Credit{
		OutPoint: wire.OutPoint{Hash: rec.Hash, Index: index},
		Account:  account,
		Index:    index,
		Amount:   btcutil.Amount(rec.MsgTx.TxOut[index].Value),
		PkScript: rec.MsgTx.TxOut[index].PkScript,
	}
}

// blockAt returns a block at the given height.
func blockAt(height int32) fn.Option[BlockMeta] {
	return fn.Some(BlockMeta{
		Block: Block{
			Hash:   chainhash.Hash{0xbb, byte(height)},
			Height: height,
		},
		Time: time.Unix(1_700_000_000+int64(height)*600, 0),
	})
}

// insert stores rec and every listed output as a credit of account.
func insert(t *testing.T, s *Store, rec *TxRecord, block fn.Option[BlockMeta],
	account string, outputs ...uint32) {

	t.Helper()

	_, err := s.InsertTx(rec, block)
	require.NoError(t, err)

	for _, index := range outputs {
		_, err := s.AddCredit(creditFor(rec, index, account))
		require.NoError(t, err)
	}
}

// outPoints returns the outpoints of credits.
func outPoints(credits []Credit) []wire.OutPoint {
	ops := make([]wire.OutPoint, 0, len(credits))
	for _, c := range credits {
		ops = append(ops, c.OutPoint)
	}
	return ops
}

// mustSpend marks op spent by spender, requiring that no transaction is
// replaced.
func mustSpend(t *testing.T, s *Store, op wire.OutPoint,
	spender chainhash.Hash) {

	t.Helper()

	removed, err := s.Spend(op, spender)
	require.NoError(t, err)
	require.Empty(t, removed)
}
