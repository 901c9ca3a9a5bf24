// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestSnapshotRestore round trips a store through its snapshot and the TLV
// encodings.
func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	s := NewStore()
	fund := newTx(t, []wire.OutPoint{fakeOutPoint(1)}, 5000, 7000)
	insert(t, s, fund, blockAt(3), "default", 0, 1)

	fundOp := wire.OutPoint{Hash: fund.Hash, Index: 0}
	spend := newTx(t, []wire.OutPoint{fundOp}, 4000)
	_, err := s.InsertTx(spend, mempool)
	require.NoError(t, err)
	change := creditFor(spend, 0, "default")
	change.Change = true
	_, err = s.AddCredit(change)
	require.NoError(t, err)
	mustSpend(t, s, fundOp, spend.Hash)
	require.NoError(t, s.Reserve(LockID{9}, []wire.OutPoint{
		{Hash: fund.Hash, Index: 1},
	}))

	snap := s.Snapshot()
	require.Len(t, snap.Txs, 2)
	require.Len(t, snap.Credits, 3)

	decoded := &Snapshot{}
	for i := range snap.Txs {
		b, err := EncodeTx(&snap.Txs[i])
		require.NoError(t, err)
		tx, err := DecodeTx(b)
		require.NoError(t, err)

		require.Equal(t, snap.Txs[i].Record.Hash, tx.Record.Hash)
		require.Equal(t, snap.Txs[i].Sequence, tx.Sequence)
		require.Equal(t, snap.Txs[i].Block.IsSome(), tx.Block.IsSome())
		decoded.Txs = append(decoded.Txs, *tx)
	}
	for i := range snap.Credits {
		b, err := EncodeCredit(&snap.Credits[i])
		require.NoError(t, err)
		c, err := DecodeCredit(b)
		require.NoError(t, err)
		require.Equal(t, snap.Credits[i], *c)
		decoded.Credits = append(decoded.Credits, *c)
	}

	restored := NewStore()
	require.NoError(t, restored.Restore(decoded))

	require.Equal(t, s.ListCredits("default")[0].OutPoint,
		restored.ListCredits("default")[0].OutPoint)
	require.Equal(t, s.Sum("default", false), restored.Sum("default", false))
	require.Equal(t, s.Sum("default", true), restored.Sum("default", true))
	require.Equal(t, TxStateMempool, restored.TxState(spend.Hash))
	require.Equal(t, TxStateConfirmed, restored.TxState(fund.Hash))
	require.Len(t, restored.Transactions("default"), 2)

	// Reservations are not persisted.
	require.False(t, restored.IsReserved(wire.OutPoint{
		Hash: fund.Hash, Index: 1,
	}))
}

// TestRestoreInvalidSnapshot ensures dangling credits are rejected.
func TestRestoreInvalidSnapshot(t *testing.T) {
	t.Parallel()

	s := NewStore()
	err := s.Restore(&Snapshot{Credits: []Credit{{
		OutPoint: fakeOutPoint(1),
		Account:  "default",
	}}})
	require.True(t, IsError(err, ErrInvalidSnapshot))

	_, err = DecodeCredit([]byte{0x01, 0x20, 0x00})
	require.True(t, IsError(err, ErrInvalidSnapshot))
}
