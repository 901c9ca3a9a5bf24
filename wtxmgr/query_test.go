// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestListUnspent checks discovery ordering, confirmation filtering and the
// exact aggregates.
func TestListUnspent(t *testing.T) {
	t.Parallel()

	s := NewStore()

	// Discovered in mempool first, mined later.
	early := newTx(t, []wire.OutPoint{fakeOutPoint(1)}, 110_000_000)
	insert(t, s, early, mempool, "default", 0)

	late := newTx(t, []wire.OutPoint{fakeOutPoint(2)}, 110_000_000,
		220_000_000)
	insert(t, s, late, blockAt(5), "default", 1, 0)

	unspent := s.ListUnspent("default", false)
	require.Equal(t, []wire.OutPoint{
		{Hash: early.Hash, Index: 0},
		{Hash: late.Hash, Index: 1},
		{Hash: late.Hash, Index: 0},
	}, outPoints(unspent))
	require.False(t, unspent[0].Confirmed())
	require.Equal(t, int32(5), unspent[1].Height.UnwrapOr(-1))

	require.Equal(t, 3, s.Count("default", false))
	require.Equal(t, 2, s.Count("default", true))
	require.Equal(t, btcutil.Amount(440_000_000), s.Sum("default", false))
	require.Equal(t, btcutil.Amount(330_000_000), s.Sum("default", true))

	_, err := s.InsertTx(early, blockAt(6))
	require.NoError(t, err)
	require.Equal(t, 3, s.Count("default", true))

	require.Empty(t, s.ListUnspent("unknown", false))
	require.Zero(t, s.Sum("unknown", false))
}

// TestTransactions checks history ordering and the credit/debit joins.
func TestTransactions(t *testing.T) {
	t.Parallel()

	s := NewStore()

	fund1 := newTx(t, []wire.OutPoint{fakeOutPoint(1)}, 110_000_000)
	insert(t, s, fund1, blockAt(10), "a", 0)
	fund2 := newTx(t, []wire.OutPoint{fakeOutPoint(2)}, 110_000_000)
	insert(t, s, fund2, blockAt(10), "a", 0)

	// Spends both funding outputs, pays account b and returns change.
	ins := []wire.OutPoint{
		{Hash: fund1.Hash}, {Hash: fund2.Hash},
	}
	send := newTx(t, ins, 200_000_000, 19_000_000)
	_, err := s.InsertTx(send, blockAt(11))
	require.NoError(t, err)
	_, err = s.AddCredit(creditFor(send, 0, "b"))
	require.NoError(t, err)
	change := creditFor(send, 1, "a")
	change.Change = true
	_, err = s.AddCredit(change)
	require.NoError(t, err)
	for _, op := range ins {
		mustSpend(t, s, op, send.Hash)
	}

	pending := newTx(t, []wire.OutPoint{{Hash: send.Hash, Index: 1}},
		18_000_000)
	insert(t, s, pending, mempool, "a", 0)
	mustSpend(t, s, wire.OutPoint{Hash: send.Hash, Index: 1},
		pending.Hash)

	history := s.Transactions("a")
	hashes := make([]chainhash.Hash, 0, len(history))
	for _, d := range history {
		hashes = append(hashes, d.Hash)
	}
	require.Equal(t, []chainhash.Hash{
		pending.Hash, send.Hash, fund2.Hash, fund1.Hash,
	}, hashes)

	sendDetails := history[1]
	require.Equal(t, TxStateConfirmed, sendDetails.State)
	require.Len(t, sendDetails.Debits, 2)
	require.Equal(t, btcutil.Amount(110_000_000),
		sendDetails.Debits[0].Amount)
	require.Len(t, sendDetails.Credits, 2)
	require.Equal(t, "b", sendDetails.Credits[0].Account)
	require.False(t, sendDetails.Credits[0].Change)
	require.True(t, sendDetails.Credits[1].Change)

	// Account b only sees the send.
	require.Len(t, s.Transactions("b"), 1)

	d, err := s.TxDetails(pending.Hash)
	require.NoError(t, err)
	require.Equal(t, TxStateMempool, d.State)
	require.True(t, d.Block.IsNone())

	_, err = s.TxDetails(chainhash.Hash{0x42})
	require.True(t, IsError(err, ErrTxRecordNotFound))
}
