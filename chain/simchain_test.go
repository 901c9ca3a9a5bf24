// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

const ntfnTimeout = 5 * time.Second

// testKey is a key controlling a regtest P2PKH address.
type testKey struct {
	priv     *btcec.PrivateKey
	addr     btcutil.Address
	pkScript []byte
}

func newTestKey(t *testing.T) *testKey {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()),
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return &testKey{priv: priv, addr: addr, pkScript: pkScript}
}

func startSimChain(t *testing.T, cfg SimConfig) *SimChain {
	t.Helper()

	c := NewSimChain(cfg)
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)

	return c
}

func nextNtfn(t *testing.T, c *SimChain) interface{} {
	t.Helper()

	select {
	case n := <-c.Notifications():
		return n
	case <-time.After(ntfnTimeout):
		t.Fatal("timeout waiting for notification")
		return nil
	}
}

func requireNoNtfn(t *testing.T, c *SimChain) {
	t.Helper()

	select {
	case n := <-c.Notifications():
		t.Fatalf("unexpected notification %T", n)
	case <-time.After(50 * time.Millisecond):
	}
}

// spend returns a signed transaction spending output index of prev to dest.
func spend(t *testing.T, key *testKey, prev *wire.MsgTx, index uint32,
	dest []byte, fee int64) *wire.MsgTx {

	t.Helper()

	tx := wire.NewMsgTx(wire.TxVersion)
	op := wire.OutPoint{Hash: prev.TxHash(), Index: index}
	tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	tx.AddTxOut(wire.NewTxOut(prev.TxOut[index].Value-fee, dest))

	sigScript, err := txscript.SignatureScript(
		tx, 0, key.pkScript, txscript.SigHashAll, key.priv, true,
	)
	require.NoError(t, err)
	tx.TxIn[0].SignatureScript = sigScript

	return tx
}

func requireRelevant(t *testing.T, c *SimChain, hash chainhash.Hash,
	height int32) *wire.MsgTx {

	t.Helper()

	n := nextNtfn(t, c)
	rel, ok := n.(RelevantTx)
	require.True(t, ok, "got %T", n)
	require.Equal(t, hash, rel.TxRecord.Hash)
	if height < 0 {
		require.Nil(t, rel.Block)
	} else {
		require.NotNil(t, rel.Block)
		require.Equal(t, height, rel.Block.Height)
	}

	return &rel.TxRecord.MsgTx
}

// TestSimChainFundAndMine checks that watched funding transactions are
// delivered once unmined and once mined, before the block itself.
func TestSimChainFundAndMine(t *testing.T) {
	t.Parallel()

	c := startSimChain(t, SimConfig{})
	key := newTestKey(t)
	other := newTestKey(t)

	require.NoError(t, c.NotifyReceived([]btcutil.Address{key.addr}))

	hash, err := c.SendToAddress(key.addr, 5e8)
	require.NoError(t, err)
	tx := requireRelevant(t, c, *hash, -1)
	require.Equal(t, int64(5e8), tx.TxOut[0].Value)

	// Unwatched addresses produce no notification.
	_, err = c.SendToAddress(other.addr, 1e8)
	require.NoError(t, err)
	requireNoNtfn(t, c)
	require.Equal(t, 2, c.MempoolSize())

	hashes, err := c.Generate(1)
	require.NoError(t, err)
	require.Len(t, hashes, 1)

	requireRelevant(t, c, *hash, 1)
	n := nextNtfn(t, c)
	connected, ok := n.(BlockConnected)
	require.True(t, ok, "got %T", n)
	require.Equal(t, *hashes[0], connected.Hash)
	require.Equal(t, int32(1), connected.Height)

	best, err := c.BestBlock()
	require.NoError(t, err)
	require.Equal(t, int32(1), best.Height)
	require.Zero(t, c.MempoolSize())

	height, err := c.TxHeight(*hash)
	require.NoError(t, err)
	require.Equal(t, int32(1), height)

	_, err = c.SendToAddress(key.addr, 0)
	require.Error(t, err)
}

// TestSimChainBroadcast covers acceptance and rejection of broadcasts.
func TestSimChainBroadcast(t *testing.T) {
	t.Parallel()

	c := startSimChain(t, SimConfig{})
	key := newTestKey(t)
	dest := newTestKey(t)

	require.NoError(t, c.NotifyReceived([]btcutil.Address{key.addr}))
	hash, err := c.SendToAddress(key.addr, 1e8)
	require.NoError(t, err)
	funding := requireRelevant(t, c, *hash, -1)

	// A spend signed with the wrong key fails script verification.
	bad := spend(t, dest, funding, 0, dest.pkScript, 1000)
	_, err = c.SendRawTransaction(bad)
	require.ErrorIs(t, err, ErrTxRejected)

	// Outputs may not exceed inputs.
	greedy := spend(t, key, funding, 0, dest.pkScript, -1)
	_, err = c.SendRawTransaction(greedy)
	require.ErrorIs(t, err, ErrTxRejected)

	good := spend(t, key, funding, 0, dest.pkScript, 1000)
	sent, err := c.SendRawTransaction(good)
	require.NoError(t, err)
	require.Equal(t, good.TxHash(), *sent)

	// The spend is relevant through the watched outpoint.
	requireRelevant(t, c, good.TxHash(), -1)

	// Resubmitting is a no-op.
	_, err = c.SendRawTransaction(good)
	require.NoError(t, err)
	requireNoNtfn(t, c)

	conflict := spend(t, key, funding, 0, key.pkScript, 2000)
	_, err = c.SendRawTransaction(conflict)
	require.ErrorIs(t, err, ErrTxRejected)

	missing := wire.NewMsgTx(wire.TxVersion)
	missing.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 3}, nil, nil))
	missing.AddTxOut(wire.NewTxOut(1, dest.pkScript))
	_, err = c.SendRawTransaction(missing)
	require.ErrorIs(t, err, ErrTxRejected)

	forged := wire.NewMsgTx(wire.TxVersion)
	forged.AddTxIn(wire.NewTxIn(&nullOutPoint, nil, nil))
	forged.AddTxOut(wire.NewTxOut(1, dest.pkScript))
	_, err = c.SendRawTransaction(forged)
	require.ErrorIs(t, err, ErrTxRejected)
}

// TestSimChainRescan checks that a rescan replays history for addresses
// watched after the fact.
func TestSimChainRescan(t *testing.T) {
	t.Parallel()

	c := startSimChain(t, SimConfig{})
	key := newTestKey(t)
	dest := newTestKey(t)

	hash, err := c.SendToAddress(key.addr, 2e8)
	require.NoError(t, err)
	_, err = c.Generate(1)
	require.NoError(t, err)
	require.IsType(t, BlockConnected{}, nextNtfn(t, c))

	require.NoError(t, c.Rescan(7, []btcutil.Address{key.addr}))
	funding := requireRelevant(t, c, *hash, 1)

	n := nextNtfn(t, c)
	finished, ok := n.(RescanFinished)
	require.True(t, ok, "got %T", n)
	require.Equal(t, uint64(7), finished.ID)
	require.Equal(t, int32(1), finished.Block.Height)

	// The rescan leaves the address watched.
	child := spend(t, key, funding, 0, dest.pkScript, 500)
	_, err = c.SendRawTransaction(child)
	require.NoError(t, err)
	requireRelevant(t, c, child.TxHash(), -1)
}

// TestSimChainDropAndDisconnect covers mempool eviction and reorgs.
func TestSimChainDropAndDisconnect(t *testing.T) {
	t.Parallel()

	c := startSimChain(t, SimConfig{})
	key := newTestKey(t)

	require.NoError(t, c.NotifyReceived([]btcutil.Address{key.addr}))
	hash, err := c.SendToAddress(key.addr, 1e8)
	require.NoError(t, err)
	funding := requireRelevant(t, c, *hash, -1)

	child := spend(t, key, funding, 0, key.pkScript, 1000)
	_, err = c.SendRawTransaction(child)
	require.NoError(t, err)
	requireRelevant(t, c, child.TxHash(), -1)

	// Evicting the parent evicts the child first.
	require.NoError(t, c.DropTransaction(*hash))
	require.Equal(t, TxDropped{Hash: child.TxHash()}, nextNtfn(t, c))
	require.Equal(t, TxDropped{Hash: *hash}, nextNtfn(t, c))
	require.Zero(t, c.MempoolSize())

	_, err = c.TxHeight(*hash)
	require.ErrorIs(t, err, ErrUnknownTx)
	require.ErrorIs(t, c.DropTransaction(*hash), ErrUnknownTx)

	// Mine a funding transaction and reorganize it out.
	hash, err = c.SendToAddress(key.addr, 1e8)
	require.NoError(t, err)
	requireRelevant(t, c, *hash, -1)
	_, err = c.Generate(1)
	require.NoError(t, err)
	requireRelevant(t, c, *hash, 1)
	require.IsType(t, BlockConnected{}, nextNtfn(t, c))

	require.Error(t, c.DropTransaction(*hash))

	meta, err := c.DisconnectTip()
	require.NoError(t, err)
	require.Equal(t, BlockDisconnected(meta), nextNtfn(t, c))
	require.Equal(t, 1, c.MempoolSize())

	height, err := c.TxHeight(*hash)
	require.NoError(t, err)
	require.Equal(t, int32(-1), height)

	_, err = c.DisconnectTip()
	require.Error(t, err)
}

// TestSimChainAutoMine checks that the miner only mines non-empty
// mempools.
func TestSimChainAutoMine(t *testing.T) {
	t.Parallel()

	mineTicker := ticker.NewForce(time.Hour)
	c := startSimChain(t, SimConfig{MineTicker: mineTicker})
	key := newTestKey(t)

	mineTicker.Force <- time.Now()
	best, err := c.BestBlock()
	require.NoError(t, err)
	require.Zero(t, best.Height)

	hash, err := c.SendToAddress(key.addr, 1e8)
	require.NoError(t, err)
	mineTicker.Force <- time.Now()

	require.Eventually(t, func() bool {
		height, err := c.TxHeight(*hash)
		return err == nil && height == 1
	}, ntfnTimeout, 10*time.Millisecond)
}

// TestSimChainNotStarted checks calls on a stopped chain.
func TestSimChainNotStarted(t *testing.T) {
	t.Parallel()

	c := NewSimChain(SimConfig{})
	key := newTestKey(t)

	_, err := c.SendToAddress(key.addr, 1)
	require.ErrorIs(t, err, ErrNotStarted)
	_, err = c.Generate(1)
	require.ErrorIs(t, err, ErrNotStarted)
	require.ErrorIs(t, c.NotifyReceived(nil), ErrNotStarted)

	require.NoError(t, c.Start())
	require.Error(t, c.Start())
	c.Stop()
	c.Stop()

	_, err = c.SendRawTransaction(wire.NewMsgTx(wire.TxVersion))
	require.ErrorIs(t, err, ErrNotStarted)
}
