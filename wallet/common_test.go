// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shauser/lbry-sdk/chain"
	"github.com/shauser/lbry-sdk/keychain"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wallet/txauthor"
	"github.com/shauser/lbry-sdk/wtxmgr"
	"github.com/stretchr/testify/require"
)

const testTimeout = 10 * time.Second

const coin btcutil.Amount = btcutil.SatoshiPerBitcoin

// testCtx returns a context that is cancelled when the test ends or the
// timeout elapses.
func testCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	return ctx
}

// newTestChain starts an in-memory chain that is stopped when the test
// ends.
func newTestChain(t *testing.T) *chain.SimChain {
	t.Helper()

	c := chain.NewSimChain(chain.SimConfig{})
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)

	return c
}

// newTestLedger opens a ledger on the chain that is closed when the test
// ends.
func newTestLedger(t *testing.T, cfg *Config, c chain.Interface,
	opts ...LedgerOption) *Ledger {

	t.Helper()

	l, err := OpenLedger(cfg, c, opts...)
	require.NoError(t, err)
	t.Cleanup(l.Close)

	return l
}

// testKeys returns a key ring derived from a seed made of the given byte.
func testKeys(t *testing.T, seed byte) *keychain.HDKeyRing {
	t.Helper()

	keys, err := keychain.NewHDKeyRing(
		bytes.Repeat([]byte{seed}, 32), &chaincfg.RegressionNetParams,
		1, 0,
	)
	require.NoError(t, err)

	return keys
}

// newTestAccount registers and subscribes an account.
func newTestAccount(t *testing.T, l *Ledger, name string,
	seed byte) *Account {

	t.Helper()

	acct, err := l.RegisterAccount(name, testKeys(t, seed))
	require.NoError(t, err)
	require.NoError(t, l.SubscribeAccount(testCtx(t), acct))

	return acct
}

// receivingAddr returns the receiving address of the account at index.
func receivingAddr(t *testing.T, acct *Account,
	index int) waddrmgr.ManagedAddress {

	t.Helper()

	addrs, err := acct.ReceivingAddresses()
	require.NoError(t, err)
	require.Greater(t, len(addrs), index)

	return addrs[index]
}

// fund pays amt to the address and waits for the ledger to see it.
func fund(t *testing.T, l *Ledger, c chain.DevInterface,
	addr waddrmgr.ManagedAddress, amt btcutil.Amount) chainhash.Hash {

	t.Helper()

	hash, err := c.SendToAddress(addr.Address, amt)
	require.NoError(t, err)
	require.NoError(t, l.WaitFor(
		testCtx(t), *hash, wtxmgr.TxStateMempool,
	))

	return *hash
}

// mine mines a block and waits for the ledger to see the transactions
// confirmed.
func mine(t *testing.T, l *Ledger, c chain.DevInterface,
	hashes ...chainhash.Hash) {

	t.Helper()

	_, err := c.Generate(1)
	require.NoError(t, err)

	for _, hash := range hashes {
		require.NoError(t, l.WaitFor(
			testCtx(t), hash, wtxmgr.TxStateConfirmed,
		))
	}
}

// payTo returns an output paying amt to the address.
func payTo(t *testing.T, addr waddrmgr.ManagedAddress,
	amt btcutil.Amount) *txauthor.Output {

	t.Helper()

	out, err := txauthor.PayToPubKeyHash(amt, addr.Address.ScriptAddress())
	require.NoError(t, err)

	return out
}

// feeFor returns the fee of a transaction of the given shape at the
// default fee rate.
func feeFor(inputs, outputs int) btcutil.Amount {
	size := 10 + 148*inputs + 34*outputs
	return DefaultFeeRatePerKb * btcutil.Amount(size) / 1000
}

// requireConserved checks that the inputs of the transaction pay for its
// outputs and fee exactly.
func requireConserved(t *testing.T, tx *CreatedTx) {
	t.Helper()

	var out btcutil.Amount
	for _, txOut := range tx.Tx.TxOut {
		out += btcutil.Amount(txOut.Value)
	}

	require.GreaterOrEqual(t, tx.Fee, btcutil.Amount(0))
	require.Equal(t, tx.TotalInput, out+tx.Fee)
}
