// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wtxmgr"
	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount in coins as an exact decimal string with at
// least one fractional digit, e.g. "5.5", "0.0" or "3.499802".
func FormatAmount(amt btcutil.Amount) string {
	d := decimal.New(int64(amt), -8)
	if d.Equal(d.Truncate(0)) {
		return d.StringFixed(1)
	}
	return d.String()
}

// Balance returns the total of the account's unspent outputs, confirmed or
// not.
func (a *Account) Balance() btcutil.Amount {
	return a.ledger.store.Sum(a.name, false)
}

// ConfirmedBalance returns the total of the account's unspent outputs
// created by mined transactions.
func (a *Account) ConfirmedBalance() btcutil.Amount {
	return a.ledger.store.Sum(a.name, true)
}

// ListUnspent returns the account's unspent outputs in discovery order.
func (a *Account) ListUnspent(confirmedOnly bool) []wtxmgr.Credit {
	return a.ledger.store.ListUnspent(a.name, confirmedOnly)
}

// UtxoCount returns the number of unspent outputs of the account.
func (a *Account) UtxoCount() int {
	return a.ledger.store.Count(a.name, false)
}

// TxInput is an input of a transaction in an account's history.
type TxInput struct {
	OutPoint wire.OutPoint

	// Amount is known when the spent output belongs to a registered
	// account.
	Amount fn.Option[btcutil.Amount]

	// IsMine is set when the spent output belonged to the account.
	IsMine bool
}

// TxOutput is an output of a transaction in an account's history.
type TxOutput struct {
	Index   uint32
	Amount  btcutil.Amount
	Address fn.Option[btcutil.Address]

	// IsChange is set when the output pays a change address of any
	// registered account.
	IsChange bool

	// IsMine is set when the output pays an address of the account.
	IsMine bool
}

// TxSummary is a transaction in an account's history.
type TxSummary struct {
	Hash  chainhash.Hash
	State wtxmgr.TxState
	Block fn.Option[wtxmgr.BlockMeta]

	// Fee is known when every input amount is known.
	Fee fn.Option[btcutil.Amount]

	Inputs  []TxInput
	Outputs []TxOutput
}

// GetTransactions returns the transactions that credit or debit the account,
// most recent first.
func (a *Account) GetTransactions() []TxSummary {
	l := a.ledger
	details := l.store.Transactions(a.name)

	txs := make([]TxSummary, 0, len(details))
	for i := range details {
		txs = append(txs, a.summarize(&details[i]))
	}

	return txs
}

// summarize resolves the inputs and outputs of a stored transaction from the
// account's point of view.
func (a *Account) summarize(d *wtxmgr.TxDetails) TxSummary {
	l := a.ledger
	tx := &d.MsgTx

	s := TxSummary{
		Hash:    d.Hash,
		State:   d.State,
		Block:   d.Block,
		Inputs:  make([]TxInput, 0, len(tx.TxIn)),
		Outputs: make([]TxOutput, 0, len(tx.TxOut)),
	}

	var totalIn, totalOut btcutil.Amount
	allKnown := true
	for _, txIn := range tx.TxIn {
		in := TxInput{
			OutPoint: txIn.PreviousOutPoint,
			Amount:   fn.None[btcutil.Amount](),
		}
		if c, ok := l.store.Credit(txIn.PreviousOutPoint); ok {
			in.Amount = fn.Some(c.Amount)
			in.IsMine = c.Account == a.name
			totalIn += c.Amount
		} else {
			allKnown = false
		}
		s.Inputs = append(s.Inputs, in)
	}

	for i, txOut := range tx.TxOut {
		out := TxOutput{
			Index:   uint32(i),
			Amount:  btcutil.Amount(txOut.Value),
			Address: fn.None[btcutil.Address](),
		}
		totalOut += out.Amount

		_, addrs, _, err := txscript.ExtractPkScriptAddrs(
			txOut.PkScript, l.cfg.Params,
		)
		if err == nil && len(addrs) == 1 {
			out.Address = fn.Some(addrs[0])
		}

		if owner, addr, ok := l.ownerOf(txOut.PkScript); ok {
			out.IsChange = addr.Branch == waddrmgr.InternalBranch
			out.IsMine = owner == a
		}
		s.Outputs = append(s.Outputs, out)
	}

	s.Fee = fn.None[btcutil.Amount]()
	if allKnown && len(tx.TxIn) > 0 {
		s.Fee = fn.Some(totalIn - totalOut)
	}

	return s
}
