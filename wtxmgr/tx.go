// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shauser/lbry-sdk/waddrmgr"
)

// TxState is the confirmation state of a transaction as observed by the
// store.
type TxState uint8

const (
	// TxStateUnknown is the state of transactions the store has never
	// seen or has dropped.
	TxStateUnknown TxState = iota

	// TxStateMempool is the state of observed but unmined transactions.
	TxStateMempool

	// TxStateConfirmed is the state of transactions mined in a block.
	TxStateConfirmed
)

// String returns a human readable name of the state.
func (s TxState) String() string {
	switch s {
	case TxStateMempool:
		return "mempool"
	case TxStateConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Block contains the minimum amount of data to uniquely identify any block on
// either the best or side chain.
type Block struct {
	Hash   chainhash.Hash
	Height int32
}

// BlockMeta contains the unique identification for a block and any metadata
// pertaining to the block. At the moment, this additional metadata only
// includes the block time from the block header.
type BlockMeta struct {
	Block
	Time time.Time
}

// TxRecord represents a transaction managed by the Store.
type TxRecord struct {
	MsgTx        wire.MsgTx
	Hash         chainhash.Hash
	Received     time.Time
	SerializedTx []byte // Optional: may be nil
}

// NewTxRecord creates a new transaction record that may be inserted into the
// store. It uses memoization to save the transaction hash and the serialized
// transaction.
func NewTxRecord(serializedTx []byte, received time.Time) (*TxRecord, error) {
	rec := &TxRecord{
		Received:     received,
		SerializedTx: serializedTx,
	}
	err := rec.MsgTx.Deserialize(bytes.NewReader(serializedTx))
	if err != nil {
		str := "failed to deserialize transaction"
		return nil, txStoreError(ErrInput, str, err)
	}
	rec.Hash = rec.MsgTx.TxHash()

	return rec, nil
}

// NewTxRecordFromMsgTx creates a new transaction record that may be inserted
// into the store.
func NewTxRecordFromMsgTx(msgTx *wire.MsgTx,
	received time.Time) (*TxRecord, error) {

	var buf bytes.Buffer
	buf.Grow(msgTx.SerializeSize())
	if err := msgTx.Serialize(&buf); err != nil {
		str := "failed to serialize transaction"
		return nil, txStoreError(ErrInput, str, err)
	}

	return &TxRecord{
		MsgTx:        *msgTx,
		Hash:         msgTx.TxHash(),
		Received:     received,
		SerializedTx: buf.Bytes(),
	}, nil
}

// Credit is a transaction output owned by one of the wallet's accounts.
// Spent credits are retained so that history can resolve input amounts.
type Credit struct {
	// OutPoint identifies the output.
	OutPoint wire.OutPoint

	// Account is the name of the owning account.
	Account string

	// Branch and Index locate the key of the owning address.
	Branch waddrmgr.Branch
	Index  uint32

	// Amount is the output value.
	Amount btcutil.Amount

	// PkScript is the output script.
	PkScript []byte

	// Change is set for outputs paying a change address.
	Change bool

	// The fields below are maintained by the store and ignored by
	// AddCredit.

	// Sequence is the discovery order of the credit.
	Sequence uint64

	// Height is the height of the block that mined the creating
	// transaction, or None while it is unmined.
	Height fn.Option[int32]

	// SpentBy is the hash of the spending transaction, if any.
	SpentBy fn.Option[chainhash.Hash]

	// SpenderMined is set when the spending transaction is mined.
	SpenderMined bool

	// Reserved is set when the credit is held by an in-flight build.
	Reserved bool
}

// Confirmed returns whether the creating transaction is mined.
func (c *Credit) Confirmed() bool {
	return c.Height.IsSome()
}

// Spent returns whether the credit is spent by a known transaction.
func (c *Credit) Spent() bool {
	return c.SpentBy.IsSome()
}

// sameOwner reports whether two credits for the same outpoint describe the
// same output.
func (c *Credit) sameOwner(o *Credit) bool {
	return c.Account == o.Account && c.Amount == o.Amount &&
		c.Branch == o.Branch && c.Index == o.Index &&
		c.Change == o.Change && bytes.Equal(c.PkScript, o.PkScript)
}

// TxDetails is a transaction together with the wallet credits it creates and
// spends.
type TxDetails struct {
	TxRecord

	// State is the confirmation state of the transaction.
	State TxState

	// Block is the block the transaction is mined in, if any.
	Block fn.Option[BlockMeta]

	// Sequence is the order in which the store first saw the
	// transaction.
	Sequence uint64

	// Credits are the wallet outputs created by the transaction, ordered
	// by output index.
	Credits []Credit

	// Debits are the wallet outputs spent by the transaction, ordered by
	// input index.
	Debits []Credit
}
