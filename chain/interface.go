// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

var (
	// ErrNotStarted is returned by backends that have not been started
	// or have been stopped.
	ErrNotStarted = errors.New("chain backend not running")

	// ErrTxRejected is wrapped by every broadcast rejection.
	ErrTxRejected = errors.New("transaction rejected")

	// ErrUnknownTx is returned when a transaction is not in the mempool
	// or the best chain.
	ErrUnknownTx = errors.New("unknown transaction")
)

// Interface allows more than one backing blockchain source, as long as a
// driver is written for it.
type Interface interface {
	Start() error
	Stop()
	WaitForShutdown()

	// BestBlock returns the tip of the best chain.
	BestBlock() (wtxmgr.BlockMeta, error)

	// SendRawTransaction submits a signed transaction to the mempool.
	SendRawTransaction(*wire.MsgTx) (*chainhash.Hash, error)

	// NotifyReceived adds addresses to the watch filter. Transactions
	// paying them, or spending outputs that pay them, are delivered as
	// RelevantTx notifications from then on.
	NotifyReceived([]btcutil.Address) error

	// Rescan adds the addresses to the watch filter and replays every
	// relevant mined and mempool transaction, followed by a
	// RescanFinished notification carrying the id.
	Rescan(id uint64, addrs []btcutil.Address) error

	// Notifications returns the channel notifications are delivered on.
	Notifications() <-chan interface{}
}

// DevInterface is implemented by development chains that can fund addresses
// and mine blocks on demand.
type DevInterface interface {
	Interface

	// SendToAddress creates a transaction out of thin air paying amount
	// to addr and submits it to the mempool.
	SendToAddress(btcutil.Address, btcutil.Amount) (*chainhash.Hash, error)

	// Generate mines n blocks containing the whole mempool.
	Generate(n uint32) ([]*chainhash.Hash, error)
}

// Notification types.  These are defined here and processed from reading a
// notification channel to avoid handling these notifications directly in
// callbacks, which isn't very Go-like and doesn't allow blocking client
// calls.
type (
	// BlockConnected is a notification for a newly-attached block to the
	// best chain. It follows the RelevantTx notifications of the block.
	BlockConnected wtxmgr.BlockMeta

	// BlockDisconnected is a notification that the block was reorganized
	// out of the best chain. Its transactions return to the mempool.
	BlockDisconnected wtxmgr.BlockMeta

	// RelevantTx is a notification for a transaction which spends
	// watched outputs or pays to a watched address.
	RelevantTx struct {
		TxRecord *wtxmgr.TxRecord
		Block    *wtxmgr.BlockMeta // nil if unmined
	}

	// TxDropped is a notification that an unmined transaction left the
	// mempool without being mined, for example because it was replaced.
	TxDropped struct {
		Hash chainhash.Hash
	}

	// RescanFinished is a notification that a previous rescan request
	// has finished.
	RescanFinished struct {
		ID    uint64
		Block wtxmgr.BlockMeta
	}
)
