// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "errors"

var (
	// ErrLedgerClosed is returned by operations on a closed ledger.
	ErrLedgerClosed = errors.New("ledger is closed")

	// ErrUnknownAccount is returned when an account name is not
	// registered with the ledger.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrAccountExists is returned when registering an account name
	// twice.
	ErrAccountExists = errors.New("account already registered")

	// ErrInputUnavailable is returned when a caller-selected input is
	// not an unspent, unreserved output of a funding account.
	ErrInputUnavailable = errors.New("input not available for spending")

	// ErrBuildConflict is returned when every build attempt lost the
	// race for its inputs to a concurrent build.
	ErrBuildConflict = errors.New("inputs reserved by concurrent builds")

	// ErrSigning wraps failures of the signing backend.
	ErrSigning = errors.New("unable to sign transaction")

	// ErrBroadcast wraps failures to submit a transaction to the chain
	// service.
	ErrBroadcast = errors.New("unable to broadcast transaction")

	// ErrTxDropped is returned by Wait when the transaction left the
	// mempool without being mined.
	ErrTxDropped = errors.New("transaction dropped")
)
