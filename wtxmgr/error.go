// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific TxStoreError.
const (
	// ErrInput indicates an error in the input to a function, such as a
	// negative credit amount.
	ErrInput ErrorCode = iota

	// ErrTxRecordNotFound indicates that the requested tx record is not
	// known to the tx store.
	ErrTxRecordNotFound

	// ErrDuplicateCredit indicates a credit for an outpoint that is
	// already recorded with different contents. Identical duplicates are
	// not errors.
	ErrDuplicateCredit

	// ErrCreditNotFound indicates a spend or reservation of an outpoint
	// that is not recorded. This is expected under races and reorgs.
	ErrCreditNotFound

	// ErrAlreadySpent indicates a spend or reservation of an outpoint
	// that is already spent by an unmined transaction.
	ErrAlreadySpent

	// ErrDoubleSpend indicates a spend of an outpoint already spent by a
	// different mined transaction. It signals that local state has
	// diverged from the chain.
	ErrDoubleSpend

	// ErrOutputReserved indicates a reservation of an outpoint held by
	// another reservation.
	ErrOutputReserved

	// ErrTxConfirmed indicates an attempt to remove a mined transaction
	// as if it were unmined.
	ErrTxConfirmed

	// ErrInvalidSnapshot indicates a snapshot could not be decoded or
	// restored.
	ErrInvalidSnapshot
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInput:            "ErrInput",
	ErrTxRecordNotFound: "ErrTxRecordNotFound",
	ErrDuplicateCredit:  "ErrDuplicateCredit",
	ErrCreditNotFound:   "ErrCreditNotFound",
	ErrAlreadySpent:     "ErrAlreadySpent",
	ErrDoubleSpend:      "ErrDoubleSpend",
	ErrOutputReserved:   "ErrOutputReserved",
	ErrTxConfirmed:      "ErrTxConfirmed",
	ErrInvalidSnapshot:  "ErrInvalidSnapshot",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// TxStoreError provides a single type for errors that can happen during tx
// store operation. It is similar to waddrmgr.ManagerError.
type TxStoreError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxStoreError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e TxStoreError) Unwrap() error {
	return e.Err
}

// txStoreError creates a TxStoreError given a set of arguments.
func txStoreError(c ErrorCode, desc string, err error) TxStoreError {
	return TxStoreError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err is a TxStoreError with a matching error code.
func IsError(err error, code ErrorCode) bool {
	var serr TxStoreError
	return errors.As(err, &serr) && serr.ErrorCode == code
}

// IsBenign returns whether err describes an expected miss that callers
// should log and absorb: a duplicate credit, or a spend of an unknown or
// already spent outpoint.
func IsBenign(err error) bool {
	return IsError(err, ErrDuplicateCredit) ||
		IsError(err, ErrCreditNotFound) ||
		IsError(err, ErrAlreadySpent)
}
