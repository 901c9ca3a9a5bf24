// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific ManagerError.
const (
	// ErrKeyChain indicates an error with the key chain typically either
	// due to the inability to create an extended key or deriving a child
	// extended key. When this error code is set, the Err field of the
	// ManagerError will be set to the underlying error.
	ErrKeyChain ErrorCode = iota

	// ErrInvalidBranch indicates a branch other than the receiving or
	// change branch was requested.
	ErrInvalidBranch

	// ErrAddressNotFound indicates that the requested address is not known
	// to the account manager.
	ErrAddressNotFound

	// ErrTooManyAddresses indicates that more than the maximum allowed
	// number of addresses per branch have been requested. This is a
	// configuration error and is never retried.
	ErrTooManyAddresses

	// ErrAddressReserved indicates an attempt to reserve an address that
	// is already held by another in-flight reservation.
	ErrAddressReserved

	// ErrInvalidConfig indicates the manager was created with an unusable
	// configuration, such as a zero gap limit.
	ErrInvalidConfig

	// ErrInvalidSnapshot indicates a snapshot could not be restored or
	// decoded.
	ErrInvalidSnapshot
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrKeyChain:         "ErrKeyChain",
	ErrInvalidBranch:    "ErrInvalidBranch",
	ErrAddressNotFound:  "ErrAddressNotFound",
	ErrTooManyAddresses: "ErrTooManyAddresses",
	ErrAddressReserved:  "ErrAddressReserved",
	ErrInvalidConfig:    "ErrInvalidConfig",
	ErrInvalidSnapshot:  "ErrInvalidSnapshot",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// ManagerError provides a single type for errors that can happen during
// address manager operation.
type ManagerError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e ManagerError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e ManagerError) Unwrap() error {
	return e.Err
}

// managerError creates a ManagerError given a set of arguments.
func managerError(c ErrorCode, desc string, err error) ManagerError {
	return ManagerError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether the error is a ManagerError with a matching error
// code.
func IsError(err error, code ErrorCode) bool {
	var merr ManagerError
	return errors.As(err, &merr) && merr.ErrorCode == code
}
