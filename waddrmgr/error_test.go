// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestErrorCodeStringer tests the stringized output for the ErrorCode type.
func TestErrorCodeStringer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   ErrorCode
		want string
	}{
		{ErrKeyChain, "ErrKeyChain"},
		{ErrInvalidBranch, "ErrInvalidBranch"},
		{ErrAddressNotFound, "ErrAddressNotFound"},
		{ErrTooManyAddresses, "ErrTooManyAddresses"},
		{ErrAddressReserved, "ErrAddressReserved"},
		{ErrInvalidConfig, "ErrInvalidConfig"},
		{ErrInvalidSnapshot, "ErrInvalidSnapshot"},
		{0xffff, "Unknown ErrorCode (65535)"},
	}

	for _, test := range tests {
		require.Equal(t, test.want, test.in.String())
	}
}

// TestManagerError tests the error output for the ManagerError type.
func TestManagerError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   ManagerError
		want string
	}{
		{
			ManagerError{Description: "human-readable error"},
			"human-readable error",
		},
		{
			ManagerError{
				Description: "failed to derive key -- " +
					"branch 0, child 3",
				ErrorCode: ErrKeyChain,
				Err:       fmt.Errorf("underlying error"),
			},
			"failed to derive key -- branch 0, child 3: " +
				"underlying error",
		},
	}

	for _, test := range tests {
		require.Equal(t, test.want, test.in.Error())
	}
}

// TestIsError ensures coded errors are matched through wrapping.
func TestIsError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("issue address: %w",
		managerError(ErrTooManyAddresses, "exhausted", nil))

	require.True(t, IsError(err, ErrTooManyAddresses))
	require.False(t, IsError(err, ErrKeyChain))
	require.False(t, IsError(errors.New("plain"), ErrKeyChain))
}
