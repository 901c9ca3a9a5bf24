// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txauthor

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

// SelectionPolicy defines the order in which candidate outputs are
// considered during coin selection. Selection is greedy: candidates are
// added in policy order until the outputs and fee are covered.
type SelectionPolicy uint8

const (
	// SelectConfirmedFirst considers confirmed outputs before unmined
	// ones, each group in discovery order.
	SelectConfirmedFirst SelectionPolicy = iota

	// SelectInsertionOrder considers outputs in discovery order only.
	SelectInsertionOrder

	// SelectLargestFirst considers larger outputs first, ties broken by
	// discovery order.
	SelectLargestFirst
)

// String returns the flag name of the policy.
func (p SelectionPolicy) String() string {
	switch p {
	case SelectConfirmedFirst:
		return "confirmed-first"
	case SelectInsertionOrder:
		return "insertion-order"
	case SelectLargestFirst:
		return "largest-first"
	default:
		return fmt.Sprintf("SelectionPolicy(%d)", uint8(p))
	}
}

// ParseSelectionPolicy parses the flag name of a policy.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	for _, p := range []SelectionPolicy{
		SelectConfirmedFirst, SelectInsertionOrder, SelectLargestFirst,
	} {
		if p.String() == s {
			return p, nil
		}
	}

	return 0, fmt.Errorf("unknown selection policy %q", s)
}

// Order returns a copy of the candidates sorted by the policy.
func (p SelectionPolicy) Order(candidates []wtxmgr.Credit) []wtxmgr.Credit {
	ordered := append([]wtxmgr.Credit(nil), candidates...)

	var less func(a, b *wtxmgr.Credit) bool
	switch p {
	case SelectLargestFirst:
		less = func(a, b *wtxmgr.Credit) bool {
			if a.Amount != b.Amount {
				return a.Amount > b.Amount
			}
			return a.Sequence < b.Sequence
		}

	case SelectInsertionOrder:
		less = func(a, b *wtxmgr.Credit) bool {
			return a.Sequence < b.Sequence
		}

	default:
		less = func(a, b *wtxmgr.Credit) bool {
			if a.Confirmed() != b.Confirmed() {
				return a.Confirmed()
			}
			return a.Sequence < b.Sequence
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return less(&ordered[i], &ordered[j])
	})

	return ordered
}

// InputSourceError describes the failure to provide enough input value from
// unspent transaction outputs to meet a target amount.  A typed error is used
// so input sources can provide their own implementations describing the reason
// for the error, for example, due to spendable policies or locked coins rather
// than the wallet not having enough available input value.
type InputSourceError interface {
	error
	InputSourceError()
}

// txSelectionError is defined so that we can signal the missing
// amount to the calling software, so that one can easily create
// transactions which satisfy the fee requirements.
type txSelectionError struct {
	targetAmount btcutil.Amount
	txFee        btcutil.Amount
	availableAmt btcutil.Amount
}

func (txSelectionError) InputSourceError() {}

func (e txSelectionError) Error() string {
	return fmt.Sprintf("insufficient funds available to construct "+
		"transaction: amount: %v, minimum fee: %v, available amount: %v",
		e.targetAmount, e.txFee, e.availableAmt)
}

// Unwrap allows errors.Is(err, ErrInsufficientFunds).
func (txSelectionError) Unwrap() error {
	return ErrInsufficientFunds
}
