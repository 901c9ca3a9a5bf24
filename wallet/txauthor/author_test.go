// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txauthor

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shauser/lbry-sdk/keychain"
	"github.com/shauser/lbry-sdk/wallet/txrules"
	"github.com/shauser/lbry-sdk/wtxmgr"
	"github.com/stretchr/testify/require"
)

const (
	coin        = btcutil.Amount(1e8)
	testFeeRate = btcutil.Amount(50_000)
)

var (
	testHash   = bytes.Repeat([]byte{0x11}, 20)
	changeHash = bytes.Repeat([]byte{0x22}, 20)
)

func p2pkhScript(t *testing.T, hash []byte) []byte {
	t.Helper()

	script, err := NewPubKeyHashScript(hash)
	require.NoError(t, err)
	pkScript, err := script.PkScript()
	require.NoError(t, err)

	return pkScript
}

// makeCredit returns a P2PKH credit with the given sequence.
func makeCredit(t *testing.T, seq uint64, amount btcutil.Amount,
	confirmed bool) wtxmgr.Credit {

	t.Helper()

	c := wtxmgr.Credit{
		OutPoint: wire.OutPoint{
			Hash: chainhash.Hash{byte(seq), 0x01},
		},
		Account:  "default",
		Amount:   amount,
		PkScript: p2pkhScript(t, testHash),
		Sequence: seq,
	}
	if confirmed {
		c.Height = fn.Some(int32(100))
	}

	return c
}

func payTo(t *testing.T, amount btcutil.Amount) *Output {
	t.Helper()

	out, err := PayToPubKeyHash(amount, testHash)
	require.NoError(t, err)

	return out
}

func testChangeSource(t *testing.T) *ChangeSource {
	t.Helper()

	return &ChangeSource{
		NewScript: func() (Script, error) {
			return NewPubKeyHashScript(changeHash)
		},
	}
}

func feeFor(inputs, outputs int) btcutil.Amount {
	size := DefaultPolicy().SizeModel.Estimate(inputs, outputs)
	return testFeeRate * btcutil.Amount(size) / 1000
}

// checkConservation asserts inputs = outputs + fee with a non-negative fee.
func checkConservation(t *testing.T, tx *AuthoredTx) {
	t.Helper()

	var outputs btcutil.Amount
	for _, out := range tx.Tx.TxOut {
		outputs += btcutil.Amount(out.Value)
	}

	var inputs btcutil.Amount
	for _, c := range tx.Inputs {
		inputs += c.Amount
	}

	require.Equal(t, tx.TotalInput, inputs, spew.Sdump(tx))
	require.Equal(t, inputs, outputs+tx.Fee, spew.Sdump(tx))
	require.GreaterOrEqual(t, int64(tx.Fee), int64(0))
	require.Len(t, tx.Outputs, len(tx.Tx.TxOut))
}

// TestNewUnsignedTransactionChange covers the change and dust decisions.
func TestNewUnsignedTransactionChange(t *testing.T) {
	t.Parallel()

	const target = btcutil.Amount(1_000_000)

	tests := []struct {
		name       string
		input      btcutil.Amount
		wantChange btcutil.Amount
		wantFee    btcutil.Amount
	}{
		{
			name:       "change above dust",
			input:      target + feeFor(1, 2) + 546,
			wantChange: 546,
			wantFee:    feeFor(1, 2),
		},
		{
			name:    "change at dust folds into fee",
			input:   target + feeFor(1, 2) + 545,
			wantFee: feeFor(1, 2) + 545,
		},
		{
			name:    "no room for change",
			input:   target + feeFor(1, 1) + 100,
			wantFee: feeFor(1, 1) + 100,
		},
		{
			name:    "exact",
			input:   target + feeFor(1, 1),
			wantFee: feeFor(1, 1),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			tx, err := NewUnsignedTransaction(
				[]*Output{payTo(t, target)}, nil,
				[]wtxmgr.Credit{
					makeCredit(t, 1, test.input, true),
				},
				testFeeRate, DefaultPolicy(),
				testChangeSource(t),
			)
			require.NoError(t, err)
			checkConservation(t, tx)

			require.Equal(t, test.wantFee, tx.Fee)
			require.Equal(t, test.wantChange, tx.ChangeAmount())
			if test.wantChange == 0 {
				require.Equal(t, -1, tx.ChangeIndex)
				require.Len(t, tx.Tx.TxOut, 1)
				return
			}

			require.Equal(t, 1, tx.ChangeIndex)
			require.True(t, tx.Outputs[1].IsChange)
			require.False(t, tx.Outputs[0].IsChange)
			require.Equal(t, p2pkhScript(t, changeHash),
				tx.Tx.TxOut[1].PkScript)
		})
	}

	// One input short of the fee.
	_, err := NewUnsignedTransaction(
		[]*Output{payTo(t, target)}, nil,
		[]wtxmgr.Credit{makeCredit(t, 1, target+feeFor(1, 1)-1, true)},
		testFeeRate, DefaultPolicy(), testChangeSource(t),
	)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

// TestSelectionPolicies checks which candidates each policy selects.
func TestSelectionPolicies(t *testing.T) {
	t.Parallel()

	candidates := []wtxmgr.Credit{
		makeCredit(t, 1, 5*coin, false),
		makeCredit(t, 2, coin, true),
		makeCredit(t, 3, coin, true),
		makeCredit(t, 4, 3*coin, true),
	}

	tests := []struct {
		policy SelectionPolicy
		want   []uint64
	}{
		{SelectConfirmedFirst, []uint64{2, 3}},
		{SelectInsertionOrder, []uint64{1}},
		{SelectLargestFirst, []uint64{1}},
	}

	for _, test := range tests {
		t.Run(test.policy.String(), func(t *testing.T) {
			t.Parallel()

			policy := DefaultPolicy()
			policy.Selection = test.policy

			tx, err := NewUnsignedTransaction(
				[]*Output{payTo(t, coin+coin/2)}, nil,
				candidates, testFeeRate, policy,
				testChangeSource(t),
			)
			require.NoError(t, err)
			checkConservation(t, tx)

			var got []uint64
			for _, c := range tx.Inputs {
				got = append(got, c.Sequence)
			}
			require.Equal(t, test.want, got)
		})
	}

	ordered := SelectLargestFirst.Order(candidates)
	require.Equal(t, uint64(1), ordered[0].Sequence)
	require.Equal(t, uint64(4), ordered[1].Sequence)
	require.Equal(t, uint64(2), ordered[2].Sequence)

	// Ordering never mutates the caller's slice.
	require.Equal(t, uint64(1), candidates[0].Sequence)
}

// TestSelectFundsTwoOfThree mirrors a payment of 2 coins funded by 1.1 coin
// outputs: two inputs, the payment first and change last.
func TestSelectFundsTwoOfThree(t *testing.T) {
	t.Parallel()

	amount := btcutil.Amount(110_000_000)
	candidates := []wtxmgr.Credit{
		makeCredit(t, 1, amount, true),
		makeCredit(t, 2, amount, true),
		makeCredit(t, 3, amount, true),
	}

	tx, err := NewUnsignedTransaction(
		[]*Output{payTo(t, 2*coin)}, nil, candidates, testFeeRate,
		DefaultPolicy(), testChangeSource(t),
	)
	require.NoError(t, err)
	checkConservation(t, tx)

	require.Len(t, tx.Inputs, 2)
	require.Equal(t, feeFor(2, 2), tx.Fee)
	require.Equal(t, btcutil.Amount(18_700), tx.Fee)
	require.Equal(t, 2*amount-2*coin-tx.Fee, tx.ChangeAmount())
	require.Equal(t, int64(2*coin), tx.Tx.TxOut[0].Value)
	require.Equal(t, 1, tx.ChangeIndex)

	// Not enough across all candidates.
	_, err = NewUnsignedTransaction(
		[]*Output{payTo(t, 4*coin)}, nil, candidates, testFeeRate,
		DefaultPolicy(), testChangeSource(t),
	)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var inputErr InputSourceError
	require.True(t, errors.As(err, &inputErr))
}

// TestSpendSelectedInput spends a caller-selected output without explicit
// outputs, producing a single change output.
func TestSpendSelectedInput(t *testing.T) {
	t.Parallel()

	input := makeCredit(t, 7, 110_000_000, true)
	other := makeCredit(t, 8, 500*coin, true)

	tx, err := NewUnsignedTransaction(
		nil, []Input{Spend(input)}, []wtxmgr.Credit{other},
		testFeeRate, DefaultPolicy(), testChangeSource(t),
	)
	require.NoError(t, err)
	checkConservation(t, tx)

	require.Len(t, tx.Tx.TxIn, 1)
	require.Equal(t, input.OutPoint, tx.Tx.TxIn[0].PreviousOutPoint)
	require.Equal(t, 0, tx.ChangeIndex)
	require.True(t, tx.Outputs[0].IsChange)
	require.Equal(t, input.Amount-feeFor(1, 1), tx.ChangeAmount())
}

// TestNewUnsignedTransactionErrors covers caller errors.
func TestNewUnsignedTransactionErrors(t *testing.T) {
	t.Parallel()

	funds := []wtxmgr.Credit{makeCredit(t, 1, 10*coin, true)}
	dust := makeCredit(t, 2, 10_000, true)
	foreign := makeCredit(t, 3, coin, true)
	foreign.PkScript = []byte{0x51}

	tests := []struct {
		name    string
		outputs []*Output
		inputs  []Input
		err     error
	}{
		{
			name:    "zero output",
			outputs: []*Output{payTo(t, 0)},
			err:     ErrInvalidOutputAmount,
		},
		{
			name:    "negative output",
			outputs: []*Output{payTo(t, coin), payTo(t, -5)},
			err:     ErrInvalidOutputAmount,
		},
		{
			name:    "dust output",
			outputs: []*Output{payTo(t, coin), payTo(t, 545)},
			err:     txrules.ErrOutputIsDust,
		},
		{
			name:    "smallest standard output",
			outputs: []*Output{payTo(t, 546)},
		},
		{
			name: "nothing to create",
			err:  ErrNoTxOutputs,
		},
		{
			name:   "dust change only",
			inputs: []Input{Spend(dust)},
			err:    ErrNoTxOutputs,
		},
		{
			name:    "duplicate input",
			outputs: []*Output{payTo(t, coin)},
			inputs:  []Input{Spend(funds[0]), Spend(funds[0])},
			err:     ErrDuplicateInput,
		},
		{
			name:    "unsupported input script",
			outputs: []*Output{payTo(t, coin/2)},
			inputs:  []Input{Spend(foreign)},
			err:     ErrUnsupportedScript,
		},
		{
			name:    "manual inputs too small",
			outputs: []*Output{payTo(t, 2*coin)},
			inputs:  []Input{Spend(makeCredit(t, 4, coin, true))},
			err:     ErrInsufficientFunds,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewUnsignedTransaction(
				test.outputs, test.inputs, funds, testFeeRate,
				DefaultPolicy(), testChangeSource(t),
			)
			require.ErrorIs(t, err, test.err)
		})
	}

	_, err := PayToPubKeyHash(coin, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidPubKeyHash)
}

// TestConservation checks inputs = outputs + fee across many targets.
func TestConservation(t *testing.T) {
	t.Parallel()

	var candidates []wtxmgr.Credit
	for i := uint64(1); i <= 12; i++ {
		candidates = append(candidates, makeCredit(
			t, i, btcutil.Amount(i)*7_777_777, i%3 != 0,
		))
	}

	for target := btcutil.Amount(1_000); target < 5*coin; target *= 3 {
		for _, policy := range []SelectionPolicy{
			SelectConfirmedFirst, SelectInsertionOrder,
			SelectLargestFirst,
		} {
			p := DefaultPolicy()
			p.Selection = policy

			tx, err := NewUnsignedTransaction(
				[]*Output{payTo(t, target)}, nil, candidates,
				testFeeRate, p, testChangeSource(t),
			)
			require.NoError(t, err)
			checkConservation(t, tx)
			require.GreaterOrEqual(t, int64(tx.Fee),
				int64(feeFor(len(tx.Inputs), len(tx.Outputs))))
		}
	}
}

// TestSignAndVerify signs an authored transaction with an HD key ring and
// runs the scripts.
func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	ring, err := keychain.NewHDKeyRing(
		bytes.Repeat([]byte{0x07}, 32), &chaincfg.RegressionNetParams,
		1, 0,
	)
	require.NoError(t, err)

	var candidates []wtxmgr.Credit
	for i := uint32(0); i < 3; i++ {
		loc := keychain.KeyLocator{Branch: i % 2, Index: i}
		desc, err := ring.DeriveKey(loc)
		require.NoError(t, err)

		c := makeCredit(t, uint64(i+1), coin, true)
		c.Branch = 0
		if loc.Branch == 1 {
			c.Branch = 1
		}
		c.Index = loc.Index
		c.PkScript = p2pkhScript(t, desc.PubKeyHash())
		candidates = append(candidates, c)
	}

	tx, err := NewUnsignedTransaction(
		[]*Output{payTo(t, 2*coin+coin/2)}, nil, candidates,
		testFeeRate, DefaultPolicy(), testChangeSource(t),
	)
	require.NoError(t, err)
	require.Len(t, tx.Inputs, 3)

	require.Error(t, tx.Verify())
	require.NoError(t, tx.Sign(ring))
	require.NoError(t, tx.Verify())

	// The estimate never undercounts the signed size.
	require.LessOrEqual(t, tx.Tx.SerializeSize(),
		DefaultPolicy().SizeModel.Estimate(len(tx.Tx.TxIn),
			len(tx.Tx.TxOut)))
}

// TestParseSelectionPolicy round trips the policy names.
func TestParseSelectionPolicy(t *testing.T) {
	t.Parallel()

	for _, p := range []SelectionPolicy{
		SelectConfirmedFirst, SelectInsertionOrder, SelectLargestFirst,
	} {
		parsed, err := ParseSelectionPolicy(p.String())
		require.NoError(t, err)
		require.Equal(t, p, parsed)
	}

	_, err := ParseSelectionPolicy("random")
	require.Error(t, err)
}
