// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txrules

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func p2pkhScript(t *testing.T) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
		AddData(make([]byte, 20)).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	return script
}

// TestIsDustAmount checks the P2PKH dust boundary at the default relay fee.
func TestIsDustAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount btcutil.Amount
		dust   bool
	}{
		{0, true},
		{545, true},
		{546, false},
		{1e8, false},
	}

	for _, test := range tests {
		require.Equalf(t, test.dust,
			IsDustAmount(test.amount, 25, DefaultRelayFeePerKb),
			"amount %v", test.amount)
	}
}

// TestDustLimit checks the smallest non-dust P2PKH value at several relay
// fees.
func TestDustLimit(t *testing.T) {
	t.Parallel()

	require.Equal(t, btcutil.Amount(546), DustLimit(25, DefaultRelayFeePerKb))
	require.Equal(t, btcutil.Amount(5460), DustLimit(25, 10_000))
	require.Zero(t, DustLimit(25, 0))

	// Rounds up so IsDustAmount agrees at the boundary.
	require.Equal(t, btcutil.Amount(1), DustLimit(25, 1))
	require.False(t, IsDustAmount(1, 25, 1))
	require.True(t, IsDustAmount(0, 25, 1))
}

// TestCheckOutput covers the output policy checks.
func TestCheckOutput(t *testing.T) {
	t.Parallel()

	script := p2pkhScript(t)
	nullData, err := txscript.NullDataScript([]byte("memo"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		output *wire.TxOut
		err    error
	}{
		{"ok", wire.NewTxOut(1e6, script), nil},
		{"negative", wire.NewTxOut(-1, script), ErrAmountNegative},
		{"too large", wire.NewTxOut(btcutil.MaxSatoshi+1, script),
			ErrAmountExceedsMax},
		{"dust", wire.NewTxOut(100, script), ErrOutputIsDust},
		{"null data", wire.NewTxOut(0, nullData), nil},
		{"unspendable", wire.NewTxOut(1e6, []byte{txscript.OP_RETURN,
			txscript.OP_TRUE, txscript.OP_TRUE}), ErrOutputIsDust},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := CheckOutput(test.output, DefaultRelayFeePerKb)
			require.ErrorIs(t, err, test.err)
		})
	}
}

// TestFeeForSerializeSize checks fee rounding and clamping.
func TestFeeForSerializeSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, btcutil.Amount(18_700), FeeForSerializeSize(50_000, 374))
	require.Equal(t, btcutil.Amount(226), FeeForSerializeSize(1000, 226))

	// A positive rate never produces a zero fee.
	require.Equal(t, btcutil.Amount(1), FeeForSerializeSize(1, 10))
	require.Zero(t, FeeForSerializeSize(0, 10_000))
}
