// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txrules

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shauser/lbry-sdk/wallet/txsizes"
)

// DefaultRelayFeePerKb is the default minimum relay fee policy for a mempool.
const DefaultRelayFeePerKb btcutil.Amount = 1e3

// Output policy violations.
var (
	ErrAmountNegative   = errors.New("transaction output amount is negative")
	ErrAmountExceedsMax = errors.New("transaction output amount exceeds maximum value")
	ErrOutputIsDust     = errors.New("transaction output is dust")
)

// DustLimit returns the smallest value an output with a script of the given
// size may carry without being dust. The cost of an output is its own size
// plus the size of a compressed P2PKH input spending it, and an output is
// dust when its value is below three times the relay fee for that cost.
func DustLimit(scriptSize int, relayFeePerKb btcutil.Amount) btcutil.Amount {
	totalSize := 8 + wire.VarIntSerializeSize(uint64(scriptSize)) +
		scriptSize + txsizes.RedeemP2PKHInputSize

	cost := int64(relayFeePerKb) * 3 * int64(totalSize)
	return btcutil.Amount((cost + 999) / 1000)
}

// IsDustAmount reports whether an output of the given value and script size
// would be rejected as dust by mempools relaying at relayFeePerKb.
func IsDustAmount(amount btcutil.Amount, scriptSize int,
	relayFeePerKb btcutil.Amount) bool {

	return amount < DustLimit(scriptSize, relayFeePerKb)
}

// CheckOutput checks the value of a payment output against the consensus
// range and the dust policy. Outputs carrying only data are exempt from the
// dust check while any other unspendable script is always dust.
func CheckOutput(output *wire.TxOut, relayFeePerKb btcutil.Amount) error {
	amount := btcutil.Amount(output.Value)

	switch {
	case output.Value < 0:
		return fmt.Errorf("%w: %v", ErrAmountNegative, amount)

	case output.Value > btcutil.MaxSatoshi:
		return fmt.Errorf("%w: %v", ErrAmountExceedsMax, amount)

	case txscript.GetScriptClass(output.PkScript) == txscript.NullDataTy:
		return nil

	case txscript.IsUnspendable(output.PkScript),
		IsDustAmount(amount, len(output.PkScript), relayFeePerKb):

		return fmt.Errorf("%w: %v below %v", ErrOutputIsDust, amount,
			DustLimit(len(output.PkScript), relayFeePerKb))
	}

	return nil
}

// FeeForSerializeSize returns the fee paid at relayFeePerKb by a transaction
// of the given serialize size. A positive rate never yields a zero fee.
func FeeForSerializeSize(relayFeePerKb btcutil.Amount,
	txSerializeSize int) btcutil.Amount {

	fee := relayFeePerKb * btcutil.Amount(txSerializeSize) / 1000

	switch {
	case fee == 0 && relayFeePerKb > 0:
		return relayFeePerKb

	case fee < 0 || fee > btcutil.MaxSatoshi:
		return btcutil.MaxSatoshi
	}

	return fee
}
