// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsizes

import "fmt"

// Script and input/output size estimates for compressed P2PKH.
const (
	// RedeemP2PKHSigScriptSize is the largest serialize size of a
	// signature script redeeming a compressed P2PKH output with a low-S
	// signature:
	//
	//   - OP_DATA_72
	//   - 71 bytes DER signature + 1 byte sighash
	//   - OP_DATA_33
	//   - 33 bytes serialized compressed pubkey
	RedeemP2PKHSigScriptSize = 1 + 72 + 1 + 33

	// P2PKHPkScriptSize is the size of a transaction output script that
	// pays to a compressed pubkey hash:
	//
	//   - OP_DUP
	//   - OP_HASH160
	//   - OP_DATA_20
	//   - 20 bytes pubkey hash
	//   - OP_EQUALVERIFY
	//   - OP_CHECKSIG
	P2PKHPkScriptSize = 1 + 1 + 1 + 20 + 1 + 1

	// RedeemP2PKHInputSize is the largest serialize size of a
	// transaction input redeeming a compressed P2PKH output:
	//
	//   - 32 bytes previous tx
	//   - 4 bytes output index
	//   - 1 byte compact int encoding value 107
	//   - 107 bytes signature script
	//   - 4 bytes sequence
	RedeemP2PKHInputSize = 32 + 4 + 1 + RedeemP2PKHSigScriptSize + 4

	// P2PKHOutputSize is the serialize size of a transaction output with
	// a P2PKH output script:
	//
	//   - 8 bytes output value
	//   - 1 byte compact int encoding value 25
	//   - 25 bytes P2PKH output script
	P2PKHOutputSize = 8 + 1 + P2PKHPkScriptSize

	// BaseTxSize is the size of a transaction without inputs or outputs,
	// assuming fewer than 253 of each:
	//
	//   - 4 bytes version
	//   - 1 byte compact int input count
	//   - 1 byte compact int output count
	//   - 4 bytes lock time
	BaseTxSize = 4 + 1 + 1 + 4
)

// SizeModel is a linear transaction size estimate: a fixed base plus a fixed
// cost per input and per output.
type SizeModel struct {
	// Base is the size of a transaction with no inputs or outputs.
	Base int

	// PerInput is the worst case size of one input.
	PerInput int

	// PerOutput is the size of one output.
	PerOutput int
}

// DefaultSizeModel is the model for P2PKH spends paying P2PKH outputs.
var DefaultSizeModel = SizeModel{
	Base:      BaseTxSize,
	PerInput:  RedeemP2PKHInputSize,
	PerOutput: P2PKHOutputSize,
}

// Estimate returns the estimated size of a signed transaction with the given
// number of inputs and outputs.
func (m SizeModel) Estimate(numInputs, numOutputs int) int {
	return m.Base + numInputs*m.PerInput + numOutputs*m.PerOutput
}

// Validate checks that the model describes a non-empty transaction layout.
func (m SizeModel) Validate() error {
	if m.Base < 0 || m.PerInput <= 0 || m.PerOutput <= 0 {
		return fmt.Errorf("invalid size model base=%d input=%d "+
			"output=%d", m.Base, m.PerInput, m.PerOutput)
	}
	return nil
}

// EstimateWithChange is Estimate with room reserved for one change output
// when addChangeOutput is set.
func (m SizeModel) EstimateWithChange(numInputs, numOutputs int,
	addChangeOutput bool) int {

	if addChangeOutput {
		numOutputs++
	}
	return m.Estimate(numInputs, numOutputs)
}
