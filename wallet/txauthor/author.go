// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txauthor provides transaction creation code for wallets.
package txauthor

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shauser/lbry-sdk/keychain"
	"github.com/shauser/lbry-sdk/wallet/txrules"
	"github.com/shauser/lbry-sdk/wallet/txsizes"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

var (
	// ErrInsufficientFunds is matched by every InputSourceError returned
	// by NewUnsignedTransaction.
	ErrInsufficientFunds = errors.New("insufficient funds available to " +
		"construct transaction")

	// ErrNoTxOutputs is returned when the transaction would have neither
	// outputs nor a change output.
	ErrNoTxOutputs = errors.New("transaction has no outputs")

	// ErrDuplicateInput is returned when a caller-selected input is
	// listed twice.
	ErrDuplicateInput = errors.New("duplicate input")
)

// Policy holds the knobs of transaction construction other than the fee
// rate.
type Policy struct {
	// Selection orders candidate outputs during coin selection.
	Selection SelectionPolicy

	// SizeModel estimates the signed size of the transaction.
	SizeModel txsizes.SizeModel

	// DustRelayFeePerKb is the relay fee used to decide whether a change
	// amount is dust.
	DustRelayFeePerKb btcutil.Amount
}

// DefaultPolicy returns the default construction policy.
func DefaultPolicy() Policy {
	return Policy{
		Selection:         SelectConfirmedFirst,
		SizeModel:         txsizes.DefaultSizeModel,
		DustRelayFeePerKb: txrules.DefaultRelayFeePerKb,
	}
}

// ChangeSource provides change output scripts for transaction creation.
type ChangeSource struct {
	// NewScript is a closure that produces the change destination. It is
	// only invoked when a change output is added.
	NewScript func() (Script, error)
}

// AuthoredTx holds the state of a newly-created transaction and the change
// output (if one was added).
type AuthoredTx struct {
	Tx              *wire.MsgTx
	PrevScripts     [][]byte
	PrevInputValues []btcutil.Amount
	TotalInput      btcutil.Amount
	ChangeIndex     int // negative if no change

	// Inputs are the credits spent, in input order.
	Inputs []wtxmgr.Credit

	// Outputs mirror Tx.TxOut, with the change output flagged.
	Outputs []*Output

	// Fee is the amount paid to miners.
	Fee btcutil.Amount
}

// inputState holds the current state of the transaction including all inputs
// which were selected so far.
type inputState struct {
	// feeRatePerKb is the feerate which is used for fee calculation.
	feeRatePerKb btcutil.Amount

	policy Policy

	// targetAmount is the amount we want to fund with the transaction
	// not include the change.
	targetAmount btcutil.Amount

	// numOutputs is the number of outputs not counting change.
	numOutputs int

	// inputTotal is the total value of all selected inputs.
	inputTotal btcutil.Amount

	inputs []wtxmgr.Credit

	// The fields below are set by evaluate.
	txFee     btcutil.Amount
	change    btcutil.Amount
	addChange bool
}

// add appends inputs to the selection.
func (t *inputState) add(inputs ...wtxmgr.Credit) {
	for _, input := range inputs {
		t.inputs = append(t.inputs, input)
		t.inputTotal += input.Amount
	}
}

// fee returns the fee of the current selection with or without a change
// output.
func (t *inputState) fee(change bool) btcutil.Amount {
	size := t.policy.SizeModel.EstimateWithChange(
		len(t.inputs), t.numOutputs, change,
	)
	return txrules.FeeForSerializeSize(t.feeRatePerKb, size)
}

// evaluate decides whether the current selection funds the transaction. The
// size of a change output is reserved up front: if the surplus after paying
// the fee of a transaction with change is above dust, a change output is
// used. Otherwise the transaction must be fundable without change and the
// surplus goes to the fee.
func (t *inputState) evaluate() bool {
	if len(t.inputs) == 0 {
		return false
	}

	t.txFee = t.fee(true)
	t.change = t.inputTotal - t.targetAmount - t.txFee
	if t.change > 0 && !txrules.IsDustAmount(
		t.change, txsizes.P2PKHPkScriptSize, t.policy.DustRelayFeePerKb,
	) {

		t.addChange = true
		return true
	}

	t.addChange = false
	t.change = 0
	t.txFee = t.fee(false)
	if t.inputTotal < t.targetAmount+t.txFee {
		return false
	}

	// Without change every output must come from the caller.
	if t.numOutputs == 0 {
		return false
	}

	t.txFee = t.inputTotal - t.targetAmount
	return true
}

// NewUnsignedTransaction creates an unsigned transaction paying to zero or
// more outputs.
//
// When inputs is non-empty exactly those outputs are spent. Otherwise
// inputs are selected greedily from candidates in the order given by the
// policy until the outputs plus fee are covered. The selection loop visits
// each candidate at most once.
//
// The fee is derived from the estimated signed size of the transaction.
// When the surplus after the fee exceeds the dust limit, one change output
// paying the change source is appended after the given outputs. Otherwise
// the surplus is folded into the fee.
//
// If the inputs are unable to provide enough value to pay for every output
// and the fee, an InputSourceError matching ErrInsufficientFunds is
// returned.
func NewUnsignedTransaction(outputs []*Output, inputs []Input,
	candidates []wtxmgr.Credit, feeRatePerKb btcutil.Amount,
	policy Policy, changeSource *ChangeSource) (*AuthoredTx, error) {

	txOuts := make([]*wire.TxOut, 0, len(outputs)+1)
	var targetAmount btcutil.Amount
	for i, output := range outputs {
		if output.Amount <= 0 {
			return nil, fmt.Errorf("%w: output %d pays %v",
				ErrInvalidOutputAmount, i, output.Amount)
		}

		txOut, err := output.TxOut()
		if err != nil {
			return nil, err
		}
		err = txrules.CheckOutput(txOut, policy.DustRelayFeePerKb)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}

		txOuts = append(txOuts, txOut)
		targetAmount += output.Amount
	}

	state := inputState{
		feeRatePerKb: feeRatePerKb,
		policy:       policy,
		targetAmount: targetAmount,
		numOutputs:   len(outputs),
	}

	if len(inputs) > 0 {
		seen := make(map[wire.OutPoint]struct{}, len(inputs))
		for _, input := range inputs {
			c := input.Credit
			if _, ok := seen[c.OutPoint]; ok {
				return nil, fmt.Errorf("%w: %v",
					ErrDuplicateInput, c.OutPoint)
			}
			seen[c.OutPoint] = struct{}{}

			if !spendable(&c) {
				return nil, fmt.Errorf("%w: input %v",
					ErrUnsupportedScript, c.OutPoint)
			}
			state.add(c)
		}
		state.evaluate()
	} else {
		if len(outputs) == 0 {
			return nil, ErrNoTxOutputs
		}

		ordered := policy.Selection.Order(candidates)
		maxIterations := len(ordered) + 1
		for i := 0; i < maxIterations && !state.evaluate(); i++ {
			if i == len(ordered) {
				break
			}
			if !spendable(&ordered[i]) {
				continue
			}
			state.add(ordered[i])
		}
	}

	if !state.evaluate() {
		if len(outputs) == 0 &&
			state.inputTotal >= state.targetAmount+state.fee(false) {

			// Enough to pay the fee but the change would be
			// dust, leaving nothing to create.
			return nil, ErrNoTxOutputs
		}

		return nil, txSelectionError{
			targetAmount: state.targetAmount,
			txFee:        state.txFee,
			availableAmt: state.inputTotal,
		}
	}

	numberInputs := len(state.inputs)
	txIn := make([]*wire.TxIn, 0, numberInputs)
	inputValues := make([]btcutil.Amount, 0, numberInputs)
	scripts := make([][]byte, 0, numberInputs)
	for i := range state.inputs {
		input := &state.inputs[i]
		txIn = append(txIn, wire.NewTxIn(&input.OutPoint, nil, nil))
		inputValues = append(inputValues, input.Amount)
		scripts = append(scripts, input.PkScript)
	}

	authored := &AuthoredTx{
		Tx: &wire.MsgTx{
			Version:  wire.TxVersion,
			TxIn:     txIn,
			TxOut:    txOuts,
			LockTime: 0,
		},
		PrevScripts:     scripts,
		PrevInputValues: inputValues,
		TotalInput:      state.inputTotal,
		ChangeIndex:     -1,
		Inputs:          state.inputs,
		Outputs:         append([]*Output(nil), outputs...),
		Fee:             state.txFee,
	}

	if state.addChange {
		if changeSource == nil || changeSource.NewScript == nil {
			return nil, errors.New("change needed but no change " +
				"source given")
		}

		script, err := changeSource.NewScript()
		if err != nil {
			return nil, err
		}
		change := &Output{
			Amount:   state.change,
			Script:   script,
			IsChange: true,
		}
		txOut, err := change.TxOut()
		if err != nil {
			return nil, err
		}

		authored.ChangeIndex = len(authored.Tx.TxOut)
		authored.Tx.TxOut = append(authored.Tx.TxOut, txOut)
		authored.Outputs = append(authored.Outputs, change)
	}

	return authored, nil
}

// ChangeAmount returns the value of the change output, or zero.
func (tx *AuthoredTx) ChangeAmount() btcutil.Amount {
	if tx.ChangeIndex < 0 {
		return 0
	}
	return btcutil.Amount(tx.Tx.TxOut[tx.ChangeIndex].Value)
}

// Sign adds input signatures using the signer. Each input is signed with the
// key at the branch and index of the credit it spends.
func (tx *AuthoredTx) Sign(signer keychain.Signer) error {
	descs := make([]*keychain.SignDescriptor, 0, len(tx.Inputs))
	for i, c := range tx.Inputs {
		descs = append(descs, &keychain.SignDescriptor{
			KeyDesc: keychain.KeyDescriptor{
				KeyLocator: keychain.KeyLocator{
					Branch: uint32(c.Branch),
					Index:  c.Index,
				},
			},
			PkScript:   c.PkScript,
			Value:      c.Amount,
			InputIndex: i,
		})
	}

	return signer.SignTransaction(tx.Tx, descs)
}

// Verify executes the script of every input against the output it spends.
func (tx *AuthoredTx) Verify() error {
	fetcher, err := TXPrevOutFetcher(tx.Tx, tx.PrevScripts,
		tx.PrevInputValues)
	if err != nil {
		return err
	}
	sigHashes := txscript.NewTxSigHashes(tx.Tx, fetcher)

	for i := range tx.Tx.TxIn {
		vm, err := txscript.NewEngine(
			tx.PrevScripts[i], tx.Tx, i,
			txscript.StandardVerifyFlags, nil, sigHashes,
			int64(tx.PrevInputValues[i]), fetcher,
		)
		if err != nil {
			return fmt.Errorf("cannot create script engine: %w", err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("cannot validate transaction input "+
				"%d: %w", i, err)
		}
	}

	return nil
}

// TXPrevOutFetcher creates a txscript.PrevOutFetcher from a given slice of
// previous pk scripts and input values.
func TXPrevOutFetcher(tx *wire.MsgTx, prevPkScripts [][]byte,
	inputValues []btcutil.Amount) (*txscript.MultiPrevOutFetcher, error) {

	if len(tx.TxIn) != len(prevPkScripts) {
		return nil, errors.New("tx.TxIn and prevPkScripts slices " +
			"must have equal length")
	}
	if len(tx.TxIn) != len(inputValues) {
		return nil, errors.New("tx.TxIn and inputValues slices " +
			"must have equal length")
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txin := range tx.TxIn {
		fetcher.AddPrevOut(txin.PreviousOutPoint, &wire.TxOut{
			Value:    int64(inputValues[idx]),
			PkScript: prevPkScripts[idx],
		})
	}

	return fetcher, nil
}
