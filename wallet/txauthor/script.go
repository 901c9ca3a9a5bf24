// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txauthor

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

var (
	// ErrInvalidOutputAmount is returned for outputs paying a zero or
	// negative amount.
	ErrInvalidOutputAmount = errors.New("output amount must be positive")

	// ErrInvalidPubKeyHash is returned when a pubkey hash is not 20
	// bytes long.
	ErrInvalidPubKeyHash = errors.New("pubkey hash must be 20 bytes")

	// ErrUnsupportedScript is returned when asked to spend an output
	// whose script is not pay-to-pubkey-hash.
	ErrUnsupportedScript = errors.New("unsupported script kind")
)

// Script is an output script kind. The set of kinds is closed; the only
// kind currently supported is PubKeyHashScript.
type Script interface {
	// PkScript returns the serialized output script.
	PkScript() ([]byte, error)

	// isScript seals the interface.
	isScript()
}

// PubKeyHashScript is a pay-to-pubkey-hash output script.
type PubKeyHashScript struct {
	// Hash is the HASH160 of the compressed public key.
	Hash [20]byte
}

// A compile time check to ensure PubKeyHashScript satisfies Script.
var _ Script = PubKeyHashScript{}

// NewPubKeyHashScript validates and wraps a pubkey hash.
func NewPubKeyHashScript(hash160 []byte) (PubKeyHashScript, error) {
	var s PubKeyHashScript
	if len(hash160) != len(s.Hash) {
		return s, fmt.Errorf("%w: got %d", ErrInvalidPubKeyHash,
			len(hash160))
	}
	copy(s.Hash[:], hash160)

	return s, nil
}

// PkScript returns OP_DUP OP_HASH160 <hash> OP_EQUALVERIFY OP_CHECKSIG.
func (s PubKeyHashScript) PkScript() ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(s.Hash[:]).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func (PubKeyHashScript) isScript() {}

// Output is a transaction output under construction.
type Output struct {
	// Amount is the value paid.
	Amount btcutil.Amount

	// Script is the destination.
	Script Script

	// IsChange is set on the change output synthesized by the builder.
	IsChange bool
}

// PayToPubKeyHash returns an output paying amount to the pubkey hash.
func PayToPubKeyHash(amount btcutil.Amount, hash160 []byte) (*Output, error) {
	script, err := NewPubKeyHashScript(hash160)
	if err != nil {
		return nil, err
	}

	return &Output{Amount: amount, Script: script}, nil
}

// TxOut serializes the output.
func (o *Output) TxOut() (*wire.TxOut, error) {
	if o.Script == nil {
		return nil, fmt.Errorf("%w: missing script", ErrUnsupportedScript)
	}

	pkScript, err := o.Script.PkScript()
	if err != nil {
		return nil, err
	}

	return wire.NewTxOut(int64(o.Amount), pkScript), nil
}

// Input is a caller-selected output to spend.
type Input struct {
	// Credit is the wallet output being spent.
	Credit wtxmgr.Credit
}

// Spend returns an input spending the credit.
func Spend(c wtxmgr.Credit) Input {
	return Input{Credit: c}
}

// spendable reports whether the credit pays a script the builder can sign
// for.
func spendable(c *wtxmgr.Credit) bool {
	return txscript.IsPayToPubKeyHash(c.PkScript)
}
