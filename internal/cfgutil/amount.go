// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// coinExponent is the number of decimal places of one coin.
const coinExponent = 8

// AmountFlag embeds a btcutil.Amount and implements the flags.Marshaler and
// Unmarshaler interfaces so it can be used as a config struct field. Values
// are written in coins and parsed exactly, without going through floating
// point.
type AmountFlag struct {
	btcutil.Amount
}

// NewAmountFlag creates an AmountFlag with a default btcutil.Amount.
func NewAmountFlag(defaultValue btcutil.Amount) *AmountFlag {
	return &AmountFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (a *AmountFlag) MarshalFlag() (string, error) {
	return decimal.New(int64(a.Amount), -coinExponent).String(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (a *AmountFlag) UnmarshalFlag(value string) error {
	amount, err := ParseAmount(value)
	if err != nil {
		return err
	}
	a.Amount = amount
	return nil
}

// ParseAmount parses a non-negative coin amount such as "1.1" or "0.0005".
// Amounts with more than eight decimal places are rejected.
func ParseAmount(value string) (btcutil.Amount, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, " LBC")

	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: negative", value)
	}

	units := d.Shift(coinExponent)
	if !units.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal "+
			"places", value, coinExponent)
	}
	if units.GreaterThan(decimal.NewFromInt(btcutil.MaxSatoshi)) {
		return 0, fmt.Errorf("invalid amount %q: exceeds maximum",
			value)
	}

	return btcutil.Amount(units.IntPart()), nil
}
