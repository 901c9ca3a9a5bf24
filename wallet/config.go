// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shauser/lbry-sdk/internal/cfgutil"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wallet/txauthor"
	"github.com/shauser/lbry-sdk/wallet/txrules"
	"github.com/shauser/lbry-sdk/wallet/txsizes"
)

const (
	// DefaultFeeRatePerKb is the default fee rate: 50 units per byte.
	DefaultFeeRatePerKb btcutil.Amount = 50_000

	// DefaultMaxBuildAttempts is the default number of times a build is
	// retried after losing its inputs to a concurrent build.
	DefaultMaxBuildAttempts = 3
)

// Config holds the tunables of a Ledger. The struct tags let daemons embed
// it in their go-flags configuration.
type Config struct {
	FeeRate          *cfgutil.AmountFlag `long:"feerate" description:"Fee rate per kilobyte, in coins"`
	DustRelayFee     *cfgutil.AmountFlag `long:"dustrelayfee" description:"Relay fee per kilobyte used to decide whether change is dust, in coins"`
	ReceivingGap     uint32              `long:"receivinggap" description:"Number of unused receiving addresses kept ahead of the last used one"`
	ChangeGap        uint32              `long:"changegap" description:"Number of unused change addresses kept ahead of the last used one"`
	MaxAddressIndex  uint32              `long:"maxaddressindex" description:"Highest address index that may be derived on a branch"`
	CoinSelection    string              `long:"coinselection" description:"Coin selection policy" choice:"confirmed-first" choice:"insertion-order" choice:"largest-first"`
	MaxBuildAttempts int                 `long:"maxbuildattempts" description:"Number of build attempts before giving up on conflicting inputs"`

	// The linear model the fee of a transaction is estimated with.
	TxSizeBase      int `long:"txsizebase" description:"Estimated size in bytes of a transaction without inputs or outputs"`
	TxSizePerInput  int `long:"txsizeperinput" description:"Estimated size in bytes of each signed input"`
	TxSizePerOutput int `long:"txsizeperoutput" description:"Estimated size in bytes of each output"`

	// Params are the network parameters addresses are encoded for.
	Params *chaincfg.Params `no-flag:"true"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		FeeRate:          cfgutil.NewAmountFlag(DefaultFeeRatePerKb),
		DustRelayFee:     cfgutil.NewAmountFlag(txrules.DefaultRelayFeePerKb),
		ReceivingGap:     waddrmgr.DefaultReceivingGap,
		ChangeGap:        waddrmgr.DefaultChangeGap,
		MaxAddressIndex:  waddrmgr.MaxAddressIndex,
		CoinSelection:    txauthor.SelectConfirmedFirst.String(),
		MaxBuildAttempts: DefaultMaxBuildAttempts,
		TxSizeBase:       txsizes.DefaultSizeModel.Base,
		TxSizePerInput:   txsizes.DefaultSizeModel.PerInput,
		TxSizePerOutput:  txsizes.DefaultSizeModel.PerOutput,
		Params:           &chaincfg.RegressionNetParams,
	}
}

// managerConfig returns the address issuance policy of the config.
func (c *Config) managerConfig() waddrmgr.ManagerConfig {
	return waddrmgr.ManagerConfig{
		ReceivingGap: c.ReceivingGap,
		ChangeGap:    c.ChangeGap,
		MaxIndex:     c.MaxAddressIndex,
	}
}

// policy returns the transaction construction policy of the config.
func (c *Config) policy() (txauthor.Policy, error) {
	selection, err := txauthor.ParseSelectionPolicy(c.CoinSelection)
	if err != nil {
		return txauthor.Policy{}, err
	}

	sizeModel := txsizes.SizeModel{
		Base:      c.TxSizeBase,
		PerInput:  c.TxSizePerInput,
		PerOutput: c.TxSizePerOutput,
	}
	if err := sizeModel.Validate(); err != nil {
		return txauthor.Policy{}, err
	}

	policy := txauthor.DefaultPolicy()
	policy.Selection = selection
	policy.SizeModel = sizeModel
	policy.DustRelayFeePerKb = c.DustRelayFee.Amount

	return policy, nil
}

// Validate checks the config for values the ledger cannot work with.
func (c *Config) Validate() error {
	if c.FeeRate == nil || c.DustRelayFee == nil {
		return fmt.Errorf("fee rates must be set")
	}
	if c.FeeRate.Amount < 0 || c.DustRelayFee.Amount < 0 {
		return fmt.Errorf("fee rates must not be negative")
	}
	if c.MaxBuildAttempts < 1 {
		return fmt.Errorf("max build attempts must be positive, got %d",
			c.MaxBuildAttempts)
	}
	if c.Params == nil {
		return fmt.Errorf("network parameters must be set")
	}
	if _, err := c.policy(); err != nil {
		return err
	}

	return c.managerConfig().Validate()
}
