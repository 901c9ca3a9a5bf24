// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/shauser/lbry-sdk/chain"
	"github.com/shauser/lbry-sdk/internal/cfgutil"
	"github.com/shauser/lbry-sdk/internal/zero"
	"github.com/shauser/lbry-sdk/keychain"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wallet"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

func main() {
	// Work around defer not working after os.Exit.
	if err := walletMain(); err != nil {
		os.Exit(1)
	}
}

// walletMain is a work-around main function that is required since deferred
// functions (such as closing the log rotator) are not called with calls to
// os.Exit. Instead, main runs this function and checks for a non-nil error,
// at which point any defers have already run, and if the error is non-nil,
// the program can be exited with an error exit status.
func walletMain() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s", version())

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Errorf("Unable to create data directory: %v", err)
		return err
	}

	mnemonic, err := loadSeed(cfg)
	if err != nil {
		log.Errorf("Unable to load seed: %v", err)
		return err
	}
	defer zero.Bytes(mnemonic)

	db, snapshot, err := openSnapshotDB(cfg)
	if err != nil {
		log.Errorf("Unable to open ledger database: %v", err)
		return err
	}
	addInterruptHandler(func() {
		if err := db.Close(); err != nil {
			log.Errorf("Unable to close ledger database: %v", err)
		}
	})

	simChain := chain.NewSimChain(chain.SimConfig{
		Params:           cfg.params,
		AutoMineInterval: cfg.AutoMine,
	})
	if err := simChain.Start(); err != nil {
		log.Errorf("Unable to start chain: %v", err)
		simulateInterrupt()
		<-interruptHandlersDone
		return err
	}
	addInterruptHandler(simChain.Stop)

	var opts []wallet.LedgerOption
	if snapshot != nil {
		opts = append(opts, wallet.WithSnapshot(snapshot))
	}
	ledger, err := wallet.OpenLedger(cfg.Ledger, simChain, opts...)
	if err != nil {
		log.Errorf("Unable to open ledger: %v", err)
		simulateInterrupt()
		<-interruptHandlersDone
		return err
	}
	addInterruptHandler(func() {
		log.Info("Saving ledger snapshot...")
		if err := wallet.SaveSnapshot(db, ledger.Snapshot()); err != nil {
			log.Errorf("Unable to save ledger snapshot: %v", err)
		}
		ledger.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	addInterruptHandler(cancel)

	// The development chain starts from genesis on every run, so records
	// restored from a snapshot are replayed against it.
	err = loadAccounts(ctx, cfg, ledger, string(mnemonic), snapshot != nil)
	if err == nil && cfg.Fund.Amount > 0 {
		err = fundAccount(ctx, cfg, ledger, simChain)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Errorf("%v", err)
		}
		simulateInterrupt()
		<-interruptHandlersDone
		return err
	}

	logBalances(ledger)

	<-interruptHandlersDone
	log.Info("Shutdown complete")

	return nil
}

// loadSeed reads the mnemonic of the wallet from the data directory,
// creating it when requested.
func loadSeed(cfg *config) ([]byte, error) {
	seedPath := filepath.Join(cfg.DataDir, seedFileName)
	exists, err := cfgutil.FileExists(seedPath)
	if err != nil {
		return nil, err
	}

	if !exists {
		if !cfg.Create {
			return nil, fmt.Errorf("no seed found at %s, run with "+
				"--create to create one", seedPath)
		}

		mnemonic, err := keychain.GenerateMnemonic()
		if err != nil {
			return nil, err
		}
		err = os.WriteFile(seedPath, []byte(mnemonic+"\n"), 0600)
		if err != nil {
			return nil, err
		}

		log.Infof("Created new seed at %s", seedPath)
	}

	b, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(b)

	mnemonic := []byte(strings.Join(strings.Fields(string(b)), " "))

	return mnemonic, nil
}

// openSnapshotDB opens the ledger database in the data directory, creating
// it if it does not exist, and loads the snapshot it holds. The snapshot is
// nil for a fresh database.
func openSnapshotDB(cfg *config) (walletdb.DB, *wallet.Snapshot, error) {
	dbPath := filepath.Join(cfg.DataDir, ledgerDBName)
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, nil, err
	}

	db, err := wallet.OpenDB(dbPath, !exists)
	if err != nil {
		return nil, nil, err
	}

	snapshot, err := wallet.LoadSnapshot(db)
	switch {
	case errors.Is(err, wallet.ErrNoSnapshot):
		log.Infof("Created ledger database at %s", dbPath)
		return db, nil, nil

	case err != nil:
		db.Close()
		return nil, nil, err
	}

	return db, snapshot, nil
}

// loadAccounts registers and subscribes the configured accounts. The i-th
// account is derived at BIP0044 account index i of the seed.
func loadAccounts(ctx context.Context, cfg *config, ledger *wallet.Ledger,
	mnemonic string, restored bool) error {

	for i, name := range cfg.Accounts {
		keys, err := keychain.NewHDKeyRingFromMnemonic(
			mnemonic, cfg.Passphrase, cfg.params, cfg.CoinType,
			uint32(i),
		)
		if err != nil {
			return err
		}

		acct, err := ledger.RegisterAccount(name, keys)
		if err != nil {
			return err
		}
		if err := ledger.SubscribeAccount(ctx, acct); err != nil {
			return err
		}

		if cfg.Rescan || restored || acct.NeedsRescan() {
			if err := ledger.Rescan(ctx, acct); err != nil {
				return fmt.Errorf("rescan %q: %w", name, err)
			}
		}
	}

	return nil
}

// fundAccount pays the configured amount to a usable address of the first
// account and waits for the payment to confirm.
func fundAccount(ctx context.Context, cfg *config, ledger *wallet.Ledger,
	c chain.DevInterface) error {

	acct, err := ledger.Account(cfg.Accounts[0])
	if err != nil {
		return err
	}
	addr, err := acct.GetOrCreateUsableAddress(waddrmgr.ExternalBranch)
	if err != nil {
		return err
	}

	hash, err := c.SendToAddress(addr.Address, cfg.Fund.Amount)
	if err != nil {
		return fmt.Errorf("fund %q: %w", acct.Name(), err)
	}
	log.Infof("Funded %s with %v in %v", addr.Address, cfg.Fund.Amount,
		hash)

	// Without the auto-miner nothing would confirm the payment.
	if cfg.AutoMine == 0 {
		if _, err := c.Generate(1); err != nil {
			return err
		}
	}

	return ledger.WaitFor(ctx, *hash, wtxmgr.TxStateConfirmed)
}

// logBalances logs the balance of every registered account.
func logBalances(ledger *wallet.Ledger) {
	for _, acct := range ledger.Accounts() {
		log.Infof("Account %q: balance %s (%s confirmed), %d unspent "+
			"outputs", acct.Name(), wallet.FormatAmount(acct.Balance()),
			wallet.FormatAmount(acct.ConfirmedBalance()),
			acct.UtxoCount())
	}
}
