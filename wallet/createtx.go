// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shauser/lbry-sdk/keychain"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wallet/txauthor"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

// TxIntent describes a transaction to build.
type TxIntent struct {
	// Outputs are the payments, in order. The change output, if any, is
	// appended after them.
	Outputs []*txauthor.Output

	// Inputs, when set, are exactly the outputs spent. They must be
	// unspent and unreserved outputs of the funding accounts.
	Inputs []txauthor.Input

	// Funding are the accounts whose outputs may be spent. It defaults
	// to the change account.
	Funding []*Account

	// Change is the account receiving the change output.
	Change *Account

	// FeeRatePerKb overrides the ledger's fee rate.
	FeeRatePerKb fn.Option[btcutil.Amount]
}

// CreatedTx is a signed transaction built by a ledger. Its inputs stay
// reserved until the transaction is observed on chain, its broadcast fails
// or it is released.
type CreatedTx struct {
	*txauthor.AuthoredTx

	// Hash is the transaction hash.
	Hash chainhash.Hash

	// ChangeAccount is the name of the account receiving the change.
	ChangeAccount string
}

// inputSigner hands the sign descriptors of each input to the key backend
// of the account owning the input.
type inputSigner struct {
	owners []*Account
}

// A compile time check to ensure inputSigner satisfies keychain.Signer.
var _ keychain.Signer = (*inputSigner)(nil)

// SignTransaction groups the descriptors by account and signs each group
// with the account's key backend.
func (s *inputSigner) SignTransaction(tx *wire.MsgTx,
	descs []*keychain.SignDescriptor) error {

	groups := make(map[*Account][]*keychain.SignDescriptor)
	var order []*Account
	for _, desc := range descs {
		if desc.InputIndex < 0 || desc.InputIndex >= len(s.owners) {
			return fmt.Errorf("%w: input index %d out of range",
				keychain.ErrSignDescriptorMismatch,
				desc.InputIndex)
		}

		owner := s.owners[desc.InputIndex]
		if _, ok := groups[owner]; !ok {
			order = append(order, owner)
		}
		groups[owner] = append(groups[owner], desc)
	}

	for _, owner := range order {
		err := owner.keys.SignTransaction(tx, groups[owner])
		if err != nil {
			return fmt.Errorf("account %q: %w", owner.name, err)
		}
	}

	return nil
}

// newLockID returns a random reservation id.
func newLockID() (wtxmgr.LockID, error) {
	var id wtxmgr.LockID
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// isBuildConflict reports whether a reservation failed because a concurrent
// build or a chain event took one of the selected outputs.
func isBuildConflict(err error) bool {
	return wtxmgr.IsError(err, wtxmgr.ErrOutputReserved) ||
		wtxmgr.IsError(err, wtxmgr.ErrAlreadySpent) ||
		wtxmgr.IsError(err, wtxmgr.ErrCreditNotFound)
}

// CreateTransaction builds and signs a transaction for the intent.
//
// Every attempt works on a snapshot of the unspent, unreserved outputs of
// the funding accounts. A change address of the change account is reserved,
// the transaction is authored and signed, and finally the selected outputs
// are reserved. If a concurrent build reserved or the chain spent one of
// them in the meantime, the attempt is discarded and retried with a fresh
// snapshot, up to the configured number of attempts.
func (l *Ledger) CreateTransaction(ctx context.Context,
	intent *TxIntent) (*CreatedTx, error) {

	if l.closed() {
		return nil, ErrLedgerClosed
	}
	if intent.Change == nil {
		return nil, errors.New("no change account given")
	}
	if err := l.checkAccount(intent.Change); err != nil {
		return nil, err
	}

	funding := intent.Funding
	if len(funding) == 0 {
		funding = []*Account{intent.Change}
	}
	for _, acct := range funding {
		if err := l.checkAccount(acct); err != nil {
			return nil, err
		}
	}

	feeRate := intent.FeeRatePerKb.UnwrapOr(l.cfg.FeeRate.Amount)

	for attempt := 1; attempt <= l.cfg.MaxBuildAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tx, err := l.buildOnce(intent, funding, feeRate)
		switch {
		case err == nil:
			log.Debugf("Built transaction %v on attempt %d", tx.Hash,
				attempt)
			return tx, nil

		case isBuildConflict(err):
			log.Debugf("Build attempt %d of %d lost its inputs: %v",
				attempt, l.cfg.MaxBuildAttempts, err)

		default:
			return nil, err
		}
	}

	return nil, ErrBuildConflict
}

// buildOnce makes a single build attempt.
func (l *Ledger) buildOnce(intent *TxIntent, funding []*Account,
	feeRate btcutil.Amount) (*CreatedTx, error) {

	id, err := newLockID()
	if err != nil {
		return nil, err
	}

	owners := make(map[wire.OutPoint]*Account)
	var candidates []wtxmgr.Credit
	for _, acct := range funding {
		for _, c := range l.store.ListUnspent(acct.name, false) {
			if c.Reserved {
				continue
			}
			candidates = append(candidates, c)
			owners[c.OutPoint] = acct
		}
	}

	inputs := make([]txauthor.Input, 0, len(intent.Inputs))
	for _, in := range intent.Inputs {
		op := in.Credit.OutPoint
		if _, ok := owners[op]; !ok {
			return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, op)
		}

		c, _ := l.store.Credit(op)
		inputs = append(inputs, txauthor.Spend(c))
	}

	changeAcct := intent.Change
	changeAddr, err := changeAcct.addrs.ReserveUsableAddress(
		waddrmgr.InternalBranch, id,
	)
	if err != nil {
		return nil, err
	}
	releaseChange := func() {
		changeAcct.addrs.ReleaseReservation(id)
	}
	if err := l.watchNew(changeAcct); err != nil {
		releaseChange()
		return nil, err
	}

	changeSource := &txauthor.ChangeSource{
		NewScript: func() (txauthor.Script, error) {
			return txauthor.NewPubKeyHashScript(
				changeAddr.Address.ScriptAddress(),
			)
		},
	}

	authored, err := txauthor.NewUnsignedTransaction(
		intent.Outputs, inputs, candidates, feeRate, l.policy,
		changeSource,
	)
	if err != nil {
		releaseChange()
		return nil, err
	}
	if authored.ChangeIndex < 0 {
		releaseChange()
	}

	signer := &inputSigner{
		owners: make([]*Account, 0, len(authored.Inputs)),
	}
	for _, c := range authored.Inputs {
		signer.owners = append(signer.owners, owners[c.OutPoint])
	}
	if err := authored.Sign(signer); err != nil {
		releaseChange()
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	if err := authored.Verify(); err != nil {
		releaseChange()
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	ops := make([]wire.OutPoint, 0, len(authored.Inputs))
	for _, c := range authored.Inputs {
		ops = append(ops, c.OutPoint)
	}
	if err := l.store.Reserve(id, ops); err != nil {
		releaseChange()
		return nil, err
	}

	tx := &CreatedTx{
		AuthoredTx:    authored,
		Hash:          authored.Tx.TxHash(),
		ChangeAccount: changeAcct.name,
	}

	l.buildMu.Lock()
	l.pending[tx.Hash] = pendingTx{id: id, change: changeAcct}
	l.buildMu.Unlock()

	log.Infof("Created transaction %v spending %d %s, fee %v", tx.Hash,
		len(ops), pickNoun(len(ops), "output", "outputs"), authored.Fee)

	return tx, nil
}

// releasePending releases the reservations of a built transaction.
func (l *Ledger) releasePending(hash chainhash.Hash) {
	l.buildMu.Lock()
	p, ok := l.pending[hash]
	delete(l.pending, hash)
	l.buildMu.Unlock()

	if !ok {
		return
	}

	l.store.ReleaseReservation(p.id)
	p.change.addrs.ReleaseReservation(p.id)
}

// ReleaseTransaction abandons a transaction that will not be broadcast,
// returning its inputs and change address to the pool.
func (l *Ledger) ReleaseTransaction(tx *CreatedTx) {
	l.releasePending(tx.Hash)
}
