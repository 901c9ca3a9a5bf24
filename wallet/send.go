// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Broadcast submits a created transaction to the chain backend. On failure
// the transaction's reservations are released and an error wrapping
// ErrBroadcast is returned.
func (l *Ledger) Broadcast(ctx context.Context, tx *CreatedTx) error {
	if err := ctx.Err(); err != nil {
		l.releasePending(tx.Hash)
		return err
	}

	if _, err := l.chain.SendRawTransaction(tx.Tx); err != nil {
		l.releasePending(tx.Hash)
		return fmt.Errorf("%w %v: %w", ErrBroadcast, tx.Hash, err)
	}

	log.Infof("Broadcast transaction %v", tx.Hash)

	return nil
}

// Send creates and broadcasts a transaction for the intent.
func (l *Ledger) Send(ctx context.Context, intent *TxIntent) (*CreatedTx,
	error) {

	tx, err := l.CreateTransaction(ctx, intent)
	if err != nil {
		return nil, err
	}
	if err := l.Broadcast(ctx, tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// SendBatch sends every intent concurrently. The transactions are returned
// in intent order. The first failure cancels the sends not yet started and
// is returned; transactions already broadcast stay broadcast.
func (l *Ledger) SendBatch(ctx context.Context,
	intents []*TxIntent) ([]*CreatedTx, error) {

	txs := make([]*CreatedTx, len(intents))

	g, gctx := errgroup.WithContext(ctx)
	for i, intent := range intents {
		g.Go(func() error {
			tx, err := l.Send(gctx, intent)
			if err != nil {
				return fmt.Errorf("send %d: %w", i, err)
			}
			txs[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return txs, nil
}
