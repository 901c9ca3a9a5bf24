// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

// txWatch records the state changes of one transaction.
type txWatch struct {
	// changes are the observed states, oldest first. Consecutive
	// entries differ.
	changes []wtxmgr.TxState

	// claimed is the number of changes handed to Wait callers, the
	// abandoned claims in released included.
	claimed int

	// released are abandoned claims below claimed in ascending order.
	// They are handed out again before new ones.
	released []int

	// waiting is the number of callers blocked on the watch.
	waiting int

	// changed is closed and replaced whenever a change is recorded.
	changed chan struct{}
}

func (w *txWatch) current() wtxmgr.TxState {
	if len(w.changes) == 0 {
		return wtxmgr.TxStateUnknown
	}
	return w.changes[len(w.changes)-1]
}

// claim returns the index of the change the next Wait caller receives.
func (w *txWatch) claim() int {
	if len(w.released) > 0 {
		idx := w.released[0]
		w.released = w.released[1:]
		return idx
	}

	idx := w.claimed
	w.claimed++
	return idx
}

// release hands an abandoned claim back.
func (w *txWatch) release(idx int) {
	i := sort.SearchInts(w.released, idx)
	w.released = slices.Insert(w.released, i, idx)

	for n := len(w.released); n > 0 &&
		w.released[n-1] == w.claimed-1; n = len(w.released) {

		w.released = w.released[:n-1]
		w.claimed--
	}
}

// settled reports whether the watch holds nothing a caller could still
// receive: the transaction is confirmed or gone, every change was handed
// out and nobody is blocked on it.
func (w *txWatch) settled() bool {
	if w.waiting > 0 || len(w.released) > 0 ||
		w.claimed < len(w.changes) {

		return false
	}

	state := w.current()
	return state == wtxmgr.TxStateConfirmed ||
		state == wtxmgr.TxStateUnknown
}

// txWaiters resolves waits on transaction state changes. Waits on different
// transactions are independent.
type txWaiters struct {
	mu      sync.Mutex
	watches map[chainhash.Hash]*txWatch
}

func newTxWaiters() *txWaiters {
	return &txWaiters{
		watches: make(map[chainhash.Hash]*txWatch),
	}
}

// watch returns the watch of the transaction, creating it. The caller must
// hold the mutex.
func (t *txWaiters) watch(hash chainhash.Hash) *txWatch {
	w, ok := t.watches[hash]
	if !ok {
		w = &txWatch{changed: make(chan struct{})}
		t.watches[hash] = w
	}
	return w
}

// enter registers a blocked caller on the watch of the transaction.
func (t *txWaiters) enter(hash chainhash.Hash) *txWatch {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.watch(hash)
	w.waiting++
	return w
}

// leave unregisters a caller, dropping the watch once it is settled.
func (t *txWaiters) leave(hash chainhash.Hash, w *txWatch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w.waiting--
	if w.settled() && t.watches[hash] == w {
		delete(t.watches, hash)
	}
}

// observe records the state the store reports for the transaction and wakes
// the waiters if it changed.
func (t *txWaiters) observe(hash chainhash.Hash, state wtxmgr.TxState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Nothing to record for a transaction that was never seen.
	if _, ok := t.watches[hash]; !ok && state == wtxmgr.TxStateUnknown {
		return
	}

	w := t.watch(hash)
	if w.current() == state {
		return
	}

	log.Tracef("Transaction %v is now %v", hash, state)

	w.changes = append(w.changes, state)
	close(w.changed)
	w.changed = make(chan struct{})
}

// next claims the next unclaimed state change of the transaction and waits
// for it to be observed. A claim abandoned because ctx ended goes to the
// next caller.
func (t *txWaiters) next(ctx context.Context, hash chainhash.Hash,
	quit <-chan struct{}) (wtxmgr.TxState, error) {

	w := t.enter(hash)
	defer t.leave(hash, w)

	t.mu.Lock()
	idx := w.claim()
	t.mu.Unlock()

	for {
		t.mu.Lock()
		if idx < len(w.changes) {
			state := w.changes[idx]
			t.mu.Unlock()
			return state, nil
		}
		changed := w.changed
		t.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			t.mu.Lock()
			w.release(idx)
			t.mu.Unlock()
			return wtxmgr.TxStateUnknown, ctx.Err()
		case <-quit:
			return wtxmgr.TxStateUnknown, ErrLedgerClosed
		}
	}
}

// until waits for the transaction to reach at least the given state.
func (t *txWaiters) until(ctx context.Context, hash chainhash.Hash,
	state wtxmgr.TxState, quit <-chan struct{}) error {

	w := t.enter(hash)
	defer t.leave(hash, w)

	for {
		t.mu.Lock()
		if w.current() >= state {
			t.mu.Unlock()
			return nil
		}
		changed := w.changed
		t.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-quit:
			return ErrLedgerClosed
		}
	}
}

// clear drops every watch.
func (t *txWaiters) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.watches = make(map[chainhash.Hash]*txWatch)
}

// Wait blocks until the transaction's observed state changes. Successive
// calls for the same transaction return successive changes: the first call
// returns once the transaction is seen at all, usually in the mempool, and
// the next once it is mined. Changes observed before a call are not lost. A
// transaction that leaves the mempool without being mined resolves the
// wait with ErrTxDropped. Once a confirmed or dropped transaction has had
// every change returned its history is discarded, and a later sighting
// starts a new one.
//
// Wait has no timeout of its own; it returns when ctx is done or the ledger
// is closed.
func (l *Ledger) Wait(ctx context.Context, hash chainhash.Hash) (
	wtxmgr.TxState, error) {

	state, err := l.waiters.next(ctx, hash, l.quit)
	if err != nil {
		return state, err
	}
	if state == wtxmgr.TxStateUnknown {
		return state, ErrTxDropped
	}

	return state, nil
}

// WaitFor blocks until the transaction reaches at least the given state,
// which may already be the case.
func (l *Ledger) WaitFor(ctx context.Context, hash chainhash.Hash,
	state wtxmgr.TxState) error {

	if l.store.TxState(hash) >= state {
		return nil
	}

	return l.waiters.until(ctx, hash, state, l.quit)
}
