// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// LockID represents a unique context-specific ID assigned to an output lock.
// Transaction builds use it to hold the outputs they selected until the
// resulting transaction is observed or the build is abandoned.
type LockID [32]byte

// Reserve locks every outpoint under id, or none of them. It is the commit
// step of a transaction build: it fails with ErrCreditNotFound,
// ErrAlreadySpent or ErrOutputReserved if any outpoint was removed, spent
// or reserved by someone else since the build took its snapshot.
// Re-reserving outpoints already held by id succeeds.
func (s *Store) Reserve(id LockID, ops []wire.OutPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		c, ok := s.credits[op]
		switch {
		case !ok:
			str := fmt.Sprintf("no credit for outpoint %v", op)
			return txStoreError(ErrCreditNotFound, str, nil)

		case c.Spent():
			str := fmt.Sprintf("outpoint %v already spent", op)
			return txStoreError(ErrAlreadySpent, str, nil)
		}

		if holder, ok := s.locks[op]; ok && holder != id {
			str := fmt.Sprintf("outpoint %v reserved by another "+
				"build", op)
			return txStoreError(ErrOutputReserved, str, nil)
		}
	}

	for _, op := range ops {
		s.locks[op] = id
	}

	return nil
}

// ReleaseReservation unlocks every outpoint held by id and returns how many
// were released.
func (s *Store) ReleaseReservation(id LockID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for op, holder := range s.locks {
		if holder == id {
			delete(s.locks, op)
			n++
		}
	}

	return n
}

// IsReserved returns whether op is held by a reservation.
func (s *Store) IsReserved(op wire.OutPoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.locks[op]
	return ok
}
