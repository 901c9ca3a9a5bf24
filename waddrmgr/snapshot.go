// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import "fmt"

// BranchSnapshot captures the derivation state of one address chain.
type BranchSnapshot struct {
	// NumAddresses is the number of addresses derived on the branch.
	NumAddresses uint32

	// Used lists the indexes of used addresses in ascending order.
	Used []uint32
}

// Snapshot captures the persistent state of an AccountManager. Addresses
// themselves are not stored since they can be re-derived from the key ring.
type Snapshot struct {
	Receiving BranchSnapshot
	Change    BranchSnapshot
}

// branch returns the snapshot of the given branch.
func (s *Snapshot) branch(b Branch) *BranchSnapshot {
	if b == InternalBranch {
		return &s.Change
	}
	return &s.Receiving
}

// Snapshot returns the current derivation state of the account.
// Reservations are transient and not included.
func (m *AccountManager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Snapshot
	for branch := Branch(0); branch < numBranches; branch++ {
		b := m.branches[branch]
		bs := s.branch(branch)

		bs.NumAddresses = uint32(len(b.addrs))
		for _, addr := range b.addrs {
			if addr.Used {
				bs.Used = append(bs.Used, addr.Index)
			}
		}
	}

	return s
}

// Restore re-derives the addresses recorded in the snapshot and reapplies
// their used flags. Restoring onto a manager that already derived more
// addresses only adds used flags.
func (m *AccountManager) Restore(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for branch := Branch(0); branch < numBranches; branch++ {
		b := m.branches[branch]
		bs := s.branch(branch)

		for uint32(len(b.addrs)) < bs.NumAddresses {
			if _, err := m.nextAddress(branch); err != nil {
				return err
			}
		}

		for _, index := range bs.Used {
			if index >= uint32(len(b.addrs)) {
				str := fmt.Sprintf("used %s index %d beyond "+
					"derived range %d", branch, index,
					len(b.addrs))
				return managerError(
					ErrInvalidSnapshot, str, nil,
				)
			}

			b.addrs[index].Used = true
			if int64(index) > b.lastUsed {
				b.lastUsed = int64(index)
			}
		}

		if err := m.extendGap(branch); err != nil {
			return err
		}
	}

	return nil
}
