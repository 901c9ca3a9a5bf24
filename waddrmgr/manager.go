// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/shauser/lbry-sdk/keychain"
)

const (
	// DefaultReceivingGap is the default number of unused receiving
	// addresses kept ahead of the last used one.
	DefaultReceivingGap = 20

	// DefaultChangeGap is the default number of unused change addresses
	// kept ahead of the last used one.
	DefaultChangeGap = 6

	// MaxAddressIndex is the highest non-hardened child index, and thus the
	// default upper bound for address derivation on a branch.
	MaxAddressIndex = hdkeychain.HardenedKeyStart - 1
)

// ManagerConfig holds the address issuance policy of an AccountManager.
type ManagerConfig struct {
	// ReceivingGap is the gap limit of the receiving branch.
	ReceivingGap uint32

	// ChangeGap is the gap limit of the change branch.
	ChangeGap uint32

	// MaxIndex is the highest index that may be derived on either
	// branch.
	MaxIndex uint32
}

// DefaultManagerConfig returns the default address issuance policy.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReceivingGap: DefaultReceivingGap,
		ChangeGap:    DefaultChangeGap,
		MaxIndex:     MaxAddressIndex,
	}
}

// Validate returns an ErrInvalidConfig ManagerError if the policy cannot be
// used.
func (c ManagerConfig) Validate() error {
	if c.ReceivingGap == 0 || c.ChangeGap == 0 {
		return managerError(
			ErrInvalidConfig, "gap limits must be positive", nil,
		)
	}
	if c.MaxIndex == 0 || c.MaxIndex > MaxAddressIndex {
		str := fmt.Sprintf("max index must be within [1, %d]",
			MaxAddressIndex)
		return managerError(ErrInvalidConfig, str, nil)
	}

	return nil
}

// addressBranch is the mutable state of a single address chain.
type addressBranch struct {
	gap   uint32
	addrs []*ManagedAddress

	// lastUsed is the index of the highest used address, or -1.
	lastUsed int64

	// reserved maps address indexes to the reservation holding them.
	reserved map[uint32][32]byte
}

// AccountManager derives and tracks the receiving and change addresses of a
// single account. All methods are safe for concurrent use.
type AccountManager struct {
	name    string
	keyRing keychain.KeyRing
	params  *chaincfg.Params
	cfg     ManagerConfig

	mu       sync.RWMutex
	branches [numBranches]*addressBranch

	// byScript indexes every derived address by its script address.
	byScript map[string]*ManagedAddress

	// unwatched collects addresses derived since the last call to
	// UnwatchedAddresses.
	unwatched []ManagedAddress
}

// NewAccountManager returns a manager for the named account. No addresses
// are derived until EnsureGap or an issuance call is made.
func NewAccountManager(name string, keyRing keychain.KeyRing,
	params *chaincfg.Params, cfg ManagerConfig) (*AccountManager, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &AccountManager{
		name:     name,
		keyRing:  keyRing,
		params:   params,
		cfg:      cfg,
		byScript: make(map[string]*ManagedAddress),
	}
	m.branches[ExternalBranch] = &addressBranch{
		gap:      cfg.ReceivingGap,
		lastUsed: -1,
		reserved: make(map[uint32][32]byte),
	}
	m.branches[InternalBranch] = &addressBranch{
		gap:      cfg.ChangeGap,
		lastUsed: -1,
		reserved: make(map[uint32][32]byte),
	}

	return m, nil
}

// Name returns the name of the account.
func (m *AccountManager) Name() string {
	return m.name
}

// Params returns the network the addresses are encoded for.
func (m *AccountManager) Params() *chaincfg.Params {
	return m.params
}

// DeriveAddress derives the address at the given branch and index without
// recording it. Derivation is deterministic: the same key ring, branch and
// index always produce the same address.
func (m *AccountManager) DeriveAddress(branch Branch,
	index uint32) (ManagedAddress, error) {

	if err := branch.validate(); err != nil {
		return ManagedAddress{}, err
	}

	addr, err := m.deriveAddress(branch, index)
	if err != nil {
		return ManagedAddress{}, err
	}

	return *addr, nil
}

// deriveAddress derives the address at branch/index.
func (m *AccountManager) deriveAddress(branch Branch,
	index uint32) (*ManagedAddress, error) {

	if index > m.cfg.MaxIndex {
		str := fmt.Sprintf("%s branch of account %q exhausted at "+
			"index %d", branch, m.name, m.cfg.MaxIndex)
		return nil, managerError(ErrTooManyAddresses, str, nil)
	}

	loc := keychain.KeyLocator{Branch: uint32(branch), Index: index}
	desc, err := m.keyRing.DeriveKey(loc)
	if err != nil {
		str := fmt.Sprintf("failed to derive key -- branch %d, "+
			"child %d", branch, index)
		return nil, managerError(ErrKeyChain, str, err)
	}

	addr, err := btcutil.NewAddressPubKeyHash(desc.PubKeyHash(), m.params)
	if err != nil {
		return nil, managerError(ErrKeyChain, "invalid pubkey hash", err)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, managerError(ErrKeyChain, "invalid address", err)
	}

	return &ManagedAddress{
		Account:  m.name,
		Address:  addr,
		PubKey:   desc.PubKey,
		PkScript: pkScript,
		Branch:   branch,
		Index:    index,
	}, nil
}

// nextAddress derives and records the next address of the branch. The
// caller must hold the write lock.
func (m *AccountManager) nextAddress(branch Branch) (*ManagedAddress, error) {
	b := m.branches[branch]

	addr, err := m.deriveAddress(branch, uint32(len(b.addrs)))
	if err != nil {
		return nil, err
	}

	b.addrs = append(b.addrs, addr)
	m.byScript[string(addr.Address.ScriptAddress())] = addr
	m.unwatched = append(m.unwatched, *addr)

	log.Tracef("Derived %s address %v (account %q, index %d)", branch,
		addr.Address, m.name, addr.Index)

	return addr, nil
}

// extendGap derives addresses until the branch holds at least gap addresses
// beyond its highest used index. The caller must hold the write lock.
func (m *AccountManager) extendGap(branch Branch) error {
	b := m.branches[branch]

	want := b.lastUsed + 1 + int64(b.gap)
	if want > int64(m.cfg.MaxIndex)+1 {
		want = int64(m.cfg.MaxIndex) + 1
	}

	for int64(len(b.addrs)) < want {
		if _, err := m.nextAddress(branch); err != nil {
			return err
		}
	}

	return nil
}

// EnsureGap pre-derives the lookahead window of both branches.
func (m *AccountManager) EnsureGap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for branch := Branch(0); branch < numBranches; branch++ {
		if err := m.extendGap(branch); err != nil {
			return err
		}
	}

	return nil
}

// GetAddresses returns every address derived on the branch in derivation
// order.
func (m *AccountManager) GetAddresses(branch Branch) ([]ManagedAddress,
	error) {

	if err := branch.validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.branches[branch]
	addrs := make([]ManagedAddress, 0, len(b.addrs))
	for _, addr := range b.addrs {
		addrs = append(addrs, *addr)
	}

	return addrs, nil
}

// AllAddresses returns every derived address of both branches, receiving
// addresses first.
func (m *AccountManager) AllAddresses() []ManagedAddress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var addrs []ManagedAddress
	for _, b := range m.branches {
		for _, addr := range b.addrs {
			addrs = append(addrs, *addr)
		}
	}

	return addrs
}

// usableAddress returns the first address of the branch that is neither
// used nor reserved, deriving a new one when none exists. The caller must
// hold the write lock.
func (m *AccountManager) usableAddress(branch Branch) (*ManagedAddress,
	error) {

	b := m.branches[branch]
	for _, addr := range b.addrs {
		if addr.Used {
			continue
		}
		if _, ok := b.reserved[addr.Index]; ok {
			continue
		}
		return addr, nil
	}

	return m.nextAddress(branch)
}

// GetOrCreateUsableAddress returns an address of the branch that is unused
// and not reserved by an in-flight send. A new address is derived if every
// existing one is taken.
func (m *AccountManager) GetOrCreateUsableAddress(
	branch Branch) (ManagedAddress, error) {

	if err := branch.validate(); err != nil {
		return ManagedAddress{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	addr, err := m.usableAddress(branch)
	if err != nil {
		return ManagedAddress{}, err
	}

	return *addr, nil
}

// ReserveUsableAddress atomically picks a usable address of the branch and
// reserves it under id.
func (m *AccountManager) ReserveUsableAddress(branch Branch,
	id [32]byte) (ManagedAddress, error) {

	if err := branch.validate(); err != nil {
		return ManagedAddress{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	addr, err := m.usableAddress(branch)
	if err != nil {
		return ManagedAddress{}, err
	}
	m.branches[branch].reserved[addr.Index] = id

	return *addr, nil
}

// Reserve marks addr as held by the reservation id so that it is not handed
// out as a usable address until the reservation is released.
func (m *AccountManager) Reserve(addr btcutil.Address, id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	managed, err := m.lookup(addr)
	if err != nil {
		return err
	}

	b := m.branches[managed.Branch]
	if holder, ok := b.reserved[managed.Index]; ok && holder != id {
		str := fmt.Sprintf("address %v already reserved", addr)
		return managerError(ErrAddressReserved, str, nil)
	}
	b.reserved[managed.Index] = id

	return nil
}

// ReleaseReservation releases every address held by the reservation id. It
// returns the number of addresses released.
func (m *AccountManager) ReleaseReservation(id [32]byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, b := range m.branches {
		for index, holder := range b.reserved {
			if holder == id {
				delete(b.reserved, index)
				n++
			}
		}
	}

	return n
}

// lookup resolves a derived address. The caller must hold the lock.
func (m *AccountManager) lookup(addr btcutil.Address) (*ManagedAddress,
	error) {

	managed, ok := m.byScript[string(addr.ScriptAddress())]
	if !ok || !addr.IsForNet(m.params) {
		str := fmt.Sprintf("address %v not found in account %q",
			addr, m.name)
		return nil, managerError(ErrAddressNotFound, str, nil)
	}

	return managed, nil
}

// LookupAddress returns the managed address matching addr.
func (m *AccountManager) LookupAddress(addr btcutil.Address) (ManagedAddress,
	error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	managed, err := m.lookup(addr)
	if err != nil {
		return ManagedAddress{}, err
	}

	return *managed, nil
}

// MarkUsed flags addr as used and extends the lookahead window of its
// branch. It returns whether the flag changed; marking an already used
// address is a no-op.
func (m *AccountManager) MarkUsed(addr btcutil.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	managed, err := m.lookup(addr)
	if err != nil {
		return false, err
	}
	if managed.Used {
		return false, nil
	}

	managed.Used = true
	b := m.branches[managed.Branch]
	if int64(managed.Index) > b.lastUsed {
		b.lastUsed = int64(managed.Index)
	}

	log.Debugf("Marked %s address %v of account %q used", managed.Branch,
		addr, m.name)

	return true, m.extendGap(managed.Branch)
}

// UnwatchedAddresses returns the addresses derived since the previous call
// and clears the list. The synchronizer uses it to extend the chain watch
// filter.
func (m *AccountManager) UnwatchedAddresses() []ManagedAddress {
	m.mu.Lock()
	defer m.mu.Unlock()

	addrs := m.unwatched
	m.unwatched = nil

	return addrs
}
